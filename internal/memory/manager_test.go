package memory

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/pkg/models"
)

// fakeEmbedder maps input text to canned vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, ok := f.vectors[input]
		if !ok {
			vec = []float32{1, 0, 0}
		}
		out[i] = vec
	}
	return out, nil
}

// fakeSummarizer streams a fixed summary.
type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) Stream(_ context.Context, _ providers.CompletionRequest) (<-chan providers.StreamEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	events := make(chan providers.StreamEvent, 2)
	events <- providers.StreamEvent{Text: f.summary}
	events <- providers.StreamEvent{Done: true}
	close(events)
	return events, nil
}

func newTestManager(t *testing.T, embedder Embedder, summarizer providers.Provider) (*Manager, *storage.InMemory) {
	t.Helper()
	stores, mem := storage.NewInMemoryStoreSet()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: &strings.Builder{}})
	return NewManager(stores.Memories, embedder, summarizer, "", logger), mem
}

func TestStorePersistsSummaryWithImportance(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	mgr, _ := newTestManager(t, embedder, &fakeSummarizer{summary: "User prefers email."})

	mgr.Store(context.Background(), "agent-1", "user-1", "contact me by email", "noted")

	hits, err := mgr.store.ListByUser(context.Background(), "agent-1", "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("memories = %d, want 1", len(hits))
	}
	if hits[0].Content != "User prefers email." {
		t.Errorf("content = %q", hits[0].Content)
	}
	if math.Abs(float64(hits[0].Importance)-DefaultImportance) > 1e-6 {
		t.Errorf("importance = %v", hits[0].Importance)
	}
}

func TestStoreSwallowsEmbeddingFailure(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeEmbedder{err: errors.New("quota")}, &fakeSummarizer{summary: "s"})

	// Must not panic or error; nothing is stored.
	mgr.Store(context.Background(), "agent-1", "user-1", "hi", "hello")

	hits, _ := mgr.store.ListByUser(context.Background(), "agent-1", "user-1")
	if len(hits) != 0 {
		t.Errorf("memories = %d, want 0", len(hits))
	}
}

func TestStoreFallsBackWhenSummarizerFails(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	mgr, _ := newTestManager(t, embedder, &fakeSummarizer{err: errors.New("down")})

	mgr.Store(context.Background(), "agent-1", "user-1", "my order is late", "checking")

	hits, _ := mgr.store.ListByUser(context.Background(), "agent-1", "user-1")
	if len(hits) != 1 {
		t.Fatalf("memories = %d, want 1", len(hits))
	}
	if !strings.Contains(hits[0].Content, "my order is late") {
		t.Errorf("fallback content = %q", hits[0].Content)
	}
}

func TestSearchThresholdAndOrdering(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
	}}
	mgr, _ := newTestManager(t, embedder, &fakeSummarizer{summary: "unused"})

	seed := []struct {
		content string
		vec     []float32
	}{
		{"exact match", []float32{1, 0, 0}},
		{"close match", []float32{0.9, 0.1, 0}},
		{"unrelated", []float32{0, 1, 0}},
	}
	for i, s := range seed {
		err := mgr.store.Create(context.Background(), &models.Memory{
			ID: string(rune('a' + i)), AgentID: "agent-1", UserID: "user-1",
			Content: s.content, Embedding: s.vec,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	hits, err := mgr.Search(context.Background(), "agent-1", "user-1", "query", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (unrelated filtered by threshold)", len(hits))
	}
	if hits[0].Memory.Content != "exact match" {
		t.Errorf("best hit = %q", hits[0].Memory.Content)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not sorted by score")
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{1, 0, 0}, 0},
		{nil, nil, 0},
	}
	for _, tc := range cases {
		got := float64(CosineSimilarity(tc.a, tc.b))
		if math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
