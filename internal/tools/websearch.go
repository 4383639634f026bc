package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	duckDuckGoURL    = "https://api.duckduckgo.com/"
	wikipediaSummary = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	maxRelatedTopics = 5
)

// webSearch answers factual questions from public sources. DuckDuckGo's
// instant answer API is tried first; when it has neither an abstract nor
// related topics, the query falls through to the Wikipedia summary API.
type webSearch struct {
	client  *http.Client
	ddgURL  string
	wikiURL string
}

func newWebSearch(deps Deps) Tool {
	return &webSearch{
		client:  deps.httpClient(),
		ddgURL:  duckDuckGoURL,
		wikiURL: wikipediaSummary,
	}
}

func (t *webSearch) Name() string { return "web_search" }

func (t *webSearch) Description() string {
	return "Search the web for current information, facts, or topics outside your knowledge. Use for questions about recent events, prices, or anything you are unsure about."
}

func (t *webSearch) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The search query"}
		},
		"required": ["query"]
	}`)
}

func (t *webSearch) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &input); err != nil || strings.TrimSpace(input.Query) == "" {
		return Errorf("web_search", "a non-empty query is required"), nil
	}
	query := strings.TrimSpace(input.Query)

	if answer := t.duckDuckGo(ctx, query); answer != "" {
		return Success("web_search", answer), nil
	}
	if summary := t.wikipedia(ctx, query); summary != "" {
		return Success("web_search", summary), nil
	}
	return Success("web_search", "No results found"), nil
}

type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

func (t *webSearch) duckDuckGo(ctx context.Context, query string) string {
	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1",
		t.ddgURL, url.QueryEscape(query))

	var payload ddgResponse
	if !t.getJSON(ctx, endpoint, &payload) {
		return ""
	}

	if payload.AbstractText != "" {
		return payload.AbstractText
	}

	var topics []string
	for _, topic := range payload.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		topics = append(topics, topic.Text)
		if len(topics) == maxRelatedTopics {
			break
		}
	}
	if len(topics) > 0 {
		return strings.Join(topics, "\n")
	}
	return ""
}

func (t *webSearch) wikipedia(ctx context.Context, query string) string {
	endpoint := t.wikiURL + url.PathEscape(strings.ReplaceAll(query, " ", "_"))

	var payload struct {
		Extract string `json:"extract"`
	}
	if !t.getJSON(ctx, endpoint, &payload) {
		return ""
	}
	return payload.Extract
}

func (t *webSearch) getJSON(ctx context.Context, endpoint string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}
