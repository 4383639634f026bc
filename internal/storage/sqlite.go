package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/abhinav155942/wobble/pkg/models"
)

// SQLite implements all store interfaces on a single SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreSet opens the database and wires every store to it.
func NewSQLiteStoreSet(path string) (StoreSet, error) {
	s, err := OpenSQLite(path)
	if err != nil {
		return StoreSet{}, err
	}
	return StoreSet{
		Agents:        s,
		Conversations: sqliteConversations{s},
		Messages:      sqliteMessages{s},
		Traces:        sqliteTraces{s},
		Memories:      sqliteMemories{s},
		Knowledge:     s,
		closer:        s.Close,
	}, nil
}

// Per-store adapters. The Create/Get names collide across the store
// interfaces, so each gets a thin view over the shared *SQLite.

type sqliteConversations struct{ s *SQLite }

func (v sqliteConversations) Create(ctx context.Context, conv *models.Conversation) error {
	return v.s.CreateConversation(ctx, conv)
}

func (v sqliteConversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return v.s.GetConversation(ctx, id)
}

func (v sqliteConversations) GetByExternalID(ctx context.Context, agentID, externalID string) (*models.Conversation, error) {
	return v.s.GetByExternalID(ctx, agentID, externalID)
}

func (v sqliteConversations) GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	return v.s.GetOrCreate(ctx, conv)
}

func (v sqliteConversations) Touch(ctx context.Context, id string) error {
	return v.s.Touch(ctx, id)
}

type sqliteMessages struct{ s *SQLite }

func (v sqliteMessages) Create(ctx context.Context, msg *models.Message) error {
	return v.s.CreateMessage(ctx, msg)
}

func (v sqliteMessages) Get(ctx context.Context, id string) (*models.Message, error) {
	return v.s.GetMessage(ctx, id)
}

func (v sqliteMessages) ListRecent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	return v.s.ListRecent(ctx, conversationID, limit)
}

type sqliteTraces struct{ s *SQLite }

func (v sqliteTraces) Create(ctx context.Context, trace *models.ExecutionTrace) error {
	return v.s.CreateTrace(ctx, trace)
}

func (v sqliteTraces) UpdateStatus(ctx context.Context, id string, status models.StepStatus, payload map[string]any) error {
	return v.s.UpdateStatus(ctx, id, status, payload)
}

func (v sqliteTraces) ListByMessage(ctx context.Context, messageID string) ([]*models.ExecutionTrace, error) {
	return v.s.ListByMessage(ctx, messageID)
}

type sqliteMemories struct{ s *SQLite }

func (v sqliteMemories) Create(ctx context.Context, mem *models.Memory) error {
	return v.s.CreateMemory(ctx, mem)
}

func (v sqliteMemories) ListByUser(ctx context.Context, agentID, userID string) ([]*models.Memory, error) {
	return v.s.ListByUser(ctx, agentID, userID)
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			persona TEXT,
			instructions TEXT,
			ai_settings TEXT,
			style TEXT,
			connections TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_id TEXT,
			channel TEXT NOT NULL,
			external_id TEXT NOT NULL,
			title TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(agent_id, external_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			user_id TEXT,
			channel TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			metadata TEXT,
			response_time_ms INTEGER,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS execution_traces (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			step_type TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT,
			detail TEXT,
			payload TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_message ON execution_traces(message_id, step_number)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			importance REAL,
			embedding BLOB,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(agent_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_agent ON knowledge_chunks(agent_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// --- AgentStore ---

func (s *SQLite) Create(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	settings, err := marshalJSON(agent.AISettings)
	if err != nil {
		return fmt.Errorf("failed to encode ai settings: %w", err)
	}
	style, err := marshalJSON(agent.Style)
	if err != nil {
		return fmt.Errorf("failed to encode style: %w", err)
	}
	conns, err := marshalJSON(agent.Connections)
	if err != nil {
		return fmt.Errorf("failed to encode connections: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, owner_id, name, persona, instructions, ai_settings, style, connections, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.OwnerID, agent.Name, agent.Persona, agent.Instructions,
		settings, style, conns, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, persona, instructions, ai_settings, style, connections, created_at, updated_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *SQLite) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, persona, instructions, ai_settings, style, connections, created_at, updated_at
		FROM agents WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *SQLite) Update(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now().UTC()

	settings, err := marshalJSON(agent.AISettings)
	if err != nil {
		return fmt.Errorf("failed to encode ai settings: %w", err)
	}
	style, err := marshalJSON(agent.Style)
	if err != nil {
		return fmt.Errorf("failed to encode style: %w", err)
	}
	conns, err := marshalJSON(agent.Connections)
	if err != nil {
		return fmt.Errorf("failed to encode connections: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET name = ?, persona = ?, instructions = ?, ai_settings = ?, style = ?, connections = ?, updated_at = ?
		WHERE id = ?`,
		agent.Name, agent.Persona, agent.Instructions, settings, style, conns, agent.UpdatedAt, agent.ID)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var agent models.Agent
	var persona, instructions, settings, style, conns sql.NullString
	err := row.Scan(&agent.ID, &agent.OwnerID, &agent.Name, &persona, &instructions,
		&settings, &style, &conns, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}
	agent.Persona = persona.String
	agent.Instructions = instructions.String
	if err := unmarshalJSON(settings.String, &agent.AISettings); err != nil {
		return nil, fmt.Errorf("failed to decode ai settings: %w", err)
	}
	if err := unmarshalJSON(style.String, &agent.Style); err != nil {
		return nil, fmt.Errorf("failed to decode style: %w", err)
	}
	if err := unmarshalJSON(conns.String, &agent.Connections); err != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", err)
	}
	return &agent, nil
}

// --- ConversationStore ---

func (s *SQLite) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	meta, err := marshalJSON(conv.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, agent_id, user_id, channel, external_id, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.AgentID, conv.UserID, string(conv.Channel), conv.ExternalID,
		conv.Title, meta, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *SQLite) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, user_id, channel, external_id, title, metadata, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (s *SQLite) GetByExternalID(ctx context.Context, agentID, externalID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, user_id, channel, external_id, title, metadata, created_at, updated_at
		FROM conversations WHERE agent_id = ? AND external_id = ?`, agentID, externalID)
	return scanConversation(row)
}

func (s *SQLite) GetOrCreate(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	existing, err := s.GetByExternalID(ctx, conv.AgentID, conv.ExternalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		// Lost a race with a concurrent webhook for the same thread.
		if existing, getErr := s.GetByExternalID(ctx, conv.AgentID, conv.ExternalID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return conv, nil
}

func (s *SQLite) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var channel string
	var userID, title, meta sql.NullString
	err := row.Scan(&conv.ID, &conv.AgentID, &userID, &channel, &conv.ExternalID,
		&title, &meta, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	conv.UserID = userID.String
	conv.Channel = models.ChannelType(channel)
	conv.Title = title.String
	if err := unmarshalJSON(meta.String, &conv.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &conv, nil
}

// --- MessageStore ---

func (s *SQLite) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	toolCalls, err := marshalJSON(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}
	meta, err := marshalJSON(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, agent_id, user_id, channel, role, content, tool_calls, metadata, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.AgentID, msg.UserID, string(msg.Channel),
		string(msg.Role), msg.Content, toolCalls, meta, msg.ResponseTimeMS, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLite) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, agent_id, user_id, channel, role, content, tool_calls, metadata, response_time_ms, created_at
		FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

func (s *SQLite) ListRecent(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	// Newest N rows, then reversed to chronological order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, agent_id, user_id, channel, role, content, tool_calls, metadata, response_time_ms, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var channel, role string
	var userID, toolCalls, meta sql.NullString
	var responseTime sql.NullInt64
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.AgentID, &userID, &channel,
		&role, &msg.Content, &toolCalls, &meta, &responseTime, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.UserID = userID.String
	msg.Channel = models.ChannelType(channel)
	msg.Role = models.Role(role)
	msg.ResponseTimeMS = responseTime.Int64
	if err := unmarshalJSON(toolCalls.String, &msg.ToolCalls); err != nil {
		return nil, fmt.Errorf("failed to decode tool calls: %w", err)
	}
	if err := unmarshalJSON(meta.String, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &msg, nil
}

// --- TraceStore ---

func (s *SQLite) CreateTrace(ctx context.Context, trace *models.ExecutionTrace) error {
	if trace.ID == "" {
		trace.ID = uuid.NewString()
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now().UTC()
	}
	payload, err := marshalJSON(trace.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_traces (id, message_id, conversation_id, step_number, step_type, status, title, detail, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.ID, trace.MessageID, trace.ConversationID, trace.StepNumber,
		string(trace.StepType), string(trace.Status), trace.Title, trace.Detail,
		payload, trace.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateStatus(ctx context.Context, id string, status models.StepStatus, payload map[string]any) error {
	if payload != nil {
		var existing sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT payload FROM execution_traces WHERE id = ?`, id).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read trace payload: %w", err)
		}
		merged := map[string]any{}
		if err := unmarshalJSON(existing.String, &merged); err != nil {
			merged = map[string]any{}
		}
		for k, v := range payload {
			merged[k] = v
		}
		encoded, err := marshalJSON(merged)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE execution_traces SET status = ?, payload = ? WHERE id = ?`,
			string(status), encoded, id)
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_traces SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update trace: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListByMessage(ctx context.Context, messageID string) ([]*models.ExecutionTrace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, conversation_id, step_number, step_type, status, title, detail, payload, created_at
		FROM execution_traces WHERE message_id = ? ORDER BY step_number ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var traces []*models.ExecutionTrace
	for rows.Next() {
		var tr models.ExecutionTrace
		var stepType, status string
		var title, detail, payload sql.NullString
		if err := rows.Scan(&tr.ID, &tr.MessageID, &tr.ConversationID, &tr.StepNumber,
			&stepType, &status, &title, &detail, &payload, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		tr.StepType = models.StepType(stepType)
		tr.Status = models.StepStatus(status)
		tr.Title = title.String
		tr.Detail = detail.String
		if err := unmarshalJSON(payload.String, &tr.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
		traces = append(traces, &tr)
	}
	return traces, rows.Err()
}

// --- MemoryStore ---

func (s *SQLite) CreateMemory(ctx context.Context, mem *models.Memory) error {
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, agent_id, user_id, content, summary, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.AgentID, mem.UserID, mem.Content, mem.Summary, mem.Importance,
		encodeEmbedding(mem.Embedding), mem.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

func (s *SQLite) ListByUser(ctx context.Context, agentID, userID string) ([]*models.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, user_id, content, summary, importance, embedding, created_at
		FROM memories WHERE agent_id = ? AND user_id = ? ORDER BY created_at DESC`,
		agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var mems []*models.Memory
	for rows.Next() {
		var mem models.Memory
		var summary sql.NullString
		var embedding []byte
		if err := rows.Scan(&mem.ID, &mem.AgentID, &mem.UserID, &mem.Content,
			&summary, &mem.Importance, &embedding, &mem.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		mem.Summary = summary.String
		mem.Embedding = decodeEmbedding(embedding)
		mems = append(mems, &mem)
	}
	return mems, rows.Err()
}

// --- KnowledgeStore ---

func (s *SQLite) Add(ctx context.Context, chunk *models.KnowledgeChunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_chunks (id, agent_id, title, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.AgentID, chunk.Title, chunk.Content, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge chunk: %w", err)
	}
	return nil
}

func (s *SQLite) ListByAgent(ctx context.Context, agentID string, limit int) ([]*models.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, title, content, created_at
		FROM knowledge_chunks WHERE agent_id = ? ORDER BY created_at ASC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.KnowledgeChunk
	for rows.Next() {
		var c models.KnowledgeChunk
		var title sql.NullString
		if err := rows.Scan(&c.ID, &c.AgentID, &title, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge chunk: %w", err)
		}
		c.Title = title.String
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// encodeEmbedding converts []float32 to bytes for storage, 4 bytes per value
// using IEEE 754 bits, little endian.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

// decodeEmbedding converts bytes back to []float32.
func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
