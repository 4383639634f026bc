package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRedactsAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	key := "sk-" + strings.Repeat("a", 48)
	logger.Info(context.Background(), "provider call failed", "detail", "api_key = "+key)

	out := buf.String()
	if strings.Contains(out, key) {
		t.Errorf("log output contains raw API key: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("log output missing redaction marker: %s", out)
	}
}

func TestLoggerRedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	logger.Info(context.Background(), "connection configured", "credentials", map[string]string{
		"bot_token": "123456789:AAFakeTokenValueThatIsLongEnough123",
		"channel":   "telegram",
	})

	out := buf.String()
	if strings.Contains(out, "AAFakeToken") {
		t.Errorf("log output contains raw bot token: %s", out)
	}
	if !strings.Contains(out, "telegram") {
		t.Errorf("non-sensitive map value dropped: %s", out)
	}
}

func TestLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := AddRequestID(context.Background(), "req-123")
	ctx = AddConversationID(ctx, "conv-456")
	ctx = AddChannel(ctx, "whatsapp")
	logger.Info(ctx, "processing")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", record["request_id"])
	}
	if record["conversation_id"] != "conv-456" {
		t.Errorf("conversation_id = %v, want conv-456", record["conversation_id"])
	}
	if record["channel"] != "whatsapp" {
		t.Errorf("channel = %v, want whatsapp", record["channel"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Debug(context.Background(), "debug line")
	logger.Info(context.Background(), "info line")
	logger.Warn(context.Background(), "warn line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("below-threshold records emitted: %s", out)
	}
	if !strings.Contains(out, "warn line") {
		t.Errorf("warn record missing: %s", out)
	}
}
