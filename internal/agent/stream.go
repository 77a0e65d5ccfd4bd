package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gosuda/trajlog/internal/domain"
)

// Top-level line types of the Claude Code stream-json output.
const (
	lineSystem      = "system"
	lineAssistant   = "assistant"
	lineUser        = "user"
	lineResult      = "result"
	lineStreamEvent = "stream_event"
)

// streamLine is one newline-delimited JSON object of the stream-json output.
type streamLine struct {
	Type         string         `json:"type"`
	Subtype      string         `json:"subtype"`
	SessionID    string         `json:"session_id"`
	Model        string         `json:"model"`
	Message      *streamMessage `json:"message"`
	Event        *streamEvent   `json:"event"`
	TotalCostUSD *float64       `json:"total_cost_usd"`
	NumTurns     int            `json:"num_turns"`
	IsError      bool           `json:"is_error"`
}

type streamMessage struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

// blocks decodes the content array. A plain string content (the echoed
// prompt) yields no blocks.
func (m *streamMessage) blocks() ([]contentBlock, error) {
	if m == nil || !isJSONArray(m.Content) {
		return nil, nil
	}
	var out []contentBlock
	if err := json.Unmarshal(m.Content, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// streamEvent carries partial-message events (--include-partial-messages).
type streamEvent struct {
	Type    string         `json:"type"`
	Message *streamMessage `json:"message"`
	Delta   *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// textDelta returns the text of a content_block_delta text event.
func (e *streamEvent) textDelta() (string, bool) {
	if e == nil || e.Type != "content_block_delta" || e.Delta == nil || e.Delta.Type != "text_delta" {
		return "", false
	}
	return e.Delta.Text, true
}

// resultText flattens tool_result content, which is either a string or a
// list of text blocks.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var parts []contentBlock
	if json.Unmarshal(raw, &parts) == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}

	return string(raw)
}

// resultPayload encodes a tool result. Text that is itself a JSON document
// is kept as is so structured tool output renders pretty.
func resultPayload(raw json.RawMessage, isError bool) (domain.Payload, error) {
	text := resultText(raw)
	if isError {
		return domain.EncodePayload(map[string]string{"error": text})
	}
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return domain.EncodePayload(json.RawMessage(trimmed))
	}
	return domain.EncodePayload(text)
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
