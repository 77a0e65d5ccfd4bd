package emitter

import (
	"context"
	"strings"
	"sync"

	"github.com/gosuda/trajlog/internal/domain"
)

// Session is the handle for a session whose id the runtime has announced.
// A nil *Session stands for a session that is not yet known.
type Session struct {
	emitter *Emitter
	id      string
}

// ID returns the session id, or "" for a nil session.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// NextCallID returns a fresh call id derived from the session id prefix.
func (s *Session) NextCallID() string {
	if s == nil {
		return ""
	}
	return s.emitter.nextCallID(s.id)
}

func (s *Session) RecordUserPrompt(ctx context.Context, text string) {
	if s == nil {
		return
	}
	s.emitter.emit(ctx, &domain.Event{Role: domain.RoleUser, Content: text, SessionID: s.id})
}

// RecordAssistantText emits text as one assistant message. Blank text is skipped.
func (s *Session) RecordAssistantText(ctx context.Context, text string) {
	if s == nil || text == "" {
		return
	}
	s.emitter.emit(ctx, &domain.Event{Role: domain.RoleAssistant, Content: text, SessionID: s.id})
}

// RecordToolCall emits a tool event. The event content is the encoded result.
func (s *Session) RecordToolCall(ctx context.Context, call domain.ToolCall) {
	if s == nil {
		return
	}
	s.emitter.emit(ctx, &domain.Event{
		Role:      domain.RoleTool,
		Content:   call.Result.String(),
		SessionID: s.id,
		Tool:      &call,
	})
}

// BeginTurn opens a buffer for one assistant turn.
func (s *Session) BeginTurn() *Turn {
	return &Turn{session: s}
}

// Turn accumulates assistant text fragments so that a turn is emitted as a
// single record.
type Turn struct {
	session *Session

	mu  sync.Mutex
	buf strings.Builder
}

// Write appends a fragment.
func (t *Turn) Write(fragment string) {
	t.mu.Lock()
	t.buf.WriteString(fragment)
	t.mu.Unlock()
}

// Replace discards accumulated fragments in favour of the complete text.
func (t *Turn) Replace(text string) {
	t.mu.Lock()
	t.buf.Reset()
	t.buf.WriteString(text)
	t.mu.Unlock()
}

// Len returns the number of buffered bytes.
func (t *Turn) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Len()
}

// Flush emits the buffered text, if any, and resets the buffer. It reports
// whether a record was handed to the emitter.
func (t *Turn) Flush(ctx context.Context) bool {
	t.mu.Lock()
	text := t.buf.String()
	t.buf.Reset()
	t.mu.Unlock()

	if text == "" || t.session == nil {
		return false
	}
	t.session.RecordAssistantText(ctx, text)
	return true
}
