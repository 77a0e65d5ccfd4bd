// Package emitter turns trajectory occurrences into schema-valid events and
// hands each one to a sink. Emission is best effort: failures go to an
// ErrorHandler and never reach the caller.
package emitter

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/domain"
)

const callIDPrefixLen = 8

// ErrorHandler receives emission failures.
type ErrorHandler func(err error)

// DiscardErrors drops every failure.
func DiscardErrors() ErrorHandler {
	return func(error) {}
}

// LogErrors reports failures as warnings on the global logger.
func LogErrors() ErrorHandler {
	return func(err error) {
		log.Warn().Err(err).Msg("emitter: emission failed")
	}
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithErrorHandler replaces the default LogErrors policy.
func WithErrorHandler(h ErrorHandler) Option {
	return func(e *Emitter) {
		if h != nil {
			e.onError = h
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// Emitter is safe for concurrent use.
type Emitter struct {
	sink    domain.EventSink
	enabled bool
	onError ErrorHandler
	now     func() time.Time
	calls   atomic.Uint64
}

// New returns an enabled emitter. A nil sink yields a disabled one.
func New(sink domain.EventSink, opts ...Option) *Emitter {
	if sink == nil {
		return Disabled()
	}

	e := &Emitter{
		sink:    sink,
		enabled: true,
		onError: LogErrors(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Disabled returns an emitter whose operations never touch a sink.
func Disabled() *Emitter {
	return &Emitter{onError: DiscardErrors(), now: time.Now}
}

// Enabled reports whether emission was switched on at construction.
func (e *Emitter) Enabled() bool { return e.enabled }

// Session binds the emitter to a known session id. It returns nil for an
// empty id; every recording method on a nil *Session is a no-op.
func (e *Emitter) Session(id string) *Session {
	if id == "" {
		return nil
	}
	return &Session{emitter: e, id: id}
}

// RecordUserPrompt emits a user event. Without a session id nothing is emitted.
func (e *Emitter) RecordUserPrompt(ctx context.Context, sessionID, text string) {
	e.Session(sessionID).RecordUserPrompt(ctx, text)
}

// RecordAssistantText emits one assistant event holding a whole turn's text.
func (e *Emitter) RecordAssistantText(ctx context.Context, sessionID, text string) {
	e.Session(sessionID).RecordAssistantText(ctx, text)
}

// RecordToolCall encodes input and result as JSON payloads and emits a tool event.
func (e *Emitter) RecordToolCall(ctx context.Context, sessionID, callID, name string, input, result any) {
	s := e.Session(sessionID)
	if s == nil || !e.enabled {
		return
	}

	in, err := domain.EncodePayload(input)
	if err != nil {
		e.onError(fmt.Errorf("emitter.RecordToolCall(%s): input: %w", name, err))
		return
	}
	out, err := domain.EncodePayload(result)
	if err != nil {
		e.onError(fmt.Errorf("emitter.RecordToolCall(%s): result: %w", name, err))
		return
	}

	s.RecordToolCall(ctx, domain.ToolCall{CallID: callID, Name: name, Input: in, Result: out})
}

// nextCallID builds "<session prefix>-<n>" from the process-wide counter.
func (e *Emitter) nextCallID(sessionID string) string {
	prefix := sessionID
	if len(prefix) > callIDPrefixLen {
		prefix = prefix[:callIDPrefixLen]
	}
	if prefix == "" {
		prefix = "unknown"
	}
	return prefix + "-" + strconv.FormatUint(e.calls.Add(1), 10)
}

func (e *Emitter) emit(ctx context.Context, ev *domain.Event) {
	if !e.enabled {
		return
	}

	ev.Timestamp = e.now()
	if err := ev.Validate(); err != nil {
		e.onError(fmt.Errorf("emitter.emit: %w", err))
		return
	}

	if err := e.sink.Emit(ctx, ev); err != nil {
		e.onError(fmt.Errorf("emitter.emit(%s): %w", ev.Role, err))
		return
	}

	l := log.Debug().Str("role", ev.Role.String()).Str("session_id", shortID(ev.SessionID))
	if ev.Tool != nil {
		l = l.Str("tool", ev.Tool.Name)
	}
	l.Msg("emitter: logged message")
}

func shortID(id string) string {
	if len(id) > callIDPrefixLen {
		return id[:callIDPrefixLen]
	}
	return id
}
