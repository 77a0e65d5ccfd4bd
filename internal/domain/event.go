package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a trajectory event.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes a stored role value. Blank input yields "" with ok=false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Attribute keys of the flattened sink record. Stores and exporters must use
// these names so the reconstructor can select on them.
const (
	AttrRole       = "role"
	AttrContent    = "content"
	AttrSessionID  = "session.id"
	AttrToolCallID = "tool.call_id"
	AttrToolName   = "tool.name"
	AttrToolInput  = "tool.input"
	AttrToolResult = "tool.result"
)

// ToolCall is the structured payload carried by tool-role events.
type ToolCall struct {
	CallID string
	Name   string
	Input  Payload
	Result Payload
}

// Validate checks the identifying fields of a tool call and that both
// payloads hold JSON. A zero Payload is not valid; encode nil as null.
func (tc *ToolCall) Validate() error {
	if tc.CallID == "" {
		return fmt.Errorf("%w: tool call id is empty", ErrInvalidEvent)
	}
	if tc.Name == "" {
		return fmt.Errorf("%w: tool name is empty", ErrInvalidEvent)
	}
	if !tc.Input.Valid() {
		return fmt.Errorf("%w: tool input %q is not JSON-encoded", ErrInvalidEvent, tc.Input.String())
	}
	if !tc.Result.Valid() {
		return fmt.Errorf("%w: tool result %q is not JSON-encoded", ErrInvalidEvent, tc.Result.String())
	}
	return nil
}

// Event is one trajectory occurrence destined for the log sink.
type Event struct {
	Role      Role
	Content   string
	SessionID string
	Timestamp time.Time
	Tool      *ToolCall // set iff Role == RoleTool
}

// Validate enforces the schema invariants: a known role, a session id, and a
// tool payload present exactly when the role is tool.
func (e *Event) Validate() error {
	if !e.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidEvent, e.Role)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: session id is empty", ErrInvalidEvent)
	}

	switch {
	case e.Role == RoleTool && e.Tool == nil:
		return fmt.Errorf("%w: tool event without tool payload", ErrInvalidEvent)
	case e.Role != RoleTool && e.Tool != nil:
		return fmt.Errorf("%w: %s event carries a tool payload", ErrInvalidEvent, e.Role)
	case e.Tool != nil:
		return e.Tool.Validate()
	}

	return nil
}

// Attribute is a single key/value of the flattened sink record.
type Attribute struct {
	Key   string
	Value string
}

// Attributes flattens the event into the sink record field set. Tool payloads
// are emitted in their JSON-encoded form.
func (e *Event) Attributes() []Attribute {
	attrs := make([]Attribute, 0, 7)
	attrs = append(attrs,
		Attribute{Key: AttrRole, Value: e.Role.String()},
		Attribute{Key: AttrContent, Value: e.Content},
	)
	if e.SessionID != "" {
		attrs = append(attrs, Attribute{Key: AttrSessionID, Value: e.SessionID})
	}
	if e.Tool != nil {
		attrs = append(attrs,
			Attribute{Key: AttrToolCallID, Value: e.Tool.CallID},
			Attribute{Key: AttrToolName, Value: e.Tool.Name},
			Attribute{Key: AttrToolInput, Value: e.Tool.Input.String()},
			Attribute{Key: AttrToolResult, Value: e.Tool.Result.String()},
		)
	}
	return attrs
}

// EventSink accepts one event record at a time. Delivery is at-least-once at
// best and carries no ordering guarantee.
type EventSink interface {
	Emit(ctx context.Context, event *Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event *Event) error

func (f EventSinkFunc) Emit(ctx context.Context, event *Event) error { return f(ctx, event) }

// IsInvalidEvent reports whether err stems from schema validation.
func IsInvalidEvent(err error) bool {
	return errors.Is(err, ErrInvalidEvent)
}
