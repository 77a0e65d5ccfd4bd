package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/emitter"
)

type pendingTool struct {
	name  string
	input domain.Payload
}

// Recorder turns a Claude Code stream-json transcript into trajectory
// events. It is not safe for concurrent use; feed it from one goroutine.
type Recorder struct {
	emitter *emitter.Emitter
	prompt  string
	out     io.Writer

	session  *emitter.Session
	turn     *emitter.Turn
	turnID   string
	streamed bool
	pending  map[string]pendingTool
	costUSD  *float64
}

// NewRecorder returns a recorder for one prompt. Assistant text is echoed to
// out as it arrives; out may be nil.
func NewRecorder(em *emitter.Emitter, prompt string, out io.Writer) *Recorder {
	if out == nil {
		out = io.Discard
	}
	return &Recorder{
		emitter: em,
		prompt:  prompt,
		out:     out,
		pending: make(map[string]pendingTool),
	}
}

// SessionID returns the announced session id, or "" before init.
func (r *Recorder) SessionID() string {
	return r.session.ID()
}

// CostUSD returns the total cost reported by the result line.
func (r *Recorder) CostUSD() (float64, bool) {
	if r.costUSD == nil {
		return 0, false
	}
	return *r.costUSD, true
}

// Handle consumes one output line. It satisfies LineHandler.
func (r *Recorder) Handle(ctx context.Context, line []byte) {
	var msg streamLine
	if err := json.Unmarshal(line, &msg); err != nil {
		log.Debug().Err(err).Msg("agent: skipping malformed stream line")
		return
	}

	if msg.Type == lineSystem {
		if msg.Subtype == "init" {
			r.init(ctx, &msg)
		}
		return
	}

	// Nothing can be attributed before the session id is announced.
	if r.session == nil {
		log.Debug().Str("type", msg.Type).Msg("agent: dropping line before init")
		return
	}

	switch msg.Type {
	case lineAssistant:
		r.assistant(ctx, &msg)
	case lineUser:
		r.user(ctx, &msg)
	case lineStreamEvent:
		r.streamEvent(ctx, &msg)
	case lineResult:
		r.result(ctx, &msg)
	}
}

// Close flushes a pending assistant turn.
func (r *Recorder) Close(ctx context.Context) {
	r.flushTurn(ctx)
	for id, p := range r.pending {
		log.Debug().Str("tool_use_id", id).Str("tool", p.name).Msg("agent: tool call without result")
	}
}

func (r *Recorder) init(ctx context.Context, msg *streamLine) {
	if r.session != nil && r.session.ID() == msg.SessionID {
		return
	}
	r.flushTurn(ctx)

	r.session = r.emitter.Session(msg.SessionID)
	if r.session == nil {
		log.Warn().Msg("agent: init line without session id")
		return
	}

	log.Info().Str("session_id", msg.SessionID).Str("model", msg.Model).Msg("agent: session started")
	r.session.RecordUserPrompt(ctx, r.prompt)
}

func (r *Recorder) assistant(ctx context.Context, msg *streamLine) {
	blocks, err := msg.Message.blocks()
	if err != nil {
		log.Debug().Err(err).Msg("agent: skipping malformed assistant content")
		return
	}

	id := ""
	if msg.Message != nil {
		id = msg.Message.ID
	}
	alreadyStreamed := r.openTurn(ctx, id)

	for _, b := range blocks {
		switch b.Type {
		case "text":
			if alreadyStreamed {
				continue
			}
			r.turn.Write(b.Text)
			fmt.Fprint(r.out, b.Text)
		case "tool_use":
			input, err := domain.EncodePayload(json.RawMessage(b.Input))
			if err != nil {
				input, _ = domain.EncodePayload(string(b.Input))
			}
			r.pending[b.ID] = pendingTool{name: toolName(b.Name), input: input}
		}
	}
}

func (r *Recorder) user(ctx context.Context, msg *streamLine) {
	blocks, err := msg.Message.blocks()
	if err != nil {
		log.Debug().Err(err).Msg("agent: skipping malformed user content")
		return
	}

	for _, b := range blocks {
		if b.Type != "tool_result" {
			continue
		}

		call, ok := r.pending[b.ToolUseID]
		if !ok {
			log.Debug().Str("tool_use_id", b.ToolUseID).Msg("agent: tool result without matching call")
			continue
		}
		delete(r.pending, b.ToolUseID)

		result, err := resultPayload(b.Content, b.IsError)
		if err != nil {
			log.Debug().Err(err).Str("tool", call.name).Msg("agent: unencodable tool result")
			continue
		}

		// The assistant text that led to the call precedes it in the log.
		r.flushTurn(ctx)
		r.session.RecordToolCall(ctx, domain.ToolCall{
			CallID: r.session.NextCallID(),
			Name:   call.name,
			Input:  call.input,
			Result: result,
		})
	}
}

func (r *Recorder) streamEvent(ctx context.Context, msg *streamLine) {
	ev := msg.Event
	if ev == nil {
		return
	}

	if ev.Type == "message_start" && ev.Message != nil {
		r.openTurn(ctx, ev.Message.ID)
		r.streamed = true
		return
	}

	text, ok := ev.textDelta()
	if !ok {
		return
	}
	if r.turn == nil {
		r.turn = r.session.BeginTurn()
		r.streamed = true
	}
	r.turn.Write(text)
	fmt.Fprint(r.out, text)
}

func (r *Recorder) result(ctx context.Context, msg *streamLine) {
	r.flushTurn(ctx)

	fmt.Fprint(r.out, "\n\n--- Agent Complete ---\n")
	if msg.Subtype != "success" {
		log.Error().Str("subtype", msg.Subtype).Str("session_id", r.session.ID()).Msg("agent: run did not succeed")
		return
	}

	r.costUSD = msg.TotalCostUSD
	if cost, ok := r.CostUSD(); ok {
		fmt.Fprintf(r.out, "Cost: $%.4f\n", cost)
	} else {
		fmt.Fprint(r.out, "Cost: $N/A\n")
	}
	log.Info().Str("session_id", r.session.ID()).Int("turns", msg.NumTurns).Msg("agent: run complete")
}

// openTurn makes the turn for message id current, flushing any other turn.
// It reports whether the current turn's text already arrived as deltas.
func (r *Recorder) openTurn(ctx context.Context, id string) bool {
	if r.turn != nil && (id == "" || r.turnID == "" || id == r.turnID) {
		if r.turnID == "" {
			r.turnID = id
		}
		return r.streamed
	}
	r.flushTurn(ctx)
	r.turn = r.session.BeginTurn()
	r.turnID = id
	r.streamed = false
	return false
}

func (r *Recorder) flushTurn(ctx context.Context) {
	if r.turn == nil {
		return
	}
	r.turn.Flush(ctx)
	r.turn = nil
	r.turnID = ""
	r.streamed = false
}

// toolName drops the mcp__<server>__ prefix the agent puts on MCP tools.
func toolName(name string) string {
	rest, ok := strings.CutPrefix(name, "mcp__")
	if !ok {
		return name
	}
	if _, tool, ok := strings.Cut(rest, "__"); ok && tool != "" {
		return tool
	}
	return name
}
