package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/transcript"
)

type GetTranscriptInput struct {
	Prefix string `path:"prefix" minLength:"1" maxLength:"64" doc:"Full session id or unambiguous prefix"`
}

type MessageBody struct {
	Timestamp  time.Time `json:"timestamp"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolInput  string    `json:"tool_input,omitempty" doc:"JSON-encoded tool input"`
	ToolResult string    `json:"tool_result,omitempty" doc:"JSON-encoded tool result"`
}

type TranscriptBody struct {
	SessionID    string        `json:"session_id"`
	MessageCount int           `json:"message_count"`
	FetchedAt    time.Time     `json:"fetched_at"`
	Truncated    bool          `json:"truncated" doc:"Rows beyond the read cap were dropped"`
	Messages     []MessageBody `json:"messages"`
}

type GetTranscriptOutput struct {
	Body *TranscriptBody
}

type GetTranscriptTextOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// RegisterTranscriptRoutes mounts the read-only transcript endpoints. Each
// request runs one reconstruction bounded by timeout.
func RegisterTranscriptRoutes(api huma.API, rec Reconstructor, timeout time.Duration) {
	reconstruct := func(ctx context.Context, prefix string) (*transcript.Transcript, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		t, err := rec.Reconstruct(ctx, prefix)
		if err != nil {
			return nil, transcriptError(err)
		}
		return t, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-transcript",
		Method:      http.MethodGet,
		Path:        "/transcripts/{prefix}",
		Summary:     "Reconstruct a session transcript",
		Tags:        []string{"Transcripts"},
	}, func(ctx context.Context, input *GetTranscriptInput) (*GetTranscriptOutput, error) {
		t, err := reconstruct(ctx, input.Prefix)
		if err != nil {
			return nil, err
		}
		return &GetTranscriptOutput{Body: toTranscriptBody(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-transcript-text",
		Method:      http.MethodGet,
		Path:        "/transcripts/{prefix}/text",
		Summary:     "Render a session transcript as plain text",
		Tags:        []string{"Transcripts"},
	}, func(ctx context.Context, input *GetTranscriptInput) (*GetTranscriptTextOutput, error) {
		t, err := reconstruct(ctx, input.Prefix)
		if err != nil {
			return nil, err
		}
		return &GetTranscriptTextOutput{
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(transcript.Render(t)),
		}, nil
	})
}

func transcriptError(err error) error {
	var ambiguous *transcript.AmbiguousSessionError
	switch {
	case errors.Is(err, domain.ErrNoLogsFound):
		return huma.Error404NotFound("no logs found for session")
	case errors.As(err, &ambiguous):
		details := make([]error, 0, len(ambiguous.Candidates))
		for _, c := range ambiguous.Candidates {
			details = append(details, &huma.ErrorDetail{
				Message:  "matching session",
				Location: "path.prefix",
				Value:    c.SessionID,
			})
		}
		return huma.Error409Conflict("session prefix is ambiguous", details...)
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("log store query timed out")
	case errors.Is(err, domain.ErrQuery):
		return huma.Error502BadGateway("log store query failed", err)
	default:
		return huma.Error500InternalServerError("failed to reconstruct transcript", err)
	}
}

func toTranscriptBody(t *transcript.Transcript) *TranscriptBody {
	msgs := make([]MessageBody, 0, len(t.Messages))
	for _, m := range t.Messages {
		msgs = append(msgs, MessageBody{
			Timestamp:  m.Timestamp,
			Role:       m.Role,
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolInput:  m.ToolInput.String(),
			ToolResult: m.ToolResult.String(),
		})
	}
	return &TranscriptBody{
		SessionID:    t.SessionID,
		MessageCount: t.MessageCount,
		FetchedAt:    t.FetchedAt,
		Truncated:    t.Truncated,
		Messages:     msgs,
	}
}
