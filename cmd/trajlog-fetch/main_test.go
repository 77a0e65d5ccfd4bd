package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/trajlog/internal/domain"
	"github.com/gosuda/trajlog/internal/transcript"
)

func TestRootCmd_RequiresSessionID(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(nil)

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "trajlog-fetch 54d5f26c")
}

func TestReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "no logs",
			err:  fmt.Errorf("wrap: %w for session: abc", domain.ErrNoLogsFound),
			want: []string{"No logs found for session: abc\n"},
		},
		{
			name: "ambiguous prefix lists candidates",
			err: &transcript.AmbiguousSessionError{
				Prefix: "abc",
				Candidates: []transcript.Candidate{
					{SessionID: "abc-1", Rows: 2, FirstSeen: time.Unix(0, 0)},
					{SessionID: "abc-2", Rows: 5, FirstSeen: time.Unix(60, 0)},
				},
			},
			want: []string{"ambiguous", "abc-1  (2 messages, first at 1970-01-01T00:00:00Z)", "abc-2  (5 messages"},
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: []string{"Error: boom\n"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			report(&buf, "abc", tc.err)
			for _, w := range tc.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}
