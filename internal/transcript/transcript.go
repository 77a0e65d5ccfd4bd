// Package transcript rebuilds one session's trajectory from log rows and
// renders it as a plain-text artifact.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/domain"
)

// Transcript is the reconstructed, time-ordered view of one session.
type Transcript struct {
	SessionID    string
	MessageCount int
	FetchedAt    time.Time
	Messages     []domain.LogRow
	Truncated    bool // the store read hit the byte cap
}

// Candidate is one full session id matched by an ambiguous prefix.
type Candidate struct {
	SessionID string
	Rows      int
	FirstSeen time.Time
}

// AmbiguousSessionError lists every full session id a prefix matched.
type AmbiguousSessionError struct {
	Prefix     string
	Candidates []Candidate
}

func (e *AmbiguousSessionError) Error() string {
	ids := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		ids = append(ids, fmt.Sprintf("%s (%d messages)", c.SessionID, c.Rows))
	}
	return fmt.Sprintf("prefix %q matches %d sessions: %s", e.Prefix, len(e.Candidates), strings.Join(ids, ", "))
}

func (e *AmbiguousSessionError) Unwrap() error { return domain.ErrAmbiguousSession }

// Reconstructor turns the rows of a log store into a Transcript.
type Reconstructor struct {
	source domain.LogRowSource
	now    func() time.Time
}

func NewReconstructor(source domain.LogRowSource) *Reconstructor {
	return &Reconstructor{source: source, now: time.Now}
}

// WithClock overrides the fetch timestamp source.
func (r *Reconstructor) WithClock(now func() time.Time) *Reconstructor {
	r.now = now
	return r
}

// Reconstruct fetches every row matching prefix and builds the transcript.
// It performs a single store query; failures are not retried.
func (r *Reconstructor) Reconstruct(ctx context.Context, prefix string) (*Transcript, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("transcript.Reconstructor.Reconstruct: session id or prefix is required")
	}

	set, err := r.source.RowsByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("transcript.Reconstructor.Reconstruct: %w: %w", domain.ErrQuery, err)
	}
	if set.Truncated {
		log.Warn().Int64("bytes_read", set.BytesRead).Int("rows", len(set.Rows)).
			Msg("transcript: result exceeded the read cap; transcript is truncated")
	}

	t, err := Build(prefix, set.Rows, r.now())
	if err != nil {
		return nil, fmt.Errorf("transcript.Reconstructor.Reconstruct: %w", err)
	}
	t.Truncated = set.Truncated
	return t, nil
}

// Build filters, orders and partitions rows. The input slice is not modified.
func Build(prefix string, rows []domain.LogRow, fetchedAt time.Time) (*Transcript, error) {
	kept := Filter(rows)
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w for session: %s", domain.ErrNoLogsFound, prefix)
	}

	Sort(kept)

	candidates := Partition(kept)
	if len(candidates) > 1 {
		return nil, &AmbiguousSessionError{Prefix: prefix, Candidates: candidates}
	}

	return &Transcript{
		SessionID:    kept[0].SessionID,
		MessageCount: len(kept),
		FetchedAt:    fetchedAt,
		Messages:     kept,
	}, nil
}

// Filter drops rows without a role.
func Filter(rows []domain.LogRow) []domain.LogRow {
	kept := make([]domain.LogRow, 0, len(rows))
	for i := range rows {
		if rows[i].IsNoise() {
			continue
		}
		kept = append(kept, rows[i])
	}
	return kept
}

// Sort orders rows by timestamp. Equal timestamps keep retrieval order.
func Sort(rows []domain.LogRow) {
	slices.SortStableFunc(rows, func(a, b domain.LogRow) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Partition groups time-ordered rows by full session id, ordered by first appearance.
func Partition(rows []domain.LogRow) []Candidate {
	var out []Candidate
	index := make(map[string]int)
	for i := range rows {
		id := rows[i].SessionID
		if j, ok := index[id]; ok {
			out[j].Rows++
			continue
		}
		index[id] = len(out)
		out = append(out, Candidate{SessionID: id, Rows: 1, FirstSeen: rows[i].Timestamp})
	}
	return out
}
