package domain

import (
	"context"
	"strings"
	"time"
)

// LogRow is one record as retrieved from a log store, projected onto the
// fields the transcript needs.
type LogRow struct {
	Timestamp  time.Time
	Role       string // raw stored value; may be blank for foreign or partial writes
	Content    string
	SessionID  string
	ToolName   string
	ToolInput  Payload
	ToolResult Payload
}

// IsNoise reports whether the row lacks a role and therefore is not a
// trajectory event.
func (r *LogRow) IsNoise() bool {
	return strings.TrimSpace(r.Role) == ""
}

// RowSet is the result of one retrieval. Rows are in store order, which is
// unspecified. Truncated is set when the byte cap stopped the read early.
type RowSet struct {
	Rows      []LogRow
	Truncated bool
	BytesRead int64
}

// LogRowSource retrieves rows whose session id starts with a prefix.
type LogRowSource interface {
	RowsByPrefix(ctx context.Context, prefix string) (*RowSet, error)
	Close() error
}

// DefaultMaxQueryBytes bounds how much a single retrieval may read.
const DefaultMaxQueryBytes int64 = 50 * 1024 * 1024

// RowBytes approximates the stored size of a row for byte-cap accounting.
func RowBytes(r *LogRow) int64 {
	return int64(len(r.Role) + len(r.Content) + len(r.SessionID) + len(r.ToolName) +
		len(r.ToolInput.String()) + len(r.ToolResult.String()) + 32)
}

// RowCollector accumulates rows into a RowSet while enforcing a byte cap.
type RowCollector struct {
	max int64
	set RowSet
}

// NewRowCollector caps collection at maxBytes; non-positive means DefaultMaxQueryBytes.
func NewRowCollector(maxBytes int64) *RowCollector {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxQueryBytes
	}
	return &RowCollector{max: maxBytes}
}

// Add appends r unless doing so would exceed the cap. Once it returns false
// the set is marked truncated and further rows are refused.
func (c *RowCollector) Add(r LogRow) bool {
	if c.set.Truncated {
		return false
	}
	n := RowBytes(&r)
	if c.set.BytesRead+n > c.max {
		c.set.Truncated = true
		return false
	}
	c.set.BytesRead += n
	c.set.Rows = append(c.set.Rows, r)
	return true
}

// Result returns the collected set.
func (c *RowCollector) Result() *RowSet {
	return &c.set
}
