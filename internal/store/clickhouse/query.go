// Package clickhouse reads trajectory rows out of the OpenTelemetry logs
// table that the collector writes into ClickHouse.
package clickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/domain"
)

// DefaultTable is the logs table of the ClickStack all-in-one image.
const DefaultTable = "otel_logs"

// prefixParam is the bound parameter placeholder understood by clickhouse-client.
const prefixParam = "{prefix:String}"

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`) //nolint:gochecknoglobals // compiled regexp

// ValidTable reports whether name is a plain (optionally database-qualified) identifier.
func ValidTable(name string) bool {
	return tablePattern.MatchString(name)
}

// buildQuery selects the trajectory fields of every record whose session id
// starts with the bound prefix. Ordering is left to the reconstructor.
func buildQuery(table, placeholder string) string {
	return fmt.Sprintf(`SELECT
  toUnixTimestamp64Nano(Timestamp) AS ts_nano,
  LogAttributes['%s'] AS role,
  LogAttributes['%s'] AS content,
  LogAttributes['%s'] AS session_id,
  LogAttributes['%s'] AS tool_name,
  LogAttributes['%s'] AS tool_input,
  LogAttributes['%s'] AS tool_result
FROM %s
WHERE startsWith(LogAttributes['%s'], %s)`,
		domain.AttrRole, domain.AttrContent, domain.AttrSessionID,
		domain.AttrToolName, domain.AttrToolInput, domain.AttrToolResult,
		table, domain.AttrSessionID, placeholder,
	)
}

// unixNano accepts both quoted and bare 64-bit integers, since JSONEachRow
// quotes them by default.
type unixNano int64

func (n *unixNano) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("clickhouse: timestamp %s: %w", b, err)
	}
	*n = unixNano(v)
	return nil
}

type jsonRow struct {
	TSNano     unixNano `json:"ts_nano"`
	Role       string   `json:"role"`
	Content    string   `json:"content"`
	SessionID  string   `json:"session_id"`
	ToolName   string   `json:"tool_name"`
	ToolInput  string   `json:"tool_input"`
	ToolResult string   `json:"tool_result"`
}

func (r *jsonRow) logRow() domain.LogRow {
	return domain.LogRow{
		Timestamp:  time.Unix(0, int64(r.TSNano)).UTC(),
		Role:       r.Role,
		Content:    r.Content,
		SessionID:  r.SessionID,
		ToolName:   r.ToolName,
		ToolInput:  domain.RawPayload(r.ToolInput),
		ToolResult: domain.RawPayload(r.ToolResult),
	}
}

// parseJSONEachRow decodes one row per line. When truncated is set the final
// line may be cut short and is dropped; other undecodable lines are skipped
// with a warning.
func parseJSONEachRow(out []byte, truncated bool) []domain.LogRow {
	if truncated {
		if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
			out = out[:i]
		} else {
			out = nil
		}
	}

	var rows []domain.LogRow
	for line := range bytes.SplitSeq(out, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var jr jsonRow
		if err := json.Unmarshal(line, &jr); err != nil {
			log.Warn().Err(err).Int("bytes", len(line)).Msg("clickhouse: skipping undecodable row")
			continue
		}
		rows = append(rows, jr.logRow())
	}
	return rows
}

// cappedBuffer keeps at most max bytes and silently discards the rest, so the
// producing process can run to completion.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func newCappedBuffer(maxBytes int64) *cappedBuffer {
	if maxBytes <= 0 {
		maxBytes = domain.DefaultMaxQueryBytes
	}
	return &cappedBuffer{max: maxBytes}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.max - int64(c.buf.Len())
	switch {
	case room <= 0:
		c.truncated = true
	case int64(len(p)) > room:
		c.buf.Write(p[:room])
		c.truncated = true
	default:
		c.buf.Write(p)
	}
	return len(p), nil
}
