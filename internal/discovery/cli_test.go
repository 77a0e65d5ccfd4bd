package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePS(t *testing.T) {
	t.Parallel()

	out := strings.Join([]string{
		"c0ffee000001\tclickstack-all-in-one\tclickhouse/clickstack-all-in-one",
		"",
		"beef00000002\tlogs,logs-alias\tregistry.local/logs:1",
		"dead00000003",
	}, "\n")

	got := parsePS(strings.NewReader(out))

	require.Len(t, got, 3)
	assert.Equal(t, Container{
		ID:    "c0ffee000001",
		Names: []string{"clickstack-all-in-one"},
		Image: "clickhouse/clickstack-all-in-one",
	}, got[0])
	assert.Equal(t, []string{"logs", "logs-alias"}, got[1].Names)
	assert.Equal(t, "dead00000003", got[2].ID)
	assert.Empty(t, got[2].Names)
}

func TestNewCLIBackend_DefaultBinary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "docker", NewCLIBackend("").bin)
	assert.Equal(t, "podman", NewCLIBackend("podman").bin)
}
