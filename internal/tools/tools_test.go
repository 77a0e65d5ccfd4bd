package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/trajlog/internal/tools"
)

// ---------------------------------------------------------------------------
// Calculate
// ---------------------------------------------------------------------------

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       tools.CalculatorInput
		want     float64
		wantExpr string
		wantErr  string
	}{
		{name: "add", in: tools.CalculatorInput{Operation: "add", A: 2, B: 2}, want: 4, wantExpr: "2 add 2 = 4"},
		{name: "subtract", in: tools.CalculatorInput{Operation: "subtract", A: 10, B: 15}, want: -5, wantExpr: "10 subtract 15 = -5"},
		{name: "multiply", in: tools.CalculatorInput{Operation: "multiply", A: 15, B: 7}, want: 105, wantExpr: "15 multiply 7 = 105"},
		{name: "divide", in: tools.CalculatorInput{Operation: "divide", A: 7, B: 2}, want: 3.5, wantExpr: "7 divide 2 = 3.5"},
		{name: "fractional operands", in: tools.CalculatorInput{Operation: "add", A: 0.5, B: 0.25}, want: 0.75, wantExpr: "0.5 add 0.25 = 0.75"},
		{name: "zero result", in: tools.CalculatorInput{Operation: "multiply", A: -3, B: 0}, want: 0, wantExpr: "-3 multiply 0 = 0"},
		{name: "division by zero", in: tools.CalculatorInput{Operation: "divide", A: 1, B: 0}, wantErr: "Division by zero"},
		{name: "unknown operation", in: tools.CalculatorInput{Operation: "modulo", A: 1, B: 2}, wantErr: "Unknown operation: modulo"},
		{name: "overflow", in: tools.CalculatorInput{Operation: "multiply", A: 1e308, B: 10}, wantErr: "Result is not a finite number"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tools.Calculate(tc.in)
			if tc.wantErr != "" {
				assert.Equal(t, tc.wantErr, got.Error)
				assert.Nil(t, got.Result)
				assert.Empty(t, got.Expression)
				return
			}
			require.NotNil(t, got.Result)
			assert.InDelta(t, tc.want, *got.Result, 1e-12)
			assert.Equal(t, tc.wantExpr, got.Expression)
			assert.Empty(t, got.Error)
		})
	}
}

func TestCalculate_DivisionByZeroEncoding(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(tools.Calculate(tools.CalculatorInput{Operation: "divide", A: 5, B: 0}))
	require.NoError(t, err)
	assert.Equal(t, `{"error":"Division by zero"}`, string(b))
}

// ---------------------------------------------------------------------------
// MCP server
// ---------------------------------------------------------------------------

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := tools.NewServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

func callText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestServer_ListsCalculator(t *testing.T) {
	t.Parallel()

	cs := connect(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, res.Tools, 1)
	assert.Equal(t, tools.CalculatorName, res.Tools[0].Name)
	assert.Contains(t, res.Tools[0].Description, "add, subtract, multiply, divide")
}

func TestServer_CallCalculator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "multiply",
			args: map[string]any{"operation": "multiply", "a": 15, "b": 7},
			want: `{"result":105,"expression":"15 multiply 7 = 105"}`,
		},
		{
			name: "division by zero",
			args: map[string]any{"operation": "divide", "a": 1, "b": 0},
			want: `{"error":"Division by zero"}`,
		},
	}

	cs := connect(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: tools.CalculatorName, Arguments: tc.args})
			require.NoError(t, err)

			assert.False(t, res.IsError)
			assert.Equal(t, tc.want, callText(t, res))
		})
	}
}

func TestServer_RejectsUnknownOperation(t *testing.T) {
	t.Parallel()

	cs := connect(t)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      tools.CalculatorName,
		Arguments: map[string]any{"operation": "modulo", "a": 1, "b": 2},
	})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Agent wiring
// ---------------------------------------------------------------------------

func TestQualifiedName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "mcp__demo-tools__calculator", tools.QualifiedName(tools.CalculatorName))
}

func TestMCPConfig(t *testing.T) {
	t.Parallel()

	cfg, err := tools.MCPConfig("/usr/local/bin/trajlog-demo")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mcpServers":{"demo-tools":{"type":"stdio","command":"/usr/local/bin/trajlog-demo","args":["mcp"]}}}`, cfg)

	_, err = tools.MCPConfig("")
	assert.Error(t, err)
}
