package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Server identity as seen by the agent.
const (
	ServerName     = "demo-tools"
	ServerVersion  = "1.0.0"
	CalculatorName = "calculator"
)

// ServeCommand is the trajlog-demo subcommand that runs Serve.
const ServeCommand = "mcp"

var calculatorSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"operation": map[string]any{
			"type":        "string",
			"enum":        []any{OpAdd, OpSubtract, OpMultiply, OpDivide},
			"description": "The arithmetic operation to perform",
		},
		"a": map[string]any{"type": "number", "description": "The first operand"},
		"b": map[string]any{"type": "number", "description": "The second operand"},
	},
	"required": []any{"operation", "a", "b"},
}

// NewServer returns an MCP server exposing the calculator tool.
func NewServer() *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        CalculatorName,
		Description: "A simple calculator that can perform basic arithmetic operations (add, subtract, multiply, divide)",
		InputSchema: calculatorSchema,
	}, calculate)
	return s
}

// Serve speaks MCP on stdin/stdout until the client disconnects or ctx ends.
func Serve(ctx context.Context) error {
	err := NewServer().Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tools.Serve: %w", err)
	}
	return nil
}

// The text content keeps the field order of CalculatorOutput.
func calculate(_ context.Context, _ *mcp.CallToolRequest, in CalculatorInput) (*mcp.CallToolResult, CalculatorOutput, error) {
	out := Calculate(in)
	text, err := json.Marshal(out)
	if err != nil {
		return nil, out, fmt.Errorf("tools.calculate: %w", err)
	}

	log.Debug().Str("operation", in.Operation).RawJSON("output", text).Msg("tools: calculator call")
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(text)}}}, out, nil
}

// QualifiedName is the name the agent uses for a tool of this server.
func QualifiedName(tool string) string {
	return "mcp__" + ServerName + "__" + tool
}

type mcpServerEntry struct {
	Type    string   `json:"type"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// MCPConfig returns the inline --mcp-config JSON that starts this server by
// running executable with the serve subcommand.
func MCPConfig(executable string) (string, error) {
	if executable == "" {
		return "", errors.New("tools.MCPConfig: empty executable path")
	}
	b, err := json.Marshal(map[string]map[string]mcpServerEntry{
		"mcpServers": {
			ServerName: {Type: "stdio", Command: executable, Args: []string{ServeCommand}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("tools.MCPConfig: %w", err)
	}
	return string(b), nil
}
