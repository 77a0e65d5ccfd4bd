// Package tools serves the demo agent's MCP tools over stdio.
package tools

import (
	"fmt"
	"math"
	"strconv"
)

// Calculator operations.
const (
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpMultiply = "multiply"
	OpDivide   = "divide"
)

// CalculatorInput is the argument object of the calculator tool.
type CalculatorInput struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

// CalculatorOutput carries either Result and Expression, or Error.
type CalculatorOutput struct {
	Result     *float64 `json:"result,omitempty"`
	Expression string   `json:"expression,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Calculate applies in.Operation to the operands. Failures are reported in
// the output so the model can read them.
func Calculate(in CalculatorInput) CalculatorOutput {
	var r float64
	switch in.Operation {
	case OpAdd:
		r = in.A + in.B
	case OpSubtract:
		r = in.A - in.B
	case OpMultiply:
		r = in.A * in.B
	case OpDivide:
		if in.B == 0 {
			return CalculatorOutput{Error: "Division by zero"}
		}
		r = in.A / in.B
	default:
		return CalculatorOutput{Error: fmt.Sprintf("Unknown operation: %s", in.Operation)}
	}

	if math.IsInf(r, 0) || math.IsNaN(r) {
		return CalculatorOutput{Error: "Result is not a finite number"}
	}

	return CalculatorOutput{
		Result:     &r,
		Expression: fmt.Sprintf("%s %s %s = %s", formatNumber(in.A), in.Operation, formatNumber(in.B), formatNumber(r)),
	}
}

func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
