// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with
// schema-validated arguments and consistent error handling.
package tool

import (
	"fmt"
)

// Tool defines the interface for extending agent capabilities with external
// functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool
	// does. It is provided to the model to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with parsed arguments. The Context gives access
	// to session state and to staged control-flow actions (transfer,
	// escalate) that land on the emitted function response event.
	Call(tc *Context, args map[string]any) (any, error)
}

// LongRunner marks tools whose real work completes outside the current
// invocation. A pending call to such a tool parks the invocation instead of
// feeding another model turn.
type LongRunner interface {
	IsLongRunning() bool
}

// IsLongRunning reports whether t declares itself long-running.
func IsLongRunning(t Tool) bool {
	lr, ok := t.(LongRunner)
	return ok && lr.IsLongRunning()
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
