// Package tool implements the function calling subsystem that exposes the
// negotiation protocol surface to LLM-driven agents as schema validated,
// never-panicking tools with consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentcal/internal/util"
	"github.com/hupe1980/agentcal/logging"
)

// Tool defines a structured capability an external agent may invoke.
//
// The tool boundary is the engine's protection against adversarial or buggy
// remote callers: implementations must never panic across Call and must
// report domain failures as data in the result payload, reserving the error
// return for schema-level problems (malformed arguments).
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Be safe for concurrent use by multiple goroutines
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]interface{}

	// Call executes the tool with structured arguments.
	// Arguments are parsed from JSON and validated against the tool's schema.
	Call(toolCtx *Context, args map[string]interface{}) (interface{}, error)
}

// Context carries per-invocation metadata into a tool: the request context,
// a call identifier for correlating logs, and the identity of the calling
// agent as asserted by the transport.
type Context struct {
	ctx    context.Context
	callID string
	caller string
	logger logging.Logger
}

// NewContext constructs a tool invocation context. A nil logger is replaced
// with a NoOpLogger.
func NewContext(ctx context.Context, callID, caller string, logger logging.Logger) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{ctx: ctx, callID: callID, caller: caller, logger: logger}
}

// Context returns the context associated with the tool invocation.
func (tc *Context) Context() context.Context { return tc.ctx }

// CallID returns the call identifier correlating model request and tool execution.
func (tc *Context) CallID() string { return tc.callID }

// Caller returns the identity of the invoking agent, or "" when unknown.
func (tc *Context) Caller() string { return tc.caller }

// Logger returns the logger associated with the tool invocation.
func (tc *Context) Logger() logging.Logger { return tc.logger }

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
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
