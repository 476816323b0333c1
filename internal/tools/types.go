// Package tools provides the tool registry that the pipeline selects from
// and executes against.
//
// Each tool declares its trigger phrases, command prefix, parameter schema,
// and backing resource. The pipeline owns selection, inference, validation,
// and timeboxing; tools only implement the business logic behind Execute.
package tools

import (
	"context"
	"time"
)

// ParameterClass tags a parameter so the inferencer knows which extraction
// rule table applies to it.
type ParameterClass string

const (
	ClassFilePath      ParameterClass = "file_path"
	ClassDirectoryPath ParameterClass = "directory_path"
	ClassGlobPattern   ParameterClass = "glob_pattern"
	ClassQuotedLiteral ParameterClass = "quoted_literal"
	ClassCommandIntent ParameterClass = "command_intent"
	ClassSearchPattern ParameterClass = "search_pattern"
	ClassSizeFilter    ParameterClass = "size_filter"
	ClassFreeText      ParameterClass = "free_text"
)

// Property describes a single parameter in a tool schema.
type Property struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
	// Class selects the inference rule table for this parameter.
	Class ParameterClass `json:"class,omitempty" yaml:"class,omitempty"`
}

// ToolSchema defines the expected parameters for a tool.
type ToolSchema struct {
	Required   []string            `json:"required" yaml:"required"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
}

// ExecuteFunc is the signature for tool execution. Args have already been
// validated and sanitized by the pipeline.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a gated tool.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	Description string

	// TriggerPhrases are keywords and phrases the selector scores against.
	TriggerPhrases []string

	// CommandPrefix gives an exact-match fast path, e.g. "/search".
	CommandPrefix string

	// Resource names the backing resource the breaker keys on
	// (e.g. "filesystem", "subprocess"). Empty means the tool itself.
	Resource string

	// Schema defines the expected parameters.
	Schema ToolSchema

	// Execute runs the tool with validated arguments.
	Execute ExecuteFunc

	// Priority breaks selection ties. Higher wins (default 50).
	Priority int

	// Timeout overrides the executor's default per-invocation timeout.
	Timeout time.Duration
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	for _, req := range t.Schema.Required {
		if _, ok := t.Schema.Properties[req]; !ok {
			return ErrSchemaRequiredUnknown
		}
	}
	return nil
}

// ResourceKey returns the breaker key for this tool.
func (t *Tool) ResourceKey() string {
	if t.Resource != "" {
		return t.Resource
	}
	return t.Name
}

// ToolResult wraps the result of tool execution with audit metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Output is the string output from the tool.
	Output string

	// Error is set if the tool failed.
	Error error

	// TimedOut is set when the invocation hit the hard timeout.
	TimedOut bool

	// DurationMs is how long execution took.
	DurationMs int64

	// AuditFields carries sanitized parameter values for the audit record.
	AuditFields map[string]string
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil && !r.TimedOut
}
