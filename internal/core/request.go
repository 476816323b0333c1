// Package core implements the request-to-action pipeline: tool selection,
// parameter inference, unified validation, timeboxed execution, and failure
// recovery.
package core

import (
	"time"

	"github.com/google/uuid"
)

// ParameterSource records where a parameter value came from.
type ParameterSource string

const (
	// SourceExplicit means the caller supplied the value directly.
	SourceExplicit ParameterSource = "explicit"
	// SourceInferred means the value was extracted from request text.
	SourceInferred ParameterSource = "inferred"
	// SourceDefault means the schema default was applied.
	SourceDefault ParameterSource = "default"
	// SourceMissing means no value could be determined.
	SourceMissing ParameterSource = "missing"
)

// ToolRequest is the pipeline's input: free text plus any explicit
// parameters the caller already knows.
type ToolRequest struct {
	ID        string
	Text      string
	Explicit  map[string]any
	Timestamp time.Time
}

// NewToolRequest builds a request with a fresh correlation ID.
func NewToolRequest(text string, explicit map[string]any) *ToolRequest {
	return &ToolRequest{
		ID:        uuid.NewString(),
		Text:      text,
		Explicit:  explicit,
		Timestamp: time.Now(),
	}
}

// Parameter is one resolved parameter. Raw holds the value as supplied or
// inferred; Sanitized holds the copy validation produced. Raw is never
// mutated: execution consumes Sanitized.
type Parameter struct {
	Raw       any
	Inferred  any // recorded even when explicit wins, for the audit trail
	Sanitized any
	Source    ParameterSource
}

// Value returns the value execution should use: the sanitized copy when
// present, otherwise the raw value.
func (p Parameter) Value() any {
	if p.Sanitized != nil {
		return p.Sanitized
	}
	return p.Raw
}

// ParameterSet maps parameter names to resolved parameters.
type ParameterSet map[string]Parameter

// Args flattens the set into the map a tool's Execute receives,
// using sanitized values where they exist. Missing parameters are omitted.
func (ps ParameterSet) Args() map[string]any {
	args := make(map[string]any, len(ps))
	for name, p := range ps {
		if p.Source == SourceMissing {
			continue
		}
		args[name] = p.Value()
	}
	return args
}

// Sources returns the name to source map, used for audit records.
func (ps ParameterSet) Sources() map[string]string {
	out := make(map[string]string, len(ps))
	for name, p := range ps {
		out[name] = string(p.Source)
	}
	return out
}

// Missing returns the names of parameters with no resolved value, sorted
// order not guaranteed.
func (ps ParameterSet) Missing() []string {
	var out []string
	for name, p := range ps {
		if p.Source == SourceMissing {
			out = append(out, name)
		}
	}
	return out
}
