package core

import (
	"context"
	"fmt"
	"time"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// Executor runs validated invocations under a hard timeout. The tool runs
// in its own goroutine; a completion arriving after the deadline is
// discarded, never surfaced as a late success.
type Executor struct {
	defaultTimeout time.Duration
}

// NewExecutor builds an executor with the configured default timeout.
// Individual tools may declare a shorter or longer one.
func NewExecutor(defaultTimeout time.Duration) *Executor {
	return &Executor{defaultTimeout: defaultTimeout}
}

func (e *Executor) timeoutFor(tool *tools.Tool) time.Duration {
	if tool.Timeout > 0 {
		return tool.Timeout
	}
	return e.defaultTimeout
}

// Execute runs the tool with the validated parameter set. The scope is
// released on every exit path. Only sanitized values reach the tool and the
// audit record.
func (e *Executor) Execute(ctx context.Context, tool *tools.Tool, validated *ValidationResult, scope *ExecutionScope) *tools.ToolResult {
	defer scope.Release()

	result := &tools.ToolResult{
		ToolName:    tool.Name,
		AuditFields: auditFields(validated.Params),
	}

	// Execution never bypasses validation, even if a caller hands over a
	// failed result directly.
	if !validated.Valid {
		result.Error = fmt.Errorf("%w: %s", ErrValidation, validated.UserMessage)
		return result
	}
	if err := scope.Acquire(); err != nil {
		result.Error = err
		return result
	}

	timeout := e.timeoutFor(tool)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scope.Note(fmt.Sprintf("invoke %s timeout=%s", tool.Name, timeout))
	logging.Executor("Executing %s (timeout=%s, scope=%s)", tool.Name, timeout, scope.ID)
	logging.AuditWithRequest(scope.RequestID).Log(logging.AuditEvent{
		EventType: logging.AuditToolInvoke,
		Category:  "executor",
		Tool:      tool.Name,
		Resource:  tool.ResourceKey(),
		Success:   true,
		Sanitized: true,
	})

	type outcome struct {
		output string
		err    error
	}
	// Buffered so a post-timeout completion is dropped without leaking the
	// goroutine.
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		output, err := tool.Execute(runCtx, validated.Params.Args())
		done <- outcome{output: output, err: err}
	}()

	select {
	case out := <-done:
		result.DurationMs = time.Since(start).Milliseconds()
		result.Output = out.output
		if out.err != nil {
			result.Error = fmt.Errorf("%w: %v", ErrExecution, out.err)
		}

	case <-runCtx.Done():
		result.DurationMs = time.Since(start).Milliseconds()
		if ctx.Err() != nil {
			// Caller cancellation, not a tool timeout.
			result.Error = ctx.Err()
		} else {
			result.TimedOut = true
			result.Error = fmt.Errorf("%w: %s after %s", ErrTimeout, tool.Name, timeout)
		}
		scope.Note("result discarded: deadline exceeded")
	}

	logging.AuditWithRequest(scope.RequestID).ToolExec(
		tool.Name, tool.ResourceKey(), result.DurationMs, result.IsSuccess(), errString(result.Error), result.TimedOut)
	return result
}

// auditFields renders sanitized parameter values for the audit record.
// Values are clipped so the record never balloons.
func auditFields(params ParameterSet) map[string]string {
	const clip = 80
	out := make(map[string]string, len(params))
	for name, p := range params {
		if p.Source == SourceMissing {
			continue
		}
		v := fmt.Sprintf("%v", p.Value())
		if len(v) > clip {
			v = v[:clip] + "..."
		}
		out[name] = v
	}
	return out
}
