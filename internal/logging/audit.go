package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	// Selection events
	AuditToolSelect    AuditEventType = "tool_select"
	AuditToolAmbiguous AuditEventType = "tool_ambiguous"

	// Inference events
	AuditParamsInferred AuditEventType = "params_inferred"

	// Validation events
	AuditValidatePass  AuditEventType = "validate_pass"
	AuditValidateBlock AuditEventType = "validate_block"
	AuditSanitize      AuditEventType = "sanitize"

	// Execution events
	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"
	AuditToolTimeout  AuditEventType = "tool_timeout"

	// Breaker events
	AuditBreakerOpen   AuditEventType = "breaker_open"
	AuditBreakerProbe  AuditEventType = "breaker_probe"
	AuditBreakerClose  AuditEventType = "breaker_close"
	AuditBreakerReject AuditEventType = "breaker_reject"

	// Recovery events
	AuditRecoveryAttempt AuditEventType = "recovery_attempt"
	AuditRecoveryResult  AuditEventType = "recovery_result"

	// Error manager events
	AuditErrorRecord AuditEventType = "error_record"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is a structured audit log entry, written as one JSON line.
// Message may contain full technical detail (raw parameter values included)
// unless Sanitized is true, in which case every value field has been scrubbed.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`        // Unix milliseconds
	EventType  AuditEventType         `json:"event"`     //
	Category   string                 `json:"cat"`       // error/log category
	Severity   string                 `json:"sev"`       // info..fatal
	RequestID  string                 `json:"req"`       // request correlation
	Tool       string                 `json:"tool"`      // tool name if applicable
	Resource   string                 `json:"resource"`  // backing resource
	Success    bool                   `json:"success"`   //
	DurationMs int64                  `json:"dur_ms"`    //
	Error      string                 `json:"error"`     // technical error detail
	Message    string                 `json:"msg"`       // human-readable message
	Sanitized  bool                   `json:"sanitized"` // value fields scrubbed
	Fields     map[string]interface{} `json:"fields"`    //
}

// AuditSink receives every audit event in addition to the JSON-lines file.
// The store package registers a SQLite-backed sink here.
type AuditSink interface {
	Record(event AuditEvent)
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditSinks  []AuditSink
	auditLogger = &AuditLogger{}
)

// AuditLogger writes structured audit events, optionally scoped to a request.
type AuditLogger struct {
	requestID string
}

// InitAudit opens the audit log file. Requires debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // already initialized
	}

	mu.RLock()
	dir := opts.Dir
	mu.RUnlock()

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// RegisterAuditSink adds a sink that receives every audit event.
func RegisterAuditSink(sink AuditSink) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditSinks = append(auditSinks, sink)
}

// ClearAuditSinks removes all registered sinks. Used on shutdown and in tests.
func ClearAuditSinks() {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditSinks = nil
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	return auditLogger
}

// AuditWithRequest returns an audit logger scoped to a request.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event to the file and all registered sinks.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		if data, err := json.Marshal(event); err == nil {
			auditFile.WriteString(string(data) + "\n")
		}
	}
	for _, sink := range auditSinks {
		sink.Record(event)
	}
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// ToolSelected logs a selection decision.
func (a *AuditLogger) ToolSelected(tool string, confidence float64, ambiguous bool) {
	eventType := AuditToolSelect
	if ambiguous {
		eventType = AuditToolAmbiguous
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  "selector",
		Tool:      tool,
		Success:   !ambiguous,
		Fields:    map[string]interface{}{"confidence": confidence},
		Message:   fmt.Sprintf("Tool selected: %s (%.2f, ambiguous=%v)", tool, confidence, ambiguous),
	})
}

// ParamsInferred logs which parameters were inferred and from which sources.
func (a *AuditLogger) ParamsInferred(tool string, sources map[string]string) {
	fields := make(map[string]interface{}, len(sources))
	for k, v := range sources {
		fields[k] = v
	}
	a.Log(AuditEvent{
		EventType: AuditParamsInferred,
		Category:  "inference",
		Tool:      tool,
		Success:   true,
		Fields:    fields,
		Message:   fmt.Sprintf("Parameters inferred for %s (%d params)", tool, len(sources)),
	})
}

// ValidationOutcome logs a validation result. Detail carries full technical
// issue descriptions and stays out of user-visible output.
func (a *AuditLogger) ValidationOutcome(tool string, valid bool, severity, detail string, sanitizedCount int) {
	eventType := AuditValidatePass
	if !valid {
		eventType = AuditValidateBlock
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  "validation",
		Severity:  severity,
		Tool:      tool,
		Success:   valid,
		Error:     detail,
		Fields:    map[string]interface{}{"sanitized_params": sanitizedCount},
		Message:   fmt.Sprintf("Validation %s for %s", map[bool]string{true: "passed", false: "blocked"}[valid], tool),
	})
}

// ToolExec logs tool execution completion (or timeout/error).
func (a *AuditLogger) ToolExec(tool, resource string, durationMs int64, success bool, errMsg string, timedOut bool) {
	eventType := AuditToolComplete
	switch {
	case timedOut:
		eventType = AuditToolTimeout
	case !success:
		eventType = AuditToolError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Category:   "executor",
		Tool:       tool,
		Resource:   resource,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Sanitized:  true,
		Message:    fmt.Sprintf("Tool %s: %dms success=%v", tool, durationMs, success),
	})
}

// BreakerTransition logs a circuit breaker state change or rejection.
func (a *AuditLogger) BreakerTransition(eventType AuditEventType, tool, resource string, coolDownMs int64) {
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  "recovery",
		Tool:      tool,
		Resource:  resource,
		Success:   eventType == AuditBreakerClose,
		Fields:    map[string]interface{}{"cool_down_ms": coolDownMs},
		Message:   fmt.Sprintf("Breaker %s: %s/%s", eventType, tool, resource),
	})
}

// RecoveryAttempt logs a recovery strategy attempt and its outcome.
func (a *AuditLogger) RecoveryAttempt(strategy, category string, attempt int, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditRecoveryResult,
		Category:  category,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"strategy": strategy, "attempt": attempt},
		Message:   fmt.Sprintf("Recovery %s attempt %d: success=%v", strategy, attempt, success),
	})
}

// ErrorRecorded logs an error manager record with full technical detail.
func (a *AuditLogger) ErrorRecorded(category, severity, technical string) {
	a.Log(AuditEvent{
		EventType: AuditErrorRecord,
		Category:  category,
		Severity:  severity,
		Success:   false,
		Error:     technical,
		Message:   fmt.Sprintf("Error recorded: %s/%s", category, severity),
	})
}
