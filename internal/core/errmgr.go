package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"toolgate/internal/logging"
)

// Severity ranks how bad a finding or error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
	SeverityFatal    Severity = "fatal"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
	SeverityFatal:    4,
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// ErrorCategory classifies errors for recovery strategy selection and
// counter buckets.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategorySecurity      ErrorCategory = "security"
	CategoryNetwork       ErrorCategory = "network"
	CategoryResource      ErrorCategory = "resource"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryExecution     ErrorCategory = "execution"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryPermission    ErrorCategory = "permission"
	CategoryUnknown       ErrorCategory = "unknown"
)

// ErrorRecord is the error manager's normalized view of a failure.
// UserMessage is safe to display; TechnicalDetails is audit-only.
type ErrorRecord struct {
	ID               string
	Timestamp        time.Time
	Category         ErrorCategory
	Severity         Severity
	Tool             string
	Resource         string
	RequestID        string
	UserMessage      string
	TechnicalDetails string
	Err              error
}

// ErrorManager classifies failures, keeps per-category and per-severity
// counters, and feeds every record to the audit sink.
type ErrorManager struct {
	mu         sync.Mutex
	byCategory map[ErrorCategory]int
	bySeverity map[Severity]int
	total      int
}

// NewErrorManager creates an error manager with zeroed counters.
func NewErrorManager() *ErrorManager {
	return &ErrorManager{
		byCategory: make(map[ErrorCategory]int),
		bySeverity: make(map[Severity]int),
	}
}

// Record classifies err, builds a record, bumps counters, and audits it.
func (m *ErrorManager) Record(err error, tool, resource, requestID string) *ErrorRecord {
	category, severity := Classify(err)
	rec := &ErrorRecord{
		ID:               uuid.NewString(),
		Timestamp:        time.Now(),
		Category:         category,
		Severity:         severity,
		Tool:             tool,
		Resource:         resource,
		RequestID:        requestID,
		UserMessage:      userMessageForError(category),
		TechnicalDetails: err.Error(),
		Err:              err,
	}

	m.mu.Lock()
	m.byCategory[category]++
	m.bySeverity[severity]++
	m.total++
	m.mu.Unlock()

	logging.Errors("Recorded %s/%s for tool=%s: %v", category, severity, tool, err)
	logging.AuditWithRequest(requestID).ErrorRecorded(string(category), string(severity), rec.TechnicalDetails)
	return rec
}

// Counts returns a snapshot of per-category counters.
func (m *ErrorManager) Counts() map[ErrorCategory]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ErrorCategory]int, len(m.byCategory))
	for k, v := range m.byCategory {
		out[k] = v
	}
	return out
}

// SeverityCounts returns a snapshot of per-severity counters.
func (m *ErrorManager) SeverityCounts() map[Severity]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Severity]int, len(m.bySeverity))
	for k, v := range m.bySeverity {
		out[k] = v
	}
	return out
}

// Total returns the total number of recorded errors.
func (m *ErrorManager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Classify maps an error to its category and severity. Sentinel matches
// first, then message heuristics, then unknown.
func Classify(err error) (ErrorCategory, Severity) {
	switch {
	case errors.Is(err, ErrSecurity):
		return CategorySecurity, SeverityCritical
	case errors.Is(err, ErrValidation):
		return CategoryValidation, SeverityError
	case errors.Is(err, ErrInference), errors.Is(err, ErrAmbiguous):
		return CategoryValidation, SeverityWarning
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout, SeverityError
	case errors.Is(err, ErrCircuitOpen):
		return CategoryResource, SeverityWarning
	case errors.Is(err, ErrExecution):
		return CategoryExecution, SeverityError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "injection") || strings.Contains(msg, "security"):
		return CategorySecurity, SeverityCritical
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied") || strings.Contains(msg, "forbidden"):
		return CategoryPermission, SeverityError
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dns") || strings.Contains(msg, "unreachable"):
		return CategoryNetwork, SeverityError
	case strings.Contains(msg, "no space") || strings.Contains(msg, "too many open files") || strings.Contains(msg, "out of memory") || strings.Contains(msg, "resource"):
		return CategoryResource, SeverityCritical
	case strings.Contains(msg, "config"):
		return CategoryConfiguration, SeverityError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return CategoryTimeout, SeverityError
	}
	return CategoryUnknown, SeverityError
}

// userMessageForError maps a category to a scrubbed user-facing sentence.
func userMessageForError(cat ErrorCategory) string {
	switch cat {
	case CategoryValidation:
		return "The request could not be validated. Check the provided parameters."
	case CategorySecurity:
		return "The request was blocked for safety reasons."
	case CategoryNetwork:
		return "A network problem interrupted the operation. It may succeed if retried."
	case CategoryResource:
		return "A required resource is currently unavailable."
	case CategoryConfiguration:
		return "The tool is misconfigured. Contact the operator."
	case CategoryExecution:
		return "The tool failed while running."
	case CategoryTimeout:
		return "The operation took too long and was stopped."
	case CategoryPermission:
		return "The operation is not permitted in this scope."
	default:
		return "An unexpected error occurred."
	}
}

// Summary renders counters for the stats surface.
func (m *ErrorManager) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.total == 0 {
		return "no errors recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s) recorded\n", m.total)
	for _, cat := range []ErrorCategory{
		CategoryValidation, CategorySecurity, CategoryNetwork, CategoryResource,
		CategoryConfiguration, CategoryExecution, CategoryTimeout,
		CategoryPermission, CategoryUnknown,
	} {
		if n := m.byCategory[cat]; n > 0 {
			fmt.Fprintf(&b, "  %-14s %d\n", cat, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
