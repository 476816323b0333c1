package core

import (
	"fmt"
	"regexp"
	"strings"

	"toolgate/internal/logging"
)

// IssueCategory classifies a validation issue.
type IssueCategory string

const (
	IssueSchema    IssueCategory = "schema"
	IssueInjection IssueCategory = "injection"
	IssueScript    IssueCategory = "script"
	IssueSQL       IssueCategory = "sql"
	IssueEval      IssueCategory = "eval"
	IssueTraversal IssueCategory = "traversal"
	IssueLength    IssueCategory = "length"
	IssueFanOut    IssueCategory = "fan_out"
)

// SecurityIssue is one finding from the validation scan. Detail may contain
// the offending value and belongs in the audit record only; user-visible
// messages are built separately and scrubbed.
type SecurityIssue struct {
	Category  IssueCategory
	Severity  Severity
	Parameter string
	Detail    string
	Sanitized bool // true when sanitization resolved the issue
}

// Scan patterns. Command injection and script/SQL/eval patterns come first;
// order matters only for reporting, every pattern always runs.
var (
	shellMetaPattern = regexp.MustCompile("[;&|`$]")
	scriptPattern    = regexp.MustCompile(`(?i)<\s*script|javascript\s*:`)
	sqlPattern       = regexp.MustCompile(`(?i)\b(union\s+select|drop\s+table|insert\s+into|delete\s+from|update\s+\w+\s+set)\b`)
	evalPattern      = regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`)
	traversalPattern = regexp.MustCompile(`\.\.[/\\]`)
	controlPattern   = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// scanString runs every security pattern against a string parameter value.
// Shell metacharacters are critical in every field: any parameter can end up
// interpolated into a command downstream, and escaping cannot make such a
// value safe.
func scanString(param, value string) []SecurityIssue {
	var issues []SecurityIssue

	if shellMetaPattern.MatchString(value) {
		issues = append(issues, SecurityIssue{
			Category:  IssueInjection,
			Severity:  SeverityCritical,
			Parameter: param,
			Detail:    fmt.Sprintf("shell metacharacters in %q", value),
		})
	}
	if scriptPattern.MatchString(value) {
		issues = append(issues, SecurityIssue{
			Category:  IssueScript,
			Severity:  SeverityCritical,
			Parameter: param,
			Detail:    fmt.Sprintf("script injection pattern in %q", value),
		})
	}
	if sqlPattern.MatchString(value) {
		issues = append(issues, SecurityIssue{
			Category:  IssueSQL,
			Severity:  SeverityError,
			Parameter: param,
			Detail:    fmt.Sprintf("SQL keywords in %q", value),
		})
	}
	if evalPattern.MatchString(value) {
		issues = append(issues, SecurityIssue{
			Category:  IssueEval,
			Severity:  SeverityCritical,
			Parameter: param,
			Detail:    fmt.Sprintf("eval/exec call in %q", value),
		})
	}
	if traversalPattern.MatchString(value) {
		issues = append(issues, SecurityIssue{
			Category:  IssueTraversal,
			Severity:  SeverityError,
			Parameter: param,
			Detail:    fmt.Sprintf("path traversal sequence in %q", value),
		})
	}

	if len(issues) > 0 {
		logging.ValidateDebug("Security scan: %d issue(s) on %s", len(issues), param)
	}
	return issues
}

// sanitizeString returns a cleaned copy of a string value. The original is
// never modified. Control characters are stripped and the result is truncated
// to maxLen. Shell metacharacters are never escaped into a clean-looking
// copy; the scan rejects those values outright. Returns the copy plus the
// issues describing what changed.
func sanitizeString(param, value string, maxLen int) (string, []SecurityIssue) {
	var issues []SecurityIssue
	out := value

	if controlPattern.MatchString(out) {
		out = controlPattern.ReplaceAllString(out, "")
		issues = append(issues, SecurityIssue{
			Category:  IssueInjection,
			Severity:  SeverityInfo,
			Parameter: param,
			Detail:    "control characters stripped",
			Sanitized: true,
		})
	}

	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen]
		issues = append(issues, SecurityIssue{
			Category:  IssueLength,
			Severity:  SeverityWarning,
			Parameter: param,
			Detail:    fmt.Sprintf("value truncated to %d bytes", maxLen),
			Sanitized: true,
		})
	}

	return out, issues
}

// scrubDetail removes paths, quoted values, and other identifiers from an
// issue detail so it can appear in a user-visible message.
var quotedValuePattern = regexp.MustCompile(`"[^"]*"`)

func scrubDetail(detail string) string {
	return strings.TrimSpace(quotedValuePattern.ReplaceAllString(detail, ""))
}

// userMessageFor maps issue categories to the fixed user-facing phrasing.
// Never includes parameter values.
func userMessageFor(cat IssueCategory) string {
	switch cat {
	case IssueInjection, IssueScript, IssueSQL, IssueEval:
		return "Invalid characters detected in input"
	case IssueTraversal:
		return "Path references outside the allowed scope"
	case IssueLength:
		return "Input exceeds the maximum allowed length"
	case IssueFanOut:
		return "Request fans out to too many operations"
	case IssueSchema:
		return "Required input is missing or has the wrong type"
	default:
		return "Input could not be validated"
	}
}
