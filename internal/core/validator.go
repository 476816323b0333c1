package core

import (
	"fmt"
	"sort"
	"strings"

	"toolgate/internal/config"
	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// ValidationResult is the outcome of the single validate() authority.
// Valid is forced false whenever any critical issue exists, regardless of
// mode. Params carries sanitized copies; raw values are never mutated.
type ValidationResult struct {
	Valid       bool
	Issues      []SecurityIssue
	Params      ParameterSet
	Severity    Severity // highest severity across issues
	UserMessage string   // scrubbed, safe to display
	CacheHit    bool
}

// Detail joins full technical issue descriptions for the audit record.
func (r *ValidationResult) Detail() string {
	parts := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		parts = append(parts, fmt.Sprintf("[%s/%s] %s: %s", issue.Category, issue.Severity, issue.Parameter, issue.Detail))
	}
	return strings.Join(parts, "; ")
}

// SanitizedCount returns how many issues sanitization resolved.
func (r *ValidationResult) SanitizedCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Sanitized {
			n++
		}
	}
	return n
}

// ValidationContext carries per-call validation inputs. DryRun changes
// nothing about the checks; it exists so audit records can tell the two
// surfaces apart.
type ValidationContext struct {
	RequestID string
	DryRun    bool
}

// Validator is the unified validation authority. Dry-run and execution both
// go through Validate; there is no second path.
type Validator struct {
	mode         config.ValidationMode
	maxStringLen int
	fanOutLimit  int
	cache        *validationCache
}

// NewValidator builds a validator from configuration. A zero cache TTL
// disables caching.
func NewValidator(cfg *config.Config, clock Clock) *Validator {
	return &Validator{
		mode:         cfg.Validation.Mode,
		maxStringLen: cfg.Validation.MaxStringLen,
		fanOutLimit:  cfg.Validation.FanOutLimit,
		cache:        newValidationCache(cfg.CacheTTL(), clock),
	}
}

// Validate runs the four validation steps in order. Every step always runs
// and its findings accumulate; nothing short-circuits, so one call reports
// everything wrong with the invocation.
func (v *Validator) Validate(tool *tools.Tool, params ParameterSet, vctx ValidationContext) *ValidationResult {
	key := cacheKey(tool.Name, params)
	if cached, ok := v.cache.get(key); ok {
		logging.ValidateDebug("Cache hit for %s", tool.Name)
		hit := *cached
		hit.CacheHit = true
		return &hit
	}

	result := &ValidationResult{
		Valid:    true,
		Params:   make(ParameterSet, len(params)),
		Severity: SeverityInfo,
	}
	for name, p := range params {
		result.Params[name] = p
	}

	result.Issues = append(result.Issues, v.checkSchema(tool, result.Params)...)
	result.Issues = append(result.Issues, v.scanSecurity(result.Params)...)
	result.Issues = append(result.Issues, v.sanitize(result.Params)...)
	result.Issues = append(result.Issues, v.checkFanOut(result.Params)...)

	v.applyMode(result)
	v.finalize(tool, result, vctx)

	v.cache.put(key, result)
	return result
}

// checkSchema verifies required parameters are present and typed correctly,
// and applies schema defaults for absent optional parameters.
func (v *Validator) checkSchema(tool *tools.Tool, params ParameterSet) []SecurityIssue {
	var issues []SecurityIssue

	for _, name := range tool.Schema.Required {
		p, ok := params[name]
		if !ok || p.Source == SourceMissing || p.Raw == nil {
			issues = append(issues, SecurityIssue{
				Category:  IssueSchema,
				Severity:  SeverityError,
				Parameter: name,
				Detail:    "required parameter missing",
			})
		}
	}

	for name, prop := range tool.Schema.Properties {
		p, ok := params[name]
		if !ok || p.Source == SourceMissing {
			if prop.Default != nil {
				params[name] = Parameter{Raw: prop.Default, Source: SourceDefault}
			}
			continue
		}
		if p.Raw == nil {
			continue
		}
		if !typeMatches(prop.Type, p.Raw) {
			issues = append(issues, SecurityIssue{
				Category:  IssueSchema,
				Severity:  SeverityError,
				Parameter: name,
				Detail:    fmt.Sprintf("expected %s, got %T", prop.Type, p.Raw),
			})
			continue
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, p.Raw) {
			issues = append(issues, SecurityIssue{
				Category:  IssueSchema,
				Severity:  SeverityError,
				Parameter: name,
				Detail:    fmt.Sprintf("value %v not in enum", p.Raw),
			})
		}
	}

	// Parameters the schema does not declare are kept and flagged; they are
	// still scanned and sanitized like every other value.
	for _, name := range sortedNames(params) {
		if _, declared := tool.Schema.Properties[name]; !declared {
			issues = append(issues, SecurityIssue{
				Category:  IssueSchema,
				Severity:  SeverityWarning,
				Parameter: name,
				Detail:    "unexpected parameter",
			})
		}
	}
	return issues
}

// scanSecurity runs every pattern against every string value, raw side.
func (v *Validator) scanSecurity(params ParameterSet) []SecurityIssue {
	var issues []SecurityIssue
	for _, name := range sortedNames(params) {
		p := params[name]
		s, ok := p.Raw.(string)
		if !ok {
			continue
		}
		issues = append(issues, scanString(name, s)...)
	}
	return issues
}

// sanitize produces cleaned copies for string parameters. In strict mode the
// copy is discarded and each change becomes a rejection instead.
func (v *Validator) sanitize(params ParameterSet) []SecurityIssue {
	var issues []SecurityIssue
	for _, name := range sortedNames(params) {
		p := params[name]
		s, ok := p.Raw.(string)
		if !ok {
			continue
		}
		clean, changes := sanitizeString(name, s, v.maxStringLen)
		if len(changes) == 0 {
			continue
		}

		if v.mode == config.ModeStrict {
			for i := range changes {
				changes[i].Sanitized = false
				if !changes[i].Severity.AtLeast(SeverityError) {
					changes[i].Severity = SeverityError
				}
				changes[i].Detail += " (rejected under strict mode)"
			}
		} else {
			p.Sanitized = clean
			params[name] = p
		}
		issues = append(issues, changes...)
	}
	return issues
}

// checkFanOut counts entries in slice-valued parameters; a request must not
// expand into more sub-operations than the configured limit.
func (v *Validator) checkFanOut(params ParameterSet) []SecurityIssue {
	var issues []SecurityIssue
	for _, name := range sortedNames(params) {
		p := params[name]
		n := 0
		switch vals := p.Raw.(type) {
		case []any:
			n = len(vals)
		case []string:
			n = len(vals)
		}
		if n > v.fanOutLimit {
			issues = append(issues, SecurityIssue{
				Category:  IssueFanOut,
				Severity:  SeverityError,
				Parameter: name,
				Detail:    fmt.Sprintf("%d entries exceeds fan-out limit %d", n, v.fanOutLimit),
			})
		}
	}
	return issues
}

// applyMode adjusts severities per the configured mode. Permissive
// downgrades warnings to info but never touches critical findings.
func (v *Validator) applyMode(result *ValidationResult) {
	if v.mode != config.ModePermissive {
		return
	}
	for i := range result.Issues {
		if result.Issues[i].Severity == SeverityWarning {
			result.Issues[i].Severity = SeverityInfo
		}
	}
}

// finalize computes validity, the max severity, and the scrubbed user
// message, then writes the audit record with full detail.
func (v *Validator) finalize(tool *tools.Tool, result *ValidationResult, vctx ValidationContext) {
	for _, issue := range result.Issues {
		if issue.Severity.AtLeast(result.Severity) {
			result.Severity = issue.Severity
		}
		if issue.Severity.AtLeast(SeverityError) && !issue.Sanitized {
			result.Valid = false
		}
		// Critical always blocks, sanitized or not.
		if issue.Severity.AtLeast(SeverityCritical) {
			result.Valid = false
		}
	}

	result.UserMessage = buildUserMessage(result)
	logging.Validate("Validated %s: valid=%v issues=%d dry_run=%v", tool.Name, result.Valid, len(result.Issues), vctx.DryRun)
	logging.AuditWithRequest(vctx.RequestID).ValidationOutcome(
		tool.Name, result.Valid, string(result.Severity), result.Detail(), result.SanitizedCount())
}

// buildUserMessage groups issues by category and emits one fixed sentence
// per category. Parameter values never appear here.
func buildUserMessage(result *ValidationResult) string {
	if result.Valid && len(result.Issues) == 0 {
		return ""
	}
	seen := make(map[IssueCategory]bool)
	var cats []IssueCategory
	for _, issue := range result.Issues {
		if issue.Sanitized || !issue.Severity.AtLeast(SeverityWarning) {
			continue
		}
		if !seen[issue.Category] {
			seen[issue.Category] = true
			cats = append(cats, issue.Category)
		}
	}
	if len(cats) == 0 {
		if !result.Valid {
			return "Input could not be validated"
		}
		return ""
	}
	msgs := make([]string, 0, len(cats))
	for _, cat := range cats {
		msgs = append(msgs, userMessageFor(cat))
	}
	return strings.Join(msgs, "; ")
}

func sortedNames(params ParameterSet) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "", "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
