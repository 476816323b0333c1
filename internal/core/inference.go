package core

import (
	"fmt"
	"regexp"
	"strings"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// Inferencer extracts parameter values from request text using a fixed,
// ordered rule list per parameter class. First matching rule wins; no rule
// matching means the parameter is missing, never guessed. Pure and
// deterministic, no I/O.
type Inferencer struct{}

// NewInferencer creates the rule-based inferencer.
func NewInferencer() *Inferencer {
	return &Inferencer{}
}

// Infer resolves every parameter the tool's schema declares. Explicit values
// always win; when a rule also matches, its value is recorded on the
// Inferred field for the audit trail but never used.
func (inf *Inferencer) Infer(tool *tools.Tool, text string, explicit map[string]any) ParameterSet {
	params := make(ParameterSet, len(tool.Schema.Properties))

	for name, prop := range tool.Schema.Properties {
		inferred, ok := inferByClass(prop.Class, text)

		if ev, exists := explicit[name]; exists {
			p := Parameter{Raw: ev, Source: SourceExplicit}
			if ok {
				p.Inferred = inferred
			}
			params[name] = p
			continue
		}

		if ok {
			params[name] = Parameter{Raw: inferred, Inferred: inferred, Source: SourceInferred}
		} else {
			params[name] = Parameter{Source: SourceMissing}
		}
	}

	// Explicit values outside the schema are carried through, never silently
	// dropped; the validator flags them as unexpected.
	for name, ev := range explicit {
		if _, declared := tool.Schema.Properties[name]; declared {
			continue
		}
		params[name] = Parameter{Raw: ev, Source: SourceExplicit}
	}

	logging.InferenceDebug("Inferred %d parameter(s) for %s", len(params)-len(params.Missing()), tool.Name)
	return params
}

// MissingRequiredError builds the remediation error for a required
// parameter that could not be inferred.
func MissingRequiredError(tool *tools.Tool, names []string) error {
	return fmt.Errorf("%w: tool %s requires %s; supply the value(s) explicitly",
		ErrInference, tool.Name, strings.Join(names, ", "))
}

// =============================================================================
// RULE TABLES
// =============================================================================

// Each class has an ordered list of extraction rules. Order is part of the
// contract: adding a rule in the middle changes behavior and needs a test.

var (
	doubleQuoted = regexp.MustCompile(`"([^"]+)"`)
	singleQuoted = regexp.MustCompile(`'([^']+)'`)

	globToken     = regexp.MustCompile(`(?:^|\s)(\*[\w.*/-]*|[\w./-]*\*[\w.*/-]*)`)
	extensionRef  = regexp.MustCompile(`(?:^|\s)\.?(\*?\.[a-z0-9]{1,8})(?:\s+files?)?\b`)
	pathToken     = regexp.MustCompile(`(?:^|\s)((?:~?/|\./)?[\w.-]+(?:/[\w.-]+)+)`)
	fileToken     = regexp.MustCompile(`(?:^|\s)([\w-]+\.[a-z0-9]{1,8})\b`)
	dirPrepPhrase = regexp.MustCompile(`(?:\bin|\bunder|\binside|\bwithin)\s+(?:the\s+)?((?:~?/|\./)?[\w.-]+(?:/[\w.-]+)*/?)\s*(?:director(?:y|ies)|folder)?`)
	sizeToken     = regexp.MustCompile(`([<>]=?)\s*(\d+)\s*(b|kb|mb|gb)\b`)
	sizePhrase    = regexp.MustCompile(`\b(larger|bigger|greater|more|over|smaller|less|under)\s+(?:than\s+)?(\d+)\s*(bytes?|kilobytes?|megabytes?|gigabytes?|b|kb|mb|gb)\b`)
	commandVerb   = regexp.MustCompile(`\b(?:run|execute|exec)\s+(.+)$`)
	searchPhrase  = regexp.MustCompile(`\b(?:for|containing|matching|named)\s+([\w.*/-]+)`)

	languageGlobs = []struct {
		keyword string
		glob    string
	}{
		{"python", "*.py"},
		{"golang", "*.go"},
		{"go ", "*.go"},
		{"javascript", "*.js"},
		{"typescript", "*.ts"},
		{"rust", "*.rs"},
		{"java ", "*.java"},
		{"ruby", "*.rb"},
		{"yaml", "*.yaml"},
		{"json", "*.json"},
		{"markdown", "*.md"},
	}
)

// inferByClass applies the ordered rule list for one parameter class.
func inferByClass(class tools.ParameterClass, text string) (any, bool) {
	lower := strings.ToLower(text)

	switch class {
	case tools.ClassGlobPattern:
		return inferGlob(text, lower)
	case tools.ClassSizeFilter:
		return inferSizeFilter(lower)
	case tools.ClassFilePath:
		return inferFilePath(text)
	case tools.ClassDirectoryPath:
		return inferDirectory(text, lower)
	case tools.ClassQuotedLiteral:
		return inferQuoted(text)
	case tools.ClassCommandIntent:
		return inferCommand(text)
	case tools.ClassSearchPattern:
		return inferSearchPattern(text, lower)
	case tools.ClassFreeText:
		if strings.TrimSpace(text) == "" {
			return nil, false
		}
		return strings.TrimSpace(text), true
	}
	return nil, false
}

func inferGlob(text, lower string) (any, bool) {
	// Rule 1: explicit glob token ("*.py", "src/*.go").
	if m := globToken.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	// Rule 2: language name ("python files" -> "*.py").
	for _, lg := range languageGlobs {
		if strings.Contains(lower, lg.keyword) {
			return lg.glob, true
		}
	}
	// Rule 3: bare extension mention (".py files" -> "*.py").
	if m := extensionRef.FindStringSubmatch(lower); m != nil {
		ext := strings.TrimPrefix(m[1], "*")
		return "*" + ext, true
	}
	return nil, false
}

func inferSizeFilter(lower string) (any, bool) {
	// Rule 1: operator token (">10MB").
	if m := sizeToken.FindStringSubmatch(lower); m != nil {
		return m[1] + m[2] + strings.ToUpper(m[3]), true
	}
	// Rule 2: comparison phrase ("larger than 10 megabytes").
	if m := sizePhrase.FindStringSubmatch(lower); m != nil {
		op := "<"
		switch m[1] {
		case "larger", "bigger", "greater", "more", "over":
			op = ">"
		}
		return op + m[2] + unitAbbrev(m[3]), true
	}
	return nil, false
}

func unitAbbrev(unit string) string {
	switch {
	case strings.HasPrefix(unit, "giga") || unit == "gb":
		return "GB"
	case strings.HasPrefix(unit, "mega") || unit == "mb":
		return "MB"
	case strings.HasPrefix(unit, "kilo") || unit == "kb":
		return "KB"
	default:
		return "B"
	}
}

func inferFilePath(text string) (any, bool) {
	// Rule 1: quoted value.
	if m := doubleQuoted.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	// Rule 2: slash-separated path token.
	if m := pathToken.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	// Rule 3: bare filename with extension.
	if m := fileToken.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return nil, false
}

func inferDirectory(text, lower string) (any, bool) {
	// Rule 1: preposition phrase ("in src/core", "under the build folder").
	if m := dirPrepPhrase.FindStringSubmatch(lower); m != nil {
		return strings.TrimSuffix(m[1], "/"), true
	}
	// Rule 2: quoted value.
	if m := doubleQuoted.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	// Rule 3: slash-separated token without a file extension.
	if m := pathToken.FindStringSubmatch(text); m != nil {
		if !fileToken.MatchString(" " + m[1][strings.LastIndex(m[1], "/")+1:]) {
			return m[1], true
		}
	}
	return nil, false
}

func inferQuoted(text string) (any, bool) {
	// Rule 1: double quotes. Rule 2: single quotes.
	if m := doubleQuoted.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := singleQuoted.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return nil, false
}

func inferCommand(text string) (any, bool) {
	// Rule 1: imperative verb ("run go test ./...").
	if m := commandVerb.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	// Rule 2: command-prefixed remainder ("/sh ls -la").
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		if i := strings.IndexAny(trimmed, " \t"); i > 0 {
			return strings.TrimSpace(trimmed[i+1:]), true
		}
	}
	return nil, false
}

func inferSearchPattern(text, lower string) (any, bool) {
	// Rule 1: quoted literal.
	if v, ok := inferQuoted(text); ok {
		return v, true
	}
	// Rule 2: "for/containing/matching <token>".
	if m := searchPhrase.FindStringSubmatch(lower); m != nil {
		return m[1], true
	}
	// Rule 3: glob token doubles as a search pattern.
	if m := globToken.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return nil, false
}
