package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/config"
	"toolgate/internal/tools"
)

func newTestValidator(t *testing.T, mutate func(*config.Config)) *Validator {
	t.Helper()
	cfg := config.Default()
	cfg.Validation.CacheTTL = "" // caching off unless a test opts in
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return NewValidator(cfg, nil)
}

func searchTool() *tools.Tool {
	return &tools.Tool{
		Name:     "file_search",
		Resource: "filesystem",
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern":     {Type: "string", Class: tools.ClassGlobPattern},
				"path":        {Type: "string", Default: ".", Class: tools.ClassDirectoryPath},
				"size_filter": {Type: "string", Class: tools.ClassSizeFilter},
				"limit":       {Type: "number"},
				"mode":        {Type: "string", Enum: []any{"fast", "full"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}
}

func commandTool() *tools.Tool {
	return &tools.Tool{
		Name:     "shell",
		Resource: "subprocess",
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {Type: "string", Class: tools.ClassCommandIntent},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}
}

func explicitParams(values map[string]any) ParameterSet {
	ps := make(ParameterSet, len(values))
	for k, v := range values {
		ps[k] = Parameter{Raw: v, Source: SourceExplicit}
	}
	return ps
}

func TestValidateCleanParams(t *testing.T) {
	v := newTestValidator(t, nil)
	res := v.Validate(searchTool(), explicitParams(map[string]any{"pattern": "*.py"}), ValidationContext{})

	assert.True(t, res.Valid)
	assert.Empty(t, res.Issues)
	assert.Empty(t, res.UserMessage)
	assert.Equal(t, SeverityInfo, res.Severity)
	// Schema default applied for the absent optional parameter.
	assert.Equal(t, ".", res.Params["path"].Raw)
	assert.Equal(t, SourceDefault, res.Params["path"].Source)
}

func TestValidateCommandInjectionCritical(t *testing.T) {
	v := newTestValidator(t, nil)
	res := v.Validate(commandTool(), explicitParams(map[string]any{"command": "test; rm -rf /"}), ValidationContext{})

	assert.False(t, res.Valid)
	assert.Equal(t, SeverityCritical, res.Severity)
	inj := findIssue(res.Issues, IssueInjection)
	require.NotNil(t, inj)
	assert.Equal(t, SeverityCritical, inj.Severity)

	// User message carries the fixed phrasing and none of the input.
	assert.Contains(t, res.UserMessage, "Invalid characters detected in input")
	assert.NotContains(t, res.UserMessage, "rm -rf")
	// Full detail is preserved for the audit record.
	assert.Contains(t, res.Detail(), "rm -rf")
}

func TestValidateAccumulatesAllSteps(t *testing.T) {
	v := newTestValidator(t, func(c *config.Config) { c.Validation.FanOutLimit = 2 })

	tool := searchTool()
	tool.Schema.Properties["targets"] = tools.Property{Type: "array"}
	params := explicitParams(map[string]any{
		// required "pattern" missing entirely
		"path":    "../../etc",
		"limit":   "not-a-number",
		"targets": []string{"a", "b", "c"},
	})
	res := v.Validate(tool, params, ValidationContext{})

	assert.False(t, res.Valid)
	// Every step reported: schema (missing + type), security (traversal),
	// fan-out. Nothing short-circuited.
	assert.NotNil(t, findIssue(res.Issues, IssueSchema))
	assert.NotNil(t, findIssue(res.Issues, IssueTraversal))
	assert.NotNil(t, findIssue(res.Issues, IssueFanOut))
	assert.GreaterOrEqual(t, len(res.Issues), 4)
}

func TestValidateTypeAndEnum(t *testing.T) {
	v := newTestValidator(t, nil)

	res := v.Validate(searchTool(), explicitParams(map[string]any{
		"pattern": "*.go",
		"limit":   10,
		"mode":    "fast",
	}), ValidationContext{})
	assert.True(t, res.Valid)

	res = v.Validate(searchTool(), explicitParams(map[string]any{
		"pattern": "*.go",
		"mode":    "turbo",
	}), ValidationContext{})
	assert.False(t, res.Valid)
	issue := findIssue(res.Issues, IssueSchema)
	require.NotNil(t, issue)
	assert.Contains(t, issue.Detail, "enum")
}

func TestMetacharactersCriticalInAnyField(t *testing.T) {
	// A non-command parameter carrying shell metacharacters is rejected,
	// never escaped into a clean-looking copy.
	v := newTestValidator(t, nil)
	res := v.Validate(searchTool(), explicitParams(map[string]any{"pattern": "*.go; extra"}), ValidationContext{})

	assert.False(t, res.Valid)
	assert.Equal(t, SeverityCritical, res.Severity)
	inj := findIssue(res.Issues, IssueInjection)
	require.NotNil(t, inj)
	assert.Equal(t, SeverityCritical, inj.Severity)
	assert.Nil(t, res.Params["pattern"].Sanitized)
}

func TestStandardModeSanitizes(t *testing.T) {
	v := newTestValidator(t, nil)
	res := v.Validate(searchTool(), explicitParams(map[string]any{"pattern": "*.go\x00"}), ValidationContext{})

	// Standard mode: cleaned copy, original untouched, still valid.
	assert.True(t, res.Valid)
	assert.Equal(t, "*.go", res.Params["pattern"].Sanitized)
	assert.Equal(t, "*.go\x00", res.Params["pattern"].Raw)
	assert.Greater(t, res.SanitizedCount(), 0)
}

func TestStrictModeRejectsWhereStandardSanitizes(t *testing.T) {
	v := newTestValidator(t, func(c *config.Config) { c.Validation.Mode = config.ModeStrict })
	res := v.Validate(searchTool(), explicitParams(map[string]any{"pattern": "*.go\x00"}), ValidationContext{})

	assert.False(t, res.Valid)
	assert.Nil(t, res.Params["pattern"].Sanitized, "strict mode never substitutes a cleaned value")
}

func TestPermissiveModeKeepsCritical(t *testing.T) {
	v := newTestValidator(t, func(c *config.Config) {
		c.Validation.Mode = config.ModePermissive
		c.Validation.MaxStringLen = 8
	})

	// Warnings (here: truncation) downgrade to info.
	res := v.Validate(searchTool(), explicitParams(map[string]any{"pattern": "very-long-name.txt"}), ValidationContext{})
	assert.True(t, res.Valid)
	assert.NotNil(t, findIssue(res.Issues, IssueLength))
	for _, issue := range res.Issues {
		assert.NotEqual(t, SeverityWarning, issue.Severity)
	}

	// Critical security issues never downgrade.
	res = v.Validate(commandTool(), explicitParams(map[string]any{"command": "x; rm -rf /"}), ValidationContext{})
	assert.False(t, res.Valid)
	assert.Equal(t, SeverityCritical, res.Severity)
}

func TestValidateFlagsUnexpectedParameter(t *testing.T) {
	v := newTestValidator(t, nil)
	res := v.Validate(searchTool(), explicitParams(map[string]any{
		"pattern": "*.go",
		"bogus":   "zzz",
	}), ValidationContext{})

	assert.True(t, res.Valid, "unexpected parameters warn, they do not block")
	issue := findIssue(res.Issues, IssueSchema)
	require.NotNil(t, issue)
	assert.Equal(t, "bogus", issue.Parameter)
	assert.Equal(t, SeverityWarning, issue.Severity)
	assert.Contains(t, issue.Detail, "unexpected")
}

func TestValidateIdempotent(t *testing.T) {
	v := newTestValidator(t, nil)
	params := explicitParams(map[string]any{"pattern": "*.py", "size_filter": ">10MB"})

	first := v.Validate(searchTool(), params, ValidationContext{})
	second := v.Validate(searchTool(), params, ValidationContext{})

	diff := cmp.Diff(first, second, cmpopts.IgnoreFields(ValidationResult{}, "CacheHit"))
	assert.Empty(t, diff)
}

func TestCacheHitWithinTTL(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.Validation.CacheTTL = "5s"
	v := NewValidator(cfg, clock)
	params := explicitParams(map[string]any{"pattern": "*.py"})

	first := v.Validate(searchTool(), params, ValidationContext{})
	require.True(t, first.Valid)
	assert.False(t, first.CacheHit)

	second := v.Validate(searchTool(), params, ValidationContext{})
	assert.True(t, second.CacheHit)
	assert.True(t, second.Valid)

	clock.Advance(6 * time.Second)
	third := v.Validate(searchTool(), params, ValidationContext{})
	assert.False(t, third.CacheHit, "expired entries are recomputed")
}

func TestSecurityFindingsNeverCached(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.Validation.CacheTTL = "1h"
	v := NewValidator(cfg, clock)
	params := explicitParams(map[string]any{"command": "x; rm -rf /"})

	first := v.Validate(commandTool(), params, ValidationContext{})
	require.False(t, first.Valid)

	second := v.Validate(commandTool(), params, ValidationContext{})
	assert.False(t, second.CacheHit, "results with findings are always recomputed")
	assert.False(t, second.Valid)
}

func TestFanOutLimit(t *testing.T) {
	v := newTestValidator(t, func(c *config.Config) { c.Validation.FanOutLimit = 3 })
	tool := searchTool()
	tool.Schema.Properties["targets"] = tools.Property{Type: "array"}

	res := v.Validate(tool, explicitParams(map[string]any{
		"pattern": "*.go",
		"targets": []any{"a", "b", "c"},
	}), ValidationContext{})
	assert.True(t, res.Valid)

	res = v.Validate(tool, explicitParams(map[string]any{
		"pattern": "*.go",
		"targets": []any{"a", "b", "c", "d"},
	}), ValidationContext{})
	assert.False(t, res.Valid)
	assert.NotNil(t, findIssue(res.Issues, IssueFanOut))
}
