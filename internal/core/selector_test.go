package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/tools"
)

func selectorRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	exec := func(ctx context.Context, args map[string]any) (string, error) { return "", nil }

	require.NoError(t, r.Register(&tools.Tool{
		Name:           "file_search",
		TriggerPhrases: []string{"find", "search", "locate", "files", "look for"},
		CommandPrefix:  "/search",
		Priority:       60,
		Execute:        exec,
	}))
	require.NoError(t, r.Register(&tools.Tool{
		Name:           "shell",
		TriggerPhrases: []string{"run", "execute", "shell", "command"},
		CommandPrefix:  "/sh",
		Priority:       70,
		Execute:        exec,
	}))
	require.NoError(t, r.Register(&tools.Tool{
		Name:           "task",
		TriggerPhrases: []string{"task", "delegate", "create a task", "implement"},
		CommandPrefix:  "/task",
		Priority:       40,
		Execute:        exec,
	}))
	return r
}

func TestSelectByPrefix(t *testing.T) {
	s := NewSelector(selectorRegistry(t), 0.25)

	res := s.Select("/search *.go in src")
	require.NotNil(t, res.Tool)
	assert.Equal(t, "file_search", res.Tool.Name)
	assert.Equal(t, prefixConfidence, res.Confidence)
	assert.False(t, res.Ambiguous)

	// Unknown prefix falls through to scoring.
	res = s.Select("/unknown do something")
	assert.True(t, res.Ambiguous)
}

func TestSelectByKeywords(t *testing.T) {
	s := NewSelector(selectorRegistry(t), 0.25)

	res := s.Select("find all python files larger than 10 megabytes")
	require.NotNil(t, res.Tool)
	assert.Equal(t, "file_search", res.Tool.Name)
	assert.GreaterOrEqual(t, res.Confidence, 0.25)
}

func TestSelectPhraseBeatsKeyword(t *testing.T) {
	s := NewSelector(selectorRegistry(t), 0.25)

	res := s.Select("create a task to implement retries")
	require.NotNil(t, res.Tool)
	assert.Equal(t, "task", res.Tool.Name)
}

func TestSelectAmbiguousBelowFloor(t *testing.T) {
	s := NewSelector(selectorRegistry(t), 0.25)

	res := s.Select("hello there")
	assert.True(t, res.Ambiguous)
	assert.Nil(t, res.Tool, "never guesses below the floor")
}

func TestSelectTieBreaksByPriority(t *testing.T) {
	r := tools.NewRegistry()
	exec := func(ctx context.Context, args map[string]any) (string, error) { return "", nil }
	require.NoError(t, r.Register(&tools.Tool{
		Name: "low", TriggerPhrases: []string{"deploy", "ship"}, Priority: 10, Execute: exec,
	}))
	require.NoError(t, r.Register(&tools.Tool{
		Name: "high", TriggerPhrases: []string{"deploy", "ship"}, Priority: 90, Execute: exec,
	}))

	s := NewSelector(r, 0.25)
	res := s.Select("deploy and ship it")
	require.NotNil(t, res.Tool)
	assert.Equal(t, "high", res.Tool.Name)
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, "low", res.Alternatives[0].Tool.Name)
}

func TestSelectDeterministic(t *testing.T) {
	s := NewSelector(selectorRegistry(t), 0.25)
	text := "search for config files and run checks"

	first := s.Select(text)
	for i := 0; i < 10; i++ {
		again := s.Select(text)
		assert.Equal(t, first.Tool.Name, again.Tool.Name)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}
