package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/tools"
)

func TestRegisterAll(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, RegisterAll(r))
	assert.Equal(t, []string{"file_search", "shell", "task"}, r.Names())
	assert.NotNil(t, r.ByPrefix("/search"))
	assert.NotNil(t, r.ByPrefix("/sh"))
	assert.NotNil(t, r.ByPrefix("/task"))
}

func TestTaskExecute(t *testing.T) {
	out, err := runTask(context.Background(), map[string]any{
		"description":   "implement the new feature",
		"prompt":        "start with the storage layer",
		"subagent_type": "general-purpose",
		"priority":      "high",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "worker=general-purpose")
	assert.Contains(t, out, "priority=high")
	assert.Contains(t, out, "implement the new feature")
	assert.Contains(t, out, "start with the storage layer")
	assert.Contains(t, out, "queued")

	_, err = runTask(context.Background(), map[string]any{"description": "   "})
	assert.Error(t, err)
}

func TestTaskSchemaDeclaresWorkerFields(t *testing.T) {
	schema := TaskTool().Schema

	_, ok := schema.Properties["prompt"]
	assert.True(t, ok)

	worker, ok := schema.Properties["subagent_type"]
	require.True(t, ok)
	assert.Equal(t, "general-purpose", worker.Default)
	assert.ElementsMatch(t, []any{"general-purpose", "statusline-setup", "output-style-setup"}, worker.Enum)
}

func TestParseSizeFilter(t *testing.T) {
	tests := []struct {
		filter string
		size   int64
		want   bool
	}{
		{">10MB", 11 << 20, true},
		{">10MB", 10 << 20, false},
		{"<4KB", 1 << 10, true},
		{"<4KB", 8 << 10, false},
		{">=1GB", 1 << 30, true},
		{">100B", 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			pred, err := parseSizeFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred(tt.size))
		})
	}

	_, err := parseSizeFilter("about 10 meg")
	assert.Error(t, err)
}

func TestFileSearchExecute(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.py"), make([]byte, 2048), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.py"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.go"), []byte("package x"), 0644))

	out, err := runFileSearch(context.Background(), map[string]any{
		"pattern": "*.py",
		"path":    dir,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "big.py")
	assert.Contains(t, out, "small.py")
	assert.NotContains(t, out, "other.go")

	out, err = runFileSearch(context.Background(), map[string]any{
		"pattern":     "*.py",
		"path":        dir,
		"size_filter": ">1KB",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "big.py")
	assert.NotContains(t, out, "small.py")

	out, err = runFileSearch(context.Background(), map[string]any{
		"pattern": "*.rs",
		"path":    dir,
	})
	require.NoError(t, err)
	assert.Equal(t, "no matches", out)
}

func TestShellExecute(t *testing.T) {
	out, err := runShell(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(out))

	_, err = runShell(context.Background(), map[string]any{})
	assert.Error(t, err)

	out, err = runShell(context.Background(), map[string]any{"command": "pwd", "working_dir": os.TempDir()})
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}
