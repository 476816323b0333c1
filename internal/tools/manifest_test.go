package tools

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
tools:
  - name: file_search
    description: Search for files by pattern
    trigger_phrases: ["find", "search", "locate files"]
    command_prefix: "/search"
    resource: filesystem
    priority: 60
    timeout: 10s
    handler: search
    schema:
      required: ["pattern"]
      properties:
        pattern:
          type: string
          class: glob_pattern
        size_filter:
          type: string
          class: size_filter
  - name: shell
    description: Run a shell command
    trigger_phrases: ["run", "execute"]
    resource: subprocess
    handler: shell
    schema:
      required: ["command"]
      properties:
        command:
          type: string
          class: command_intent
`

func TestParseManifest(t *testing.T) {
	handlers := map[string]ExecuteFunc{
		"search": noopExec,
		"shell":  noopExec,
	}

	loaded, err := ParseManifest([]byte(sampleManifest), handlers)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	fs := loaded[0]
	assert.Equal(t, "file_search", fs.Name)
	assert.Equal(t, "/search", fs.CommandPrefix)
	assert.Equal(t, "filesystem", fs.Resource)
	assert.Equal(t, 60, fs.Priority)
	assert.Equal(t, 10*time.Second, fs.Timeout)
	assert.Equal(t, ClassGlobPattern, fs.Schema.Properties["pattern"].Class)
	assert.Equal(t, ClassSizeFilter, fs.Schema.Properties["size_filter"].Class)

	sh := loaded[1]
	assert.Equal(t, ClassCommandIntent, sh.Schema.Properties["command"].Class)
	assert.Equal(t, []string{"command"}, sh.Schema.Required)
}

func TestParseManifestUnknownHandler(t *testing.T) {
	_, err := ParseManifest([]byte(sampleManifest), map[string]ExecuteFunc{"search": noopExec})
	assert.ErrorIs(t, err, ErrManifestInvalid)
	assert.Contains(t, err.Error(), "shell")
}

func TestParseManifestBadYAML(t *testing.T) {
	_, err := ParseManifest([]byte("tools: [not: valid"), nil)
	assert.ErrorIs(t, err, ErrManifestInvalid)
}

func TestRegisterManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0644))

	r := NewRegistry()
	handlers := map[string]ExecuteFunc{"search": noopExec, "shell": noopExec}
	require.NoError(t, r.RegisterManifest(path, handlers))

	assert.Equal(t, 2, r.Count())
	assert.NotNil(t, r.ByPrefix("/search"))
	// Manifest without an explicit priority gets the default.
	assert.Equal(t, 50, r.Get("shell").Priority)
}
