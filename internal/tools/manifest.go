package tools

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is a declarative YAML tool definition file. Business logic stays
// in Go; the manifest binds each declared tool to a named handler.
type Manifest struct {
	Tools []ManifestTool `yaml:"tools"`
}

// ManifestTool is one tool entry in a manifest.
type ManifestTool struct {
	Name           string     `yaml:"name"`
	Description    string     `yaml:"description"`
	TriggerPhrases []string   `yaml:"trigger_phrases"`
	CommandPrefix  string     `yaml:"command_prefix"`
	Resource       string     `yaml:"resource"`
	Priority       int        `yaml:"priority"`
	Timeout        string     `yaml:"timeout"`
	Handler        string     `yaml:"handler"`
	Schema         ToolSchema `yaml:"schema"`
}

// LoadManifest parses a YAML manifest and resolves each entry against the
// handler map. Every declared tool must name a known handler.
func LoadManifest(path string, handlers map[string]ExecuteFunc) ([]*Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data, handlers)
}

// ParseManifest builds tools from manifest bytes.
func ParseManifest(data []byte, handlers map[string]ExecuteFunc) ([]*Tool, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}

	result := make([]*Tool, 0, len(m.Tools))
	for _, mt := range m.Tools {
		exec, ok := handlers[mt.Handler]
		if !ok {
			return nil, fmt.Errorf("%w: tool %q names unknown handler %q",
				ErrManifestInvalid, mt.Name, mt.Handler)
		}

		var timeout time.Duration
		if mt.Timeout != "" {
			d, err := time.ParseDuration(mt.Timeout)
			if err != nil {
				return nil, fmt.Errorf("%w: tool %q has bad timeout %q",
					ErrManifestInvalid, mt.Name, mt.Timeout)
			}
			timeout = d
		}

		tool := &Tool{
			Name:           mt.Name,
			Description:    mt.Description,
			TriggerPhrases: mt.TriggerPhrases,
			CommandPrefix:  mt.CommandPrefix,
			Resource:       mt.Resource,
			Priority:       mt.Priority,
			Timeout:        timeout,
			Schema:         mt.Schema,
			Execute:        exec,
		}
		if err := tool.Validate(); err != nil {
			return nil, fmt.Errorf("%w: tool %q: %v", ErrManifestInvalid, mt.Name, err)
		}
		result = append(result, tool)
	}
	return result, nil
}

// RegisterManifest loads a manifest file and registers every tool it declares.
func (r *Registry) RegisterManifest(path string, handlers map[string]ExecuteFunc) error {
	loaded, err := LoadManifest(path, handlers)
	if err != nil {
		return err
	}
	for _, tool := range loaded {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
