package builtin

import "toolgate/internal/tools"

// RegisterAll registers every builtin tool.
func RegisterAll(r *tools.Registry) error {
	for _, tool := range []*tools.Tool{TaskTool(), FileSearchTool(), ShellTool()} {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Handlers exposes the builtin execute functions for YAML manifest
// registration, letting a manifest re-declare a builtin with different
// schema or triggers.
func Handlers() map[string]tools.ExecuteFunc {
	return map[string]tools.ExecuteFunc{
		"task":        TaskTool().Execute,
		"file_search": FileSearchTool().Execute,
		"shell":       ShellTool().Execute,
	}
}
