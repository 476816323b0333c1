// Package builtin provides the demo tools the pipeline gates: task
// delegation, file search, and shell execution. Business logic here is
// deliberately thin; selection, inference, validation, timeboxing, and
// recovery all happen in the pipeline.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"toolgate/internal/tools"
)

// TaskTool returns the task delegation tool. It acknowledges a described
// task and echoes the working plan; a real deployment would hand the
// description to a worker.
func TaskTool() *tools.Tool {
	return &tools.Tool{
		Name:           "task",
		Description:    "Delegate a described task to a background worker",
		TriggerPhrases: []string{"task", "delegate", "work on", "implement", "create a task"},
		CommandPrefix:  "/task",
		Resource:       "worker",
		Priority:       40,
		Schema: tools.ToolSchema{
			Required: []string{"description"},
			Properties: map[string]tools.Property{
				"description": {
					Type:        "string",
					Description: "What the task should accomplish",
					Class:       tools.ClassFreeText,
				},
				"prompt": {
					Type:        "string",
					Description: "Detailed instructions handed to the worker",
				},
				"subagent_type": {
					Type:        "string",
					Description: "Worker profile to delegate to",
					Default:     "general-purpose",
					Enum:        []any{"general-purpose", "statusline-setup", "output-style-setup"},
				},
				"priority": {
					Type:        "string",
					Description: "Scheduling priority",
					Default:     "normal",
					Enum:        []any{"low", "normal", "high"},
				},
			},
		},
		Execute: runTask,
	}
}

func runTask(ctx context.Context, args map[string]any) (string, error) {
	description, _ := args["description"].(string)
	description = strings.TrimSpace(description)
	if description == "" {
		return "", fmt.Errorf("empty task description")
	}
	priority, _ := args["priority"].(string)
	worker, _ := args["subagent_type"].(string)

	var b strings.Builder
	fmt.Fprintf(&b, "task accepted (worker=%s, priority=%s)\n", worker, priority)
	fmt.Fprintf(&b, "description: %s\n", description)
	if prompt, _ := args["prompt"].(string); strings.TrimSpace(prompt) != "" {
		fmt.Fprintf(&b, "prompt: %s\n", strings.TrimSpace(prompt))
	}
	b.WriteString("status: queued")
	return b.String(), nil
}
