package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

const maxShellOutput = 50000

// ShellTool returns the shell execution tool. Validation rejects any value
// carrying shell metacharacters before this code ever runs. Timeboxing
// belongs to the executor; the tool only honors its context.
func ShellTool() *tools.Tool {
	return &tools.Tool{
		Name:           "shell",
		Description:    "Execute a shell command and return its output",
		TriggerPhrases: []string{"run", "execute", "shell", "command"},
		CommandPrefix:  "/sh",
		Resource:       "subprocess",
		Priority:       70,
		Timeout:        60 * time.Second,
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
					Class:       tools.ClassCommandIntent,
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory for the command",
					Class:       tools.ClassDirectoryPath,
				},
			},
		},
		Execute: runShell,
	}
}

func runShell(ctx context.Context, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return "", fmt.Errorf("command is required")
	}
	workingDir, _ := args["working_dir"].(string)

	logging.ToolsDebug("shell: dir=%s", workingDir)

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = workingDir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxShellOutput {
		output = output[:maxShellOutput] + "\n...[truncated]"
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("command cut off by deadline")
		}
		return output, fmt.Errorf("command failed: %w", err)
	}
	return output, nil
}
