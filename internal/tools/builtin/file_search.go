package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"toolgate/internal/tools"
)

// FileSearchTool returns the file search tool: glob matching under a root
// directory with an optional size filter.
func FileSearchTool() *tools.Tool {
	return &tools.Tool{
		Name:           "file_search",
		Description:    "Find files by glob pattern, optionally filtered by size",
		TriggerPhrases: []string{"find", "search", "locate", "files", "look for"},
		CommandPrefix:  "/search",
		Resource:       "filesystem",
		Priority:       60,
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Glob pattern to match file names against",
					Class:       tools.ClassGlobPattern,
				},
				"path": {
					Type:        "string",
					Description: "Directory to search under",
					Default:     ".",
					Class:       tools.ClassDirectoryPath,
				},
				"size_filter": {
					Type:        "string",
					Description: "Size constraint such as >10MB or <4KB",
					Class:       tools.ClassSizeFilter,
				},
			},
		},
		Execute: runFileSearch,
	}
}

var sizeFilterPattern = regexp.MustCompile(`^([<>]=?)(\d+)(B|KB|MB|GB)$`)

// parseSizeFilter turns ">10MB" into a predicate over byte counts.
func parseSizeFilter(filter string) (func(int64) bool, error) {
	m := sizeFilterPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(filter)))
	if m == nil {
		return nil, fmt.Errorf("bad size filter %q", filter)
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad size filter %q: %w", filter, err)
	}
	switch m[3] {
	case "KB":
		n *= 1 << 10
	case "MB":
		n *= 1 << 20
	case "GB":
		n *= 1 << 30
	}
	switch m[1] {
	case ">":
		return func(size int64) bool { return size > n }, nil
	case ">=":
		return func(size int64) bool { return size >= n }, nil
	case "<":
		return func(size int64) bool { return size < n }, nil
	default:
		return func(size int64) bool { return size <= n }, nil
	}
}

func runFileSearch(ctx context.Context, args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}

	var sizeOK func(int64) bool
	if filter, ok := args["size_filter"].(string); ok && filter != "" {
		var err error
		sizeOK, err = parseSizeFilter(filter)
		if err != nil {
			return "", err
		}
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ok, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, matchErr)
		}
		if !ok {
			return nil
		}
		if sizeOK != nil {
			info, infoErr := d.Info()
			if infoErr != nil || !sizeOK(info.Size()) {
				return nil
			}
		}
		matches = append(matches, path)
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "no matches", nil
	}
	return strings.Join(matches, "\n"), nil
}
