package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/bmatcuk/doublestar/v4"
)

// toolDefinitions returns schemas for the locally-executable tools, filtered
// to the caller's allow-list. These mirror the claude CLI tool surface so
// prompts work unchanged across executor modes.
func toolDefinitions(allowed []string) []anthropic.ToolUnionParam {
	allowSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowSet[name] = true
	}

	all := []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Read",
				Description: anthropic.String("Read a file from the filesystem. Returns file contents with line numbers."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"file_path": map[string]interface{}{"type": "string", "description": "Path to the file to read"},
						"offset":    map[string]interface{}{"type": "integer", "description": "Line number to start from (1-indexed, optional)"},
						"limit":     map[string]interface{}{"type": "integer", "description": "Maximum number of lines to read (optional)"},
					},
					Required: []string{"file_path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Write",
				Description: anthropic.String("Write content to a file. Creates parent directories if needed."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"file_path": map[string]interface{}{"type": "string", "description": "Path to the file to write"},
						"content":   map[string]interface{}{"type": "string", "description": "Content to write"},
					},
					Required: []string{"file_path", "content"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Edit",
				Description: anthropic.String("Edit a file by replacing text. old_string must be unique unless replace_all is true."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"file_path":   map[string]interface{}{"type": "string", "description": "Path to the file to edit"},
						"old_string":  map[string]interface{}{"type": "string", "description": "Exact text to replace"},
						"new_string":  map[string]interface{}{"type": "string", "description": "Replacement text"},
						"replace_all": map[string]interface{}{"type": "boolean", "description": "Replace all occurrences (default false)"},
					},
					Required: []string{"file_path", "old_string", "new_string"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Bash",
				Description: anthropic.String("Execute a bash command in the working directory and return its output."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{"type": "string", "description": "The bash command to execute"},
						"timeout": map[string]interface{}{"type": "integer", "description": "Timeout in milliseconds (default 120000)"},
					},
					Required: []string{"command"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "Glob",
				Description: anthropic.String("Find files matching a glob pattern (supports ** recursion)."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"pattern": map[string]interface{}{"type": "string", "description": "Glob pattern, e.g. '**/*.go'"},
						"path":    map[string]interface{}{"type": "string", "description": "Directory to search (default working directory)"},
					},
					Required: []string{"pattern"},
				},
			},
		},
	}

	if len(allowSet) == 0 {
		return all
	}
	var filtered []anthropic.ToolUnionParam
	for _, def := range all {
		if allowSet[def.OfTool.Name] {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// runTool executes one tool call rooted at workDir. The bool return reports
// whether the result is an error.
func runTool(ctx context.Context, workDir, name string, input json.RawMessage) (string, bool) {
	switch name {
	case "Read":
		return toolRead(workDir, input)
	case "Write":
		return toolWrite(workDir, input)
	case "Edit":
		return toolEdit(workDir, input)
	case "Bash":
		return toolBash(ctx, workDir, input)
	case "Glob":
		return toolGlob(workDir, input)
	default:
		return fmt.Sprintf("Unknown tool: %s", name), true
	}
}

// resolveToolPath roots relative paths at the working directory.
func resolveToolPath(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

func toolRead(workDir string, input json.RawMessage) (string, bool) {
	var params struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), true
	}

	content, err := os.ReadFile(resolveToolPath(workDir, params.FilePath))
	if err != nil {
		return fmt.Sprintf("Failed to read file: %v", err), true
	}

	lines := strings.Split(string(content), "\n")
	start := 0
	if params.Offset > 0 {
		start = params.Offset - 1
		if start >= len(lines) {
			return "Offset beyond end of file", true
		}
	}
	end := len(lines)
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return b.String(), false
}

func toolWrite(workDir string, input json.RawMessage) (string, bool) {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), true
	}

	path := resolveToolPath(workDir, params.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Sprintf("Failed to create directory: %v", err), true
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return fmt.Sprintf("Failed to write file: %v", err), true
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.FilePath), false
}

func toolEdit(workDir string, input json.RawMessage) (string, bool) {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), true
	}

	path := resolveToolPath(workDir, params.FilePath)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("Failed to read file: %v", err), true
	}

	text := string(content)
	count := strings.Count(text, params.OldString)
	if count == 0 {
		return "old_string not found in file", true
	}
	if !params.ReplaceAll && count > 1 {
		return fmt.Sprintf("old_string found %d times; must be unique or use replace_all=true", count), true
	}

	var updated string
	if params.ReplaceAll {
		updated = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		updated = strings.Replace(text, params.OldString, params.NewString, 1)
	}
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return fmt.Sprintf("Failed to write file: %v", err), true
	}
	if params.ReplaceAll {
		return fmt.Sprintf("Replaced %d occurrences", count), false
	}
	return "Edit successful", false
}

func toolBash(ctx context.Context, workDir string, input json.RawMessage) (string, bool) {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), true
	}

	timeout := 120 * time.Second
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", params.Command)
	cmd.Dir = workDir
	output, err := cmd.CombinedOutput()

	text := string(output)
	if len(text) > 30000 {
		text = text[:30000] + "\n... (output truncated)"
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("Command timed out after %v:\n%s", timeout, text), true
		}
		return fmt.Sprintf("%s\nError: %v", text, err), true
	}
	return text, false
}

func toolGlob(workDir string, input json.RawMessage) (string, bool) {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), true
	}

	root := workDir
	if params.Path != "" {
		root = resolveToolPath(workDir, params.Path)
	}

	matches, err := doublestar.Glob(os.DirFS(root), params.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Sprintf("Invalid glob pattern: %v", err), true
	}
	if len(matches) == 0 {
		return "No files matched", false
	}
	return strings.Join(matches, "\n"), false
}
