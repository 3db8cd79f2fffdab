package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

// Builtin tool names.
const (
	ToolReadFile   = "read_file"
	ToolWriteFile  = "write_file"
	ToolListDir    = "list_dir"
	ToolRunCommand = "run_command"
)

const (
	defaultExecTimeout = 30 * time.Second
	maxExecTimeout     = 300 * time.Second
)

// RegisterBuiltins wires the small illustrative capability set the kernel
// needs to drive a task end to end: read/write/list on the filesystem and
// one shell-exec escape hatch. workDir anchors relative paths and run_command's
// default working directory.
func RegisterBuiltins(r *Registry, workDir string) error {
	if err := r.Register(kernel.ToolDescriptor{
		Name:           ToolReadFile,
		Description:    "Read the contents of a file. Returns the text content with optional line offset and limit.",
		Classification: kernel.ClassRead,
		Schema: map[string]any{
			"path":   map[string]any{"type": "string", "description": "Path to the file to read"},
			"offset": map[string]any{"type": "integer", "description": "Line offset (0-based) to start reading from"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return"},
		},
	}, readFileInvoker(workDir)); err != nil {
		return err
	}

	if err := r.Register(kernel.ToolDescriptor{
		Name:           ToolWriteFile,
		Description:    "Write content to a file. Creates parent directories by default.",
		Classification: kernel.ClassWrite,
		Schema: map[string]any{
			"path":        map[string]any{"type": "string", "description": "Path to the file to write"},
			"content":     map[string]any{"type": "string", "description": "Content to write to the file"},
			"create_dirs": map[string]any{"type": "boolean", "description": "Create parent directories if missing (default: true)"},
		},
	}, writeFileInvoker(workDir)); err != nil {
		return err
	}

	if err := r.Register(kernel.ToolDescriptor{
		Name:           ToolListDir,
		Description:    "List the entries of a directory, non-recursively.",
		Classification: kernel.ClassRead,
		Schema: map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory to list (default: the task working directory)"},
		},
	}, listDirInvoker(workDir)); err != nil {
		return err
	}

	return r.Register(kernel.ToolDescriptor{
		Name:           ToolRunCommand,
		Description:    "Execute a shell command. Returns stdout, stderr, and exit code.",
		Classification: kernel.ClassExec,
		Schema: map[string]any{
			"command":     map[string]any{"type": "string", "description": "The shell command to execute"},
			"working_dir": map[string]any{"type": "string", "description": "Working directory for the command (optional)"},
			"timeout":     map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30, max: 300)"},
		},
	}, runCommandInvoker(workDir))
}

func resolvePath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

func readFileInvoker(workDir string) Invoker {
	return func(args map[string]any) (map[string]any, error) {
		path, _ := args["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("read_file: path is required")
		}
		path = resolvePath(workDir, path)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read_file: %w", err)
		}

		lines := bytes.Split(data, []byte("\n"))
		offset := intArg(args, "offset")
		limit := intArg(args, "limit")
		truncated := false

		if offset > 0 {
			if offset >= len(lines) {
				lines = nil
			} else {
				lines = lines[offset:]
			}
		}
		if limit > 0 && limit < len(lines) {
			lines = lines[:limit]
			truncated = true
		}

		return map[string]any{
			"content":   string(bytes.Join(lines, []byte("\n"))),
			"lines":     len(lines),
			"truncated": truncated,
		}, nil
	}
}

func writeFileInvoker(workDir string) Invoker {
	return func(args map[string]any) (map[string]any, error) {
		path, _ := args["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("write_file: path is required")
		}
		content, _ := args["content"].(string)

		createDirs := true
		if v, ok := args["create_dirs"].(bool); ok {
			createDirs = v
		}

		absPath, err := filepath.Abs(resolvePath(workDir, path))
		if err != nil {
			return nil, fmt.Errorf("write_file: resolve path: %w", err)
		}

		if createDirs {
			if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
				return nil, fmt.Errorf("write_file: create dirs: %w", err)
			}
		}

		data := []byte(content)
		if err := os.WriteFile(absPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("write_file: %w", err)
		}

		return map[string]any{
			"path":          absPath,
			"bytes_written": len(data),
		}, nil
	}
}

func listDirInvoker(workDir string) Invoker {
	return func(args map[string]any) (map[string]any, error) {
		path, _ := args["path"].(string)
		if path == "" {
			path = workDir
		} else {
			path = resolvePath(workDir, path)
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("list_dir: %w", err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}

		return map[string]any{"entries": names}, nil
	}
}

func runCommandInvoker(workDir string) Invoker {
	return func(args map[string]any) (map[string]any, error) {
		command, _ := args["command"].(string)
		if command == "" {
			return nil, fmt.Errorf("run_command: command is required")
		}

		timeout := defaultExecTimeout
		if secs := intArg(args, "timeout"); secs > 0 {
			timeout = time.Duration(secs) * time.Second
			if timeout > maxExecTimeout {
				timeout = maxExecTimeout
			}
		}

		dir := workDir
		if wd, ok := args["working_dir"].(string); ok && wd != "" {
			dir = resolvePath(workDir, wd)
		}

		cmd := exec.Command("sh", "-c", command)
		cmd.Dir = dir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		done := make(chan error, 1)
		go func() { done <- cmd.Run() }()

		exitCode := 0
		select {
		case err := <-done:
			if err != nil {
				if exitErr, ok := err.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
				} else {
					return nil, fmt.Errorf("run_command: exec: %w", err)
				}
			}
		case <-time.After(timeout):
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("run_command: timed out after %s", timeout)
		}

		return map[string]any{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		}, nil
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
