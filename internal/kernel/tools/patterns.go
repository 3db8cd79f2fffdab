package tools

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"mvdan.cc/sh/v3/syntax"
)

// destructiveRule describes a shell-command pattern the gate refuses to
// auto-approve in Yolo/Daemon mode unless destructive shell is explicitly
// enabled. Ported from internal/plugins/sandbox_patterns.go.
type destructiveRule struct {
	pattern *regexp.Regexp
	reason  string
}

var destructivePatterns = compileDestructivePatterns()

func compileDestructivePatterns() []destructiveRule {
	raw := []struct{ pattern, reason string }{
		{`\brm\s+.*-[a-zA-Z]*[rR]`, "recursive remove"},
		{`\brm\s+.*-[a-zA-Z]*[fF]`, "force remove"},
		{`\bdd\b\s+.*\bof=`, "raw disk write (dd)"},
		{`\bmkfs\b`, "filesystem format"},
		{`\bfdisk\b`, "partition edit"},
		{`:\(\)\s*\{`, "fork bomb"},
		{`>/dev/sd[a-z]`, "raw device write"},
		{`\bchmod\s+.*-[a-zA-Z]*[rR]`, "recursive chmod"},
		{`\bchown\s+.*-[a-zA-Z]*[rR]`, "recursive chown"},
		{`\bsudo\b`, "privilege escalation"},
		{`\bsu\s`, "switch user"},
		{`\bgit\s+push\s+.*--force`, "force push"},
		{`\bdrop\s+table\b`, "destructive SQL"},
		{`\btruncate\s+table\b`, "destructive SQL"},
	}
	out := make([]destructiveRule, len(raw))
	for i, r := range raw {
		out[i] = destructiveRule{pattern: regexp.MustCompile("(?i)" + r.pattern), reason: r.reason}
	}
	return out
}

// matchDestructivePattern checks command against the cheap regex denylist,
// used as a fast pre-filter before the AST walk in isDestructiveShell.
func matchDestructivePattern(command string) *destructiveRule {
	for i := range destructivePatterns {
		if destructivePatterns[i].pattern.MatchString(command) {
			return &destructivePatterns[i]
		}
	}
	return nil
}

// isDestructiveShell classifies command as "destructive shell" per
// spec.md §4.4, combining the cheap regex pre-filter with an AST walk
// (via mvdan.cc/sh/v3) over its command words, so a destructive command
// hidden inside a subshell or a `&&` chain that the regex alone would miss
// is still caught. Returns the human-readable reason, or "" if safe.
func isDestructiveShell(command string) string {
	if rule := matchDestructivePattern(command); rule != nil {
		return rule.reason
	}

	f, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		// Unparseable shell: fail closed only via the regex pre-filter
		// result above; an unparseable command isn't auto-blocked purely
		// for being unparseable, since many legitimate one-liners (process
		// substitution, exotic redirections) can trip a conservative parser.
		return ""
	}

	reason := ""
	syntax.Walk(f, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		word := call.Args[0].Lit()
		full := commandWordsJoined(call)
		if rule := matchDestructivePattern(word + " " + full); rule != nil {
			reason = rule.reason
			return false
		}
		return true
	})
	return reason
}

func commandWordsJoined(call *syntax.CallExpr) string {
	var sb strings.Builder
	for _, arg := range call.Args {
		sb.WriteString(arg.Lit())
		sb.WriteByte(' ')
	}
	return sb.String()
}

// pathTokenPattern matches path-like tokens inside raw shell command
// strings: absolute, home-relative, and parent-traversal forms.
var pathTokenPattern = regexp.MustCompile(`(?:^|\s)((?:/|~/|\.\./)[\w./_~-]*)`)

func extractCommandPaths(command string) []string {
	matches := pathTokenPattern.FindAllStringSubmatch(command, -1)
	if len(matches) == 0 {
		return nil
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		if p := strings.TrimSpace(m[1]); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

var pathKeys = map[string]bool{"path": true, "working_dir": true, "file_path": true}
var arrayPathKeys = map[string]bool{"paths": true}

// extractArgPaths recursively collects path-bearing values from a tool's
// JSON-shaped arguments (covers structured tools whose paths live in
// nested objects, e.g. a git tool's {"args":{"paths":[...]}}).
func extractArgPaths(args map[string]any) []string {
	var paths []string
	collectPaths(args, &paths)
	return paths
}

func collectPaths(v any, paths *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			if pathKeys[key] {
				if s, ok := child.(string); ok && s != "" {
					*paths = append(*paths, s)
				}
			} else if arrayPathKeys[key] {
				if arr, ok := child.([]any); ok {
					for _, item := range arr {
						if s, ok := item.(string); ok && s != "" {
							*paths = append(*paths, s)
						}
					}
				}
			}
			collectPaths(child, paths)
		}
	case []any:
		for _, item := range val {
			collectPaths(item, paths)
		}
	}
}

// expandHome expands a leading "~" to the current user's home directory,
// falling back to returning path unchanged if the home dir can't be
// resolved.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// matchesProtectedPath reports whether candidate falls under any entry in
// protectedPaths (each of which may be a glob, per
// github.com/bmatcuk/doublestar/v4), after `~` expansion on both sides.
func matchesProtectedPath(candidate string, protectedPaths []string) (string, bool) {
	expanded := expandHome(candidate)
	cleaned := filepath.Clean(expanded)
	for _, p := range protectedPaths {
		protected := filepath.Clean(expandHome(p))
		if cleaned == protected || strings.HasPrefix(cleaned, protected+string(filepath.Separator)) {
			return p, true
		}
		if ok, _ := doublestar.Match(protected, cleaned); ok {
			return p, true
		}
	}
	return "", false
}
