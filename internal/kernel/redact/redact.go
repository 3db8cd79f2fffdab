// Package redact sanitises secrets out of strings, JSON values, and file
// paths before they reach a checkpoint or a log line. Pattern set and
// behaviour are ported from original_source/src/safety/redact.rs.
package redact

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// regexSizeLimit bounds how large a single compiled pattern is allowed to
// be; patterns exceeding it (or failing to compile at all) are skipped with
// a warning rather than failing the whole redactor, mirroring the Rust
// original's REGEX_SIZE_LIMIT tolerance.
const regexSizeLimit = 1 << 20

type namedPattern struct {
	name    string
	pattern string
}

// rawPatterns is the ordered pattern table, one entry per secret shape the
// original implementation recognises.
var rawPatterns = []namedPattern{
	{"api_key", `(?i)api[_-]?key["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`},
	{"bearer_token", `(?i)bearer\s+([A-Za-z0-9_\-\.]{20,})`},
	{"aws_access_key", `\b(AKIA[0-9A-Z]{16})\b`},
	{"aws_secret_key", `(?i)aws[_-]?secret[_-]?(?:access[_-]?)?key["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`},
	{"github_token", `\b(gh[pousr]_[A-Za-z0-9]{36,})\b`},
	{"github_fine_grained_token", `\b(github_pat_[A-Za-z0-9_]{22,})\b`},
	{"gitlab_token", `\b(glpat-[A-Za-z0-9_\-]{20,})\b`},
	{"openai_key", `\b(sk-[A-Za-z0-9]{20,})\b`},
	{"google_api_key", `\b(AIza[0-9A-Za-z_\-]{35})\b`},
	{"stripe_key", `\b((?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{20,})\b`},
	{"slack_token", `\b(xox[baprs]-[A-Za-z0-9\-]{10,})\b`},
	{"password", `(?i)password["']?\s*[:=]\s*["']?([^\s"'\[\]]{6,})["']?`},
	{"private_key", `(?s)(-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----)`},
	{"db_connection", `(?i)\b[a-z][a-z0-9+.\-]*://[^:/\s]+:([^@\s]{3,})@[^\s]+`},
	{"jwt", `\b(eyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+)\b`},
	{"jwt_partial", `\b(eyJ[A-Za-z0-9_\-]{10,})\b`},
	{"env_token", `(?i)([A-Z][A-Z0-9_]*_TOKEN)\s*=\s*(\S{8,})`},
	{"base64_secret", `(?i)secret["']?\s*[:=]\s*["']?([A-Za-z0-9+/]{24,}={0,2})["']?`},
}

type compiledPattern struct {
	name string
	re   *regexp.Regexp
}

var patterns = compilePatterns()

func compilePatterns() []compiledPattern {
	out := make([]compiledPattern, 0, len(rawPatterns))
	for _, p := range rawPatterns {
		if len(p.pattern) > regexSizeLimit {
			slog.Warn("redact: pattern exceeds size limit, skipping", "name", p.name)
			continue
		}
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Warn("redact: pattern failed to compile, skipping", "name", p.name, "error", err)
			continue
		}
		out = append(out, compiledPattern{name: p.name, re: re})
	}
	return out
}

// RedactSecrets replaces every regex-matched secret in s with
// "<pattern_name>=[REDACTED]". Idempotent: [REDACTED] is shorter than every
// pattern's minimum match length, so a second pass never re-matches.
func RedactSecrets(s string) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllString(s, p.name+"=[REDACTED]")
	}
	return s
}

// sensitiveKeyMarkers are substrings that mark a JSON object key as
// carrying a sensitive value, regardless of whether the value itself
// matches one of the regex patterns.
var sensitiveKeyMarkers = []string{
	"password", "passwd", "pwd", "secret", "token", "api_key", "apikey",
	"auth", "credential", "private", "key", "bearer", "jwt", "session",
	"cookie", "authorization",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedactJSON walks v in place (a value produced by encoding/json.Unmarshal
// into `any`) redacting string values whose content matches a secret
// pattern, and wholesale-redacting string values whose object key looks
// sensitive. Recursion continues into every value (including ones already
// redacted) so a sensitive key nested anywhere beneath an unrelated parent
// is still caught.
func RedactJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok && isSensitiveKey(k) {
				t[k] = "[REDACTED]"
				continue
			}
			t[k] = RedactJSON(val)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = RedactJSON(item)
		}
		return t
	case string:
		return RedactSecrets(t)
	default:
		return v
	}
}

// RedactJSONBytes is a convenience wrapper for callers holding raw JSON
// bytes (e.g. a checkpoint about to be written to disk).
func RedactJSONBytes(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(RedactJSON(v))
}

// sensitivePathMarkers are substrings in a filesystem path that mark it as
// likely holding secrets.
var sensitivePathMarkers = []string{
	".env", "credentials", "secrets", ".netrc", ".npmrc", "id_rsa", "id_ed25519",
}

// RedactPath replaces path with a "[SENSITIVE_PATH:<name>]" marker if it
// looks like a well-known secrets file; otherwise it is returned unchanged.
func RedactPath(path string) string {
	lower := strings.ToLower(path)
	for _, marker := range sensitivePathMarkers {
		if strings.Contains(lower, marker) {
			return "[SENSITIVE_PATH:" + marker + "]"
		}
	}
	return path
}
