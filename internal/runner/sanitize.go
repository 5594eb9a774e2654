package runner

import (
	"strings"
)

// Flags whose values must never appear in logs, history, or returned
// command lines.
var secretFlags = map[string]bool{
	"--api-key":      true,
	"--token":        true,
	"--access-token": true,
	"--password":     true,
	"--secret":       true,
}

const redacted = "***"

// SanitizeCommand returns a copy of argv safe for reporting: values of
// secret-bearing flags are replaced with a placeholder, both in
// "--flag value" and "--flag=value" form. The executed command is never
// modified; only the reported one is.
func SanitizeCommand(command []string) []string {
	sanitized := make([]string, len(command))
	redactNext := false

	for i, arg := range command {
		if redactNext {
			sanitized[i] = redacted
			redactNext = false
			continue
		}

		if flag, _, found := strings.Cut(arg, "="); found && secretFlags[flag] {
			sanitized[i] = flag + "=" + redacted
			continue
		}

		if secretFlags[arg] {
			redactNext = true
		}
		sanitized[i] = arg
	}

	return sanitized
}
