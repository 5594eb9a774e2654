package agent

import (
	"strings"

	"github.com/crosslink-ai/crosslink/internal/parser"
)

// Metadata keys recorded by recovery hooks.
const (
	MetadataRecovered  = "cli_error_recovered"
	MetadataReturnCode = "cli_returncode"
)

// SalvageRecovery recovers agents whose CLI may print a useful answer even
// on non-zero exit (copilot, cursor-agent). It joins non-empty stdout and
// stderr, stdout first, and declines when the combination is empty.
func SalvageRecovery(in Invocation) *parser.ParsedResponse {
	parts := make([]string, 0, 2)
	if in.Stdout != "" {
		parts = append(parts, in.Stdout)
	}
	if in.Stderr != "" {
		parts = append(parts, in.Stderr)
	}

	combined := strings.TrimSpace(strings.Join(parts, "\n"))
	if combined == "" {
		return nil
	}

	return &parser.ParsedResponse{
		Content: combined,
		Metadata: map[string]any{
			MetadataRecovered:  true,
			MetadataReturnCode: in.ReturnCode,
		},
	}
}
