package parser

import (
	"fmt"
	"strings"
)

// PlaintextParser handles agents that print a free-text answer to stdout
// (typically invoked with a silent/non-interactive flag).
type PlaintextParser struct {
	name string
	cli  string
}

var _ Parser = (*PlaintextParser)(nil)

// NewPlaintextParser creates a plaintext parser.
// name is the parser identifier; cli is the human-readable CLI name used in
// placeholder and error messages (e.g. "Copilot CLI").
func NewPlaintextParser(name, cli string) *PlaintextParser {
	return &PlaintextParser{name: name, cli: cli}
}

// Name returns the parser identifier.
func (p *PlaintextParser) Name() string {
	return p.name
}

// Parse returns trimmed stdout as content. Non-empty stderr is preserved
// under metadata but never affects content. When stdout is empty a
// placeholder response carries the stderr; when both are empty parsing fails.
func (p *PlaintextParser) Parse(stdout, stderr string) (*ParsedResponse, error) {
	content := strings.TrimSpace(stdout)
	stderrText := strings.TrimSpace(stderr)

	if content == "" {
		if stderrText != "" {
			return &ParsedResponse{
				Content:  fmt.Sprintf("%s returned no textual result. Raw stderr was preserved for troubleshooting.", p.cli),
				Metadata: map[string]any{MetadataStderr: stderrText},
			}, nil
		}
		return nil, &ParseError{Reason: fmt.Sprintf("%s returned empty output", p.cli)}
	}

	metadata := make(map[string]any)
	if stderrText != "" {
		metadata[MetadataStderr] = stderrText
	}

	return &ParsedResponse{Content: content, Metadata: metadata}, nil
}
