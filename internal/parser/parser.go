// Package parser converts captured CLI agent output into a normalized
// response structure.
//
// parser.go - Shared contract for output parsers
//
// This file contains:
// - ParsedResponse, the normalized content + metadata pair
// - Parser, the capability every output format implements
// - ParseError, the error kind raised when no usable content exists
//
// Parsers are pure functions of their two text inputs. They perform no I/O,
// hold no state between calls, and are safe for concurrent use.

package parser

// MetadataStderr is the reserved metadata key for preserved diagnostic text.
// When a parser substitutes placeholder content, the raw stderr must appear
// under this key so no information is silently dropped.
const MetadataStderr = "stderr"

// ParsedResponse is the normalized result of parsing one agent invocation.
// Content is non-empty text for the caller (or an explanatory placeholder).
// Metadata maps string keys to JSON-compatible values and may be empty.
type ParsedResponse struct {
	Content  string
	Metadata map[string]any
}

// Parser converts raw captured stdout/stderr into a ParsedResponse.
// Implementations must be deterministic given identical inputs.
type Parser interface {
	// Name returns the parser identifier (e.g. "claude_stream_json").
	Name() string

	// Parse extracts content and metadata from captured output.
	// It returns a *ParseError when no usable content can be derived.
	Parse(stdout, stderr string) (*ParsedResponse, error)
}

// ParseError indicates output could not be converted into usable content.
// It is the only error kind a Parser returns; callers distinguish it from
// process-level failures with errors.As.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return e.Reason
}
