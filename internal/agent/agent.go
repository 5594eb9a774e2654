// Package agent owns the output-handling policy for one external CLI
// assistant: which parser normalizes its output and whether anything can be
// salvaged when the subprocess exits non-zero.
//
// agent.go - Agent type and the normalized execution result
//
// The process-invocation collaborator (internal/runner) captures stdout,
// stderr, the return code and timing, then hands them here. On success the
// agent delegates to its parser; on failure its recovery hook may still
// produce a result. Either path yields the same Output shape.

package agent

import (
	"github.com/crosslink-ai/crosslink/internal/parser"
)

// Invocation carries the process facts captured by the collaborator that ran
// the subprocess. The agent never runs processes itself.
type Invocation struct {
	SanitizedCommand  []string
	ReturnCode        int
	Stdout            string
	Stderr            string
	DurationSeconds   float64
	OutputFileContent string // empty when no auxiliary output file was used
}

// Output is the full execution result handed back to the orchestration
// layer: the parsed response plus process-level facts.
type Output struct {
	Parsed            *parser.ParsedResponse
	SanitizedCommand  []string
	ReturnCode        int
	Stdout            string
	Stderr            string
	DurationSeconds   float64
	ParserName        string
	OutputFileContent string
}

// RecoveryFunc decides whether a non-zero exit can still yield a usable
// response. Returning nil declines recovery and lets the failure propagate.
// Hooks build a ParsedResponse only; the agent wraps it so the Output always
// reports the configured parser's identity.
type RecoveryFunc func(in Invocation) *parser.ParsedResponse

// Agent composes exactly one Parser with an optional recovery policy.
type Agent struct {
	name     string
	parser   parser.Parser
	recovery RecoveryFunc
}

// New creates an agent. recovery may be nil, in which case every non-zero
// exit is surfaced as-is.
func New(name string, p parser.Parser, recovery RecoveryFunc) *Agent {
	return &Agent{name: name, parser: p, recovery: recovery}
}

// Name returns the agent identifier.
func (a *Agent) Name() string {
	return a.name
}

// ParserName returns the identifier of the configured parser.
func (a *Agent) ParserName() string {
	return a.parser.Name()
}

// ParseOutput normalizes a successful invocation through the configured
// parser. A *parser.ParseError propagates unchanged when no usable content
// could be derived.
func (a *Agent) ParseOutput(in Invocation) (*Output, error) {
	parsed, err := a.parser.Parse(in.Stdout, in.Stderr)
	if err != nil {
		return nil, err
	}
	return a.wrap(parsed, in), nil
}

// Recover runs the recovery hook for a failed invocation. It is a single
// best-effort attempt: ok is false when the agent has no recovery policy or
// the hook declined, and the original process failure remains the only
// signal for the caller. The parser is not invoked on this path.
func (a *Agent) Recover(in Invocation) (out *Output, ok bool) {
	if a.recovery == nil {
		return nil, false
	}
	parsed := a.recovery(in)
	if parsed == nil {
		return nil, false
	}
	return a.wrap(parsed, in), true
}

// wrap builds the Output shape shared by the success and recovery paths.
func (a *Agent) wrap(parsed *parser.ParsedResponse, in Invocation) *Output {
	return &Output{
		Parsed:            parsed,
		SanitizedCommand:  in.SanitizedCommand,
		ReturnCode:        in.ReturnCode,
		Stdout:            in.Stdout,
		Stderr:            in.Stderr,
		DurationSeconds:   in.DurationSeconds,
		ParserName:        a.parser.Name(),
		OutputFileContent: in.OutputFileContent,
	}
}
