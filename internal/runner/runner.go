package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crosslink-ai/crosslink/internal/agent"
	"github.com/crosslink-ai/crosslink/internal/config"
	"github.com/crosslink-ai/crosslink/internal/logger"
	"github.com/crosslink-ai/crosslink/internal/metrics"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrAgentFailed  = errors.New("agent invocation failed")
)

// Request describes one agent invocation from the orchestration layer.
type Request struct {
	Agent      string
	Prompt     string
	WorkingDir string
}

// Result pairs the normalized output with its invocation identity.
type Result struct {
	ID     string
	Agent  string
	Output *agent.Output
}

// Runner executes agent CLIs and routes captured output through the agent
// layer. It owns everything the parsers must not: process spawning, timeout
// enforcement, environment handling, and auxiliary output files.
type Runner struct {
	defs           []config.AgentDef
	defsByName     map[string]config.AgentDef
	agents         map[string]*agent.Agent
	local          Executor
	sandbox        Executor
	defaultTimeout time.Duration
}

// New builds a runner from configuration. sandboxExec may be nil when the
// sandbox is disabled; definitions requesting it are rejected at config
// validation time.
func New(cfg *config.Config, local, sandboxExec Executor) (*Runner, error) {
	agents, err := agent.BuildAll(cfg.Agents)
	if err != nil {
		return nil, err
	}

	defsByName := make(map[string]config.AgentDef, len(cfg.Agents))
	for _, def := range cfg.Agents {
		defsByName[def.Name] = def
	}

	return &Runner{
		defs:           cfg.Agents,
		defsByName:     defsByName,
		agents:         agents,
		local:          local,
		sandbox:        sandboxExec,
		defaultTimeout: time.Duration(cfg.DefaultTimeoutSeconds) * time.Second,
	}, nil
}

// Agents returns the configured definitions in registration order.
func (r *Runner) Agents() []config.AgentDef {
	return r.defs
}

// Run invokes one agent CLI to completion and normalizes its output.
// Success goes through the agent's parser; non-zero exit goes through its
// recovery hook, and only when that declines does the failure surface.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	def, ok := r.defsByName[req.Agent]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, req.Agent)
	}
	a := r.agents[req.Agent]

	id := "inv_" + uuid.New().String()[:8]
	ctx = context.WithValue(ctx, logger.ContextKeyInvocationID, id)
	ctx = context.WithValue(ctx, logger.ContextKeyAgent, req.Agent)

	argv := append([]string{def.Command}, def.Args...)

	var outputFile string
	if def.OutputFileFlag != "" {
		f, err := os.CreateTemp("", "crosslink-"+def.Name+"-*.out")
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		outputFile = f.Name()
		_ = f.Close()
		defer func() { _ = os.Remove(outputFile) }()
		argv = append(argv, def.OutputFileFlag, outputFile)
	}

	sanitized := SanitizeCommand(argv)

	timeout := r.defaultTimeout
	if def.TimeoutSeconds > 0 {
		timeout = time.Duration(def.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec := r.local
	if def.Sandbox && r.sandbox != nil {
		exec = r.sandbox
	}

	logger.InfoContext(ctx, "agent invocation started", "command", strings.Join(sanitized, " "), "timeout", timeout)

	start := time.Now()
	res, err := exec.Run(ctx, CommandSpec{
		Command:    argv,
		Stdin:      req.Prompt,
		WorkingDir: req.WorkingDir,
		Env:        buildEnv(def.Env),
		OutputFile: outputFile,
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordInvocation(req.Agent, metrics.StatusFailed, duration)
		logger.ErrorContext(ctx, "agent invocation failed", "error", err)
		return nil, err
	}

	in := agent.Invocation{
		SanitizedCommand:  sanitized,
		ReturnCode:        res.ExitCode,
		Stdout:            res.Stdout,
		Stderr:            res.Stderr,
		DurationSeconds:   duration,
		OutputFileContent: readOutputFile(outputFile),
	}

	if res.ExitCode == 0 {
		out, err := a.ParseOutput(in)
		if err != nil {
			metrics.RecordParseFailure(a.ParserName())
			metrics.RecordInvocation(req.Agent, metrics.StatusFailed, duration)
			logger.ErrorContext(ctx, "agent output not parseable", "parser", a.ParserName(), "error", err)
			return nil, err
		}
		metrics.RecordInvocation(req.Agent, metrics.StatusParsed, duration)
		logger.InfoContext(ctx, "agent invocation parsed", "parser", out.ParserName, "duration_seconds", duration)
		return &Result{ID: id, Agent: req.Agent, Output: out}, nil
	}

	if out, ok := a.Recover(in); ok {
		metrics.RecordRecovery(req.Agent)
		metrics.RecordInvocation(req.Agent, metrics.StatusRecovered, duration)
		logger.WarnContext(ctx, "agent invocation recovered", "return_code", res.ExitCode)
		return &Result{ID: id, Agent: req.Agent, Output: out}, nil
	}

	metrics.RecordInvocation(req.Agent, metrics.StatusFailed, duration)
	logger.ErrorContext(ctx, "agent invocation failed", "return_code", res.ExitCode)
	return nil, fmt.Errorf("%w: %s exited with code %d: %s",
		ErrAgentFailed, def.Display(), res.ExitCode, strings.TrimSpace(res.Stderr))
}

// buildEnv constructs the child environment from a passthrough list.
// An empty list inherits the full parent environment; otherwise only PATH,
// HOME, and the listed variables cross the boundary.
func buildEnv(names []string) []string {
	if len(names) == 0 {
		return nil
	}

	keep := map[string]bool{"PATH": true, "HOME": true}
	for _, name := range names {
		keep[name] = true
	}

	var env []string
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && keep[name] {
			env = append(env, kv)
		}
	}
	return env
}

// readOutputFile returns the auxiliary file content, best effort.
func readOutputFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	return string(data)
}
