// Package runner invokes external agent CLIs and hands their captured
// output to the agent layer for normalization.
package runner

import (
	"context"
)

// CommandSpec describes one subprocess invocation.
type CommandSpec struct {
	// Command is the full argv, executable first.
	Command []string
	// Stdin is written to the process and then closed (the prompt).
	Stdin string
	// WorkingDir is the directory the process runs in. Empty inherits.
	WorkingDir string
	// Env is the complete environment. Nil inherits the parent environment.
	Env []string
	// OutputFile is the auxiliary file path the command may write to.
	// Executors that copy files across a boundary (sandbox) use it; the
	// local executor ignores it because the path is directly visible.
	OutputFile string
}

// ExecResult is the captured outcome of a completed subprocess.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a command to completion and captures its output.
// Implementations: LocalExecutor (host exec) and sandbox.DockerExecutor
// (exec inside a container).
type Executor interface {
	Run(ctx context.Context, spec CommandSpec) (*ExecResult, error)
}
