package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrTimeout indicates the invocation exceeded its deadline. Timeout is a
// process-level failure; no salvage is attempted because the output may be
// truncated mid-line.
var ErrTimeout = errors.New("agent invocation timed out")

// LocalExecutor runs agent CLIs as host subprocesses.
type LocalExecutor struct{}

var _ Executor = (*LocalExecutor)(nil)

// NewLocalExecutor creates a host-process executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Run executes the command and captures stdout/stderr in full. A non-zero
// exit is not an error here; it is reported through ExitCode so the agent's
// recovery policy can decide what to do with it.
func (e *LocalExecutor) Run(ctx context.Context, spec CommandSpec) (*ExecResult, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w after deadline: %v", ErrTimeout, ctx.Err())
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: executable missing, permission denied, etc.
			return nil, fmt.Errorf("failed to run %s: %w", spec.Command[0], err)
		}
	}

	return &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
