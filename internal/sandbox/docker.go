// Package sandbox runs agent CLIs inside a container instead of on the
// host, using the Docker SDK.
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/crosslink-ai/crosslink/internal/logger"
	"github.com/crosslink-ai/crosslink/internal/runner"
)

// DockerExecutor implements runner.Executor by exec-ing commands inside a
// long-lived container of the configured image. The container is created on
// Start and removed on Close; individual invocations share it.
type DockerExecutor struct {
	client      *client.Client
	image       string
	containerID string
}

var _ runner.Executor = (*DockerExecutor)(nil)

// NewDockerExecutor creates a sandbox executor for the given image.
func NewDockerExecutor(image string) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerExecutor{client: cli, image: image}, nil
}

// Ping verifies connectivity to the Docker daemon.
func (e *DockerExecutor) Ping(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

// Start creates and starts the sandbox container.
func (e *DockerExecutor) Start(ctx context.Context) error {
	resp, err := e.client.ContainerCreate(ctx, &dockercontainer.Config{
		Image: e.image,
		// Keep the container alive between execs.
		Cmd: []string{"sleep", "infinity"},
		Tty: false,
	}, &dockercontainer.HostConfig{
		Init: boolPtr(true),
	}, nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create sandbox container: %w", err)
	}
	e.containerID = resp.ID

	if err := e.client.ContainerStart(ctx, e.containerID, dockercontainer.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start sandbox container: %w", err)
	}

	logger.Slog().Info("sandbox container started", "image", e.image, "container_id", e.containerID[:12])
	return nil
}

// Close stops and removes the sandbox container and the client connection.
func (e *DockerExecutor) Close(ctx context.Context) error {
	if e.containerID != "" {
		if err := e.client.ContainerRemove(ctx, e.containerID, dockercontainer.RemoveOptions{Force: true}); err != nil {
			logger.Slog().Warn("failed to remove sandbox container", "error", err)
		}
		e.containerID = ""
	}
	return e.client.Close()
}

// Run executes one command inside the sandbox container, writing the prompt
// to its stdin and demultiplexing the captured streams. A non-zero exit is
// reported through ExitCode, matching the local executor's contract.
func (e *DockerExecutor) Run(ctx context.Context, spec runner.CommandSpec) (*runner.ExecResult, error) {
	if e.containerID == "" {
		return nil, fmt.Errorf("sandbox container not started")
	}

	execConfig := dockercontainer.ExecOptions{
		Cmd:          spec.Command,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  spec.Stdin != "",
	}

	execResp, err := e.client.ContainerExecCreate(ctx, e.containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := e.client.ContainerExecAttach(ctx, execResp.ID, dockercontainer.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	if spec.Stdin != "" {
		if _, err := attachResp.Conn.Write([]byte(spec.Stdin)); err != nil {
			return nil, fmt.Errorf("failed to write stdin: %w", err)
		}
		_ = attachResp.CloseWrite()
	}

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, attachResp.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w after deadline: %v", runner.ErrTimeout, ctx.Err())
	}

	inspectResp, err := e.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	if spec.OutputFile != "" {
		e.copyOutputFile(ctx, spec.OutputFile)
	}

	return &runner.ExecResult{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: inspectResp.ExitCode,
	}, nil
}

// copyOutputFile copies the auxiliary output file from the container to the
// same path on the host, where the runner reads it. Best effort: the command
// may not have written the file at all.
func (e *DockerExecutor) copyOutputFile(ctx context.Context, path string) {
	reader, _, err := e.client.CopyFromContainer(ctx, e.containerID, path)
	if err != nil {
		return
	}
	defer func() { _ = reader.Close() }()

	tr := tar.NewReader(reader)
	if _, err := tr.Next(); err != nil {
		return
	}

	data, err := io.ReadAll(tr)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

func boolPtr(b bool) *bool {
	return &b
}
