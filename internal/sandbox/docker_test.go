package sandbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/crosslink-ai/crosslink/internal/runner"
)

// Exercises a real Docker daemon; enable with CROSSLINK_DOCKER_TESTS=1.
func TestDockerExecutor_RoundTrip(t *testing.T) {
	if os.Getenv("CROSSLINK_DOCKER_TESTS") != "1" {
		t.Skip("set CROSSLINK_DOCKER_TESTS=1 to run docker integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	e, err := NewDockerExecutor("alpine:latest")
	if err != nil {
		t.Fatalf("NewDockerExecutor() error = %v", err)
	}
	if err := e.Ping(ctx); err != nil {
		t.Skipf("docker daemon unavailable: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = e.Close(context.Background()) }()

	res, err := e.Run(ctx, runner.CommandSpec{
		Command: []string{"cat"},
		Stdin:   "hello from the sandbox",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "hello from the sandbox" {
		t.Errorf("Stdout = %q, want stdin echoed", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestDockerExecutor_RunWithoutStart(t *testing.T) {
	e := &DockerExecutor{}
	if _, err := e.Run(context.Background(), runner.CommandSpec{Command: []string{"true"}}); err == nil {
		t.Errorf("Run() expected error before Start")
	}
}
