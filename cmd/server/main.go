package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crosslink-ai/crosslink/internal/config"
	"github.com/crosslink-ai/crosslink/internal/history"
	"github.com/crosslink-ai/crosslink/internal/logger"
	"github.com/crosslink-ai/crosslink/internal/mcp"
	"github.com/crosslink-ai/crosslink/internal/retention"
	"github.com/crosslink-ai/crosslink/internal/runner"
	"github.com/crosslink-ai/crosslink/internal/sandbox"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Path to crosslink.jsonc (default: auto-discover)")
	addrFlag := flag.String("addr", "", "Listen address, overrides config (e.g. :8585)")
	jsonLogs := flag.Bool("log-json", false, "Write structured JSON logs")
	flag.Parse()

	if *showVersion {
		fmt.Printf("crosslink %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	addr := cfg.Server.Address
	if *addrFlag != "" {
		addr = *addrFlag
	}

	if err := logger.Init(cfg.Server.LogDir, *jsonLogs || cfg.Server.JSONLogs); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	slog := logger.Slog()
	slog.Info("crosslink starting", "version", Version, "agents", len(cfg.Agents))

	store, err := history.NewStore(cfg.History.Dir)
	if err != nil {
		slog.Error("failed to initialize invocation store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	slog.Info("invocation store opened", "dir", cfg.History.Dir)

	// Sandbox executor is optional; agents with sandbox: true fall back to
	// the host when it is disabled entirely.
	var sandboxExec runner.Executor
	var sandboxPinger mcp.Pinger
	var dockerExec *sandbox.DockerExecutor
	if cfg.Sandbox.Enabled {
		dockerExec, err = sandbox.NewDockerExecutor(cfg.Sandbox.Image)
		if err != nil {
			slog.Error("failed to create sandbox executor", "error", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := dockerExec.Ping(ctx); err != nil {
			cancel()
			slog.Error("docker daemon unreachable", "error", err)
			os.Exit(1)
		}
		if err := dockerExec.Start(ctx); err != nil {
			cancel()
			slog.Error("failed to start sandbox container", "error", err)
			os.Exit(1)
		}
		cancel()
		sandboxExec = dockerExec
		sandboxPinger = dockerExec
	}

	run, err := runner.New(cfg, runner.NewLocalExecutor(), sandboxExec)
	if err != nil {
		slog.Error("failed to build runner", "error", err)
		os.Exit(1)
	}

	purger, err := retention.New(store, cfg.History.PurgeSchedule, cfg.History.RetentionDays)
	if err != nil {
		slog.Error("invalid retention schedule", "error", err)
		os.Exit(1)
	}
	purger.Start()

	server := mcp.NewServer(run, store, sandboxPinger, Version, &mcp.Options{
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		RequestBurst:      cfg.Server.RequestBurst,
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(addr)
	}()

	select {
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdownChan:
		slog.Info("shutting down", "signal", sig.String())

		purger.Stop()

		if dockerExec != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = dockerExec.Close(ctx)
			cancel()
		}

		_ = store.Close()
		slog.Info("shutdown complete")
		_ = logger.Close()
		os.Exit(0)
	}
}
