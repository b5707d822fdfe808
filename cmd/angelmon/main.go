// Package main implements the angelmon entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/angel-control/angelmon/internal/api"
	"github.com/angel-control/angelmon/internal/audit"
	"github.com/angel-control/angelmon/internal/auth"
	"github.com/angel-control/angelmon/internal/command"
	"github.com/angel-control/angelmon/internal/config"
	"github.com/angel-control/angelmon/internal/logging"
	"github.com/angel-control/angelmon/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "angelmon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("angelmon", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML configuration (default $ANGELMON_CONFIG or ./angelmon.yaml)")
	addr := flags.String("addr", "", "HTTP listen address, overrides http.addr")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Step 1: Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Step 2: Structured logging
	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("starting angelmon", "version", api.Version, "dataDir", cfg.DataDir)

	// Step 3: Telemetry hub
	hub, err := telemetry.NewHub(cfg, telemetry.WithLogger(logger.With("component", "telemetry")))
	if err != nil {
		return fmt.Errorf("create telemetry hub: %w", err)
	}

	// Step 4: Audit logger
	auditLogger, err := audit.NewLogger(cfg.AuditPath(), cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	// Step 5: Command service
	commands := command.NewService(cfg.Command, hub, logger.With("component", "command"))
	commands.SetAuditLogger(auditLogger)

	// Step 6: Authentication
	verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("initialize auth: %w", err)
	}
	authMiddleware := auth.NewMiddleware(verifier)
	if !authMiddleware.Enabled() {
		logger.Warn("authentication disabled, all routes are open")
	}

	// Step 7: API server
	server := api.NewServer(hub, commands, authMiddleware, cfg.HTTP, logger.With("component", "api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 8: Start monitoring
	if err := hub.StartMonitoring(ctx); err != nil {
		return fmt.Errorf("start monitoring: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTP.Addr); err != nil {
			serverErr <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	var runErr error
wait:
	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				if err := auditLogger.Rotate(); err != nil {
					logger.Error("audit rotate failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown requested", "signal", sig.String())
			break wait
		case err := <-serverErr:
			logger.Error("http server failed", "error", err)
			runErr = err
			break wait
		}
	}

	// The hub closes SSE streams first so Shutdown does not wait on them.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Stop()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	logger.Info("angelmon stopped")
	return runErr
}
