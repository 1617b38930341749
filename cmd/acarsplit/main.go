// Package main implements the entry point for the acarsplit application.
// Acarsplit receives aviation datalink log streams over UDP, frames them
// into complete messages, and splits them into per-category output files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/acarsplit/classify"
	"github.com/c360/acarsplit/config"
	"github.com/c360/acarsplit/engine"
	"github.com/c360/acarsplit/metric"
	"github.com/c360/acarsplit/splitfile"
)

// Build information constants
const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "acarsplit"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// One-shot split mode opens no sockets, so a config without ports is
	// still usable there
	cfg, err := loadConfig(cliCfg.ConfigPath, cliCfg.SplitFile == "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// One-shot mode: split a captured log file and exit
	if cliCfg.SplitFile != "" {
		return runSplitFile(cliCfg.SplitFile, cfg)
	}

	return runEngine(cfg, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting acarsplit (datalink log stream splitter)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// runSplitFile splits one captured log file into bucket files and exits.
func runSplitFile(inputPath string, cfg *config.Config) error {
	for _, warning := range cfg.Normalize() {
		slog.Warn(warning)
	}

	classifier, err := classify.New(cfg.SplitBy, cfg.Keyword)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	result, err := splitfile.Split(inputPath, cfg.OutputDir, classifier, slog.Default())
	if err != nil {
		return fmt.Errorf("split %s: %w", inputPath, err)
	}

	slog.Info("split complete",
		"input", inputPath,
		"messages", result.Messages,
		"buckets", len(result.Buckets))
	return nil
}

// runEngine runs the live UDP splitter until a shutdown signal arrives.
func runEngine(cfg *config.Config, shutdownTimeout time.Duration) error {
	metricsRegistry := metric.NewMetricsRegistry()

	eng, err := engine.New(cfg, slog.Default(), metricsRegistry)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := eng.Start(signalCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	slog.Info("acarsplit started successfully",
		"ports", cfg.Ports,
		"output_dir", cfg.OutputDir,
		"split_by", cfg.SplitBy)

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := eng.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("acarsplit shutdown complete")
	return nil
}

// loadConfig loads configuration from the specified file path
func loadConfig(path string, validate bool) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(validate)
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
