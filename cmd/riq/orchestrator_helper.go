package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"riq/internal/cache"
	"riq/internal/config"
	"riq/internal/estimate"
	"riq/internal/facts"
	"riq/internal/logging"
	"riq/internal/paths"
	"riq/internal/pipeline"
	"riq/internal/walker"
)

var (
	configOnce   sync.Once
	sharedConfig *config.Config

	orchestratorOnce   sync.Once
	sharedOrchestrator *pipeline.Orchestrator
)

// loadConfig returns the effective configuration for the repository.
// A missing config file yields defaults; a malformed one is reported on
// stderr and also yields defaults, so analysis keeps working while
// `riq config validate` explains the problem.
func loadConfig(repoRoot string) *config.Config {
	configOnce.Do(func() {
		cfg, err := config.LoadConfig(repoRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load config, using defaults: %v\n", err)
			cfg = config.DefaultConfig()
		}
		sharedConfig = cfg
	})
	return sharedConfig
}

// applyThresholds pushes the configured bucket boundaries into the
// estimator. Invalid thresholds keep the defaults.
func applyThresholds(cfg *config.Config, logger *logging.Logger) {
	if err := estimate.SetThresholds(cfg.Estimation.SmallMax, cfg.Estimation.MediumMax, cfg.Estimation.LargeMax); err != nil {
		logger.Warn("Invalid estimation thresholds, keeping defaults", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// getOrchestrator returns a shared pipeline orchestrator.
// The orchestrator is lazily initialized on first use.
func getOrchestrator(repoRoot string, cfg *config.Config, logger *logging.Logger) *pipeline.Orchestrator {
	orchestratorOnce.Do(func() {
		applyThresholds(cfg, logger)

		analysisCache := cache.New(cacheOptions(repoRoot, cfg), logger)
		store := pipeline.NewStore(paths.GetLocalDatabasePath(repoRoot), logger)

		sharedOrchestrator = pipeline.NewOrchestrator(
			facts.DefaultRegistry(logger),
			analysisCache,
			store,
			pipeline.Options{
				Walk:    walker.OptionsFromConfig(&cfg.Analysis),
				Timeout: time.Duration(cfg.Analysis.DetectorTimeoutMs) * time.Millisecond,
			},
			logger,
		)
	})
	return sharedOrchestrator
}

// cacheOptions maps the cache config section onto cache options. A
// relative path resolves against the repository root; --no-cache wins
// over the config toggle.
func cacheOptions(repoRoot string, cfg *config.Config) cache.Options {
	path := cfg.Cache.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return cache.Options{
		Enabled:          cfg.Cache.Enabled && !noCacheFlag,
		TTLSeconds:       cfg.Cache.TtlSeconds,
		MaxMemoryEntries: cfg.Cache.MaxMemoryEntries,
		Path:             path,
		Compression:      cfg.Cache.Compression,
	}
}

// getRepoRoot resolves the repository root from --repo or the working
// directory and verifies it exists.
func getRepoRoot() (string, error) {
	root := repoFlag
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return paths.EnsureRepoRoot(root)
}

// mustGetRepoRoot returns the repository root or exits on error.
func mustGetRepoRoot() string {
	repoRoot, err := getRepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return repoRoot
}

// newContext creates a new context for command execution.
func newContext() context.Context {
	return context.Background()
}

// newLogger builds the stderr logger from the config logging section.
// The --log-level and --log-format flags take precedence.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	format := cfg.Logging.Format
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	return logging.NewLogger(logging.Config{
		Level:  logging.ParseLevel(level),
		Format: logging.ParseFormat(format),
	})
}
