package main

import (
	"riq/internal/version"

	"github.com/spf13/cobra"
)

var (
	// repoFlag is the CLI --repo flag value
	repoFlag string

	// logLevelFlag and logFormatFlag override the logging config section
	logLevelFlag  string
	logFormatFlag string

	// formatFlag selects the output rendering (json, markdown, table)
	formatFlag string

	// noCacheFlag disables the analysis cache for this invocation
	noCacheFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "riq",
	Short: "riq - repository intelligence and effort estimation",
	Long: `riq extracts deterministic facts from a repository (structure, database
schema, API surface, frontend stack, dependencies), assesses the impact of a
proposed requirement against those facts, and estimates delivery effort.
Analysis never executes repository code and never leaves the machine.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("riq version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "",
		"Repository root to analyze (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human or json (default: from config)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "json",
		"Output format: json, markdown, or table")
	rootCmd.PersistentFlags().BoolVar(&noCacheFlag, "no-cache", false,
		"Bypass the analysis cache for this invocation")
}
