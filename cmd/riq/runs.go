package main

import (
	"fmt"
	"os"

	"riq/internal/errors"
	"riq/internal/pipeline"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List analysis runs or show one run",
	Long: `List recent analysis runs, newest first, or show the poll view of a
single run including its artifacts.

Examples:
  riq runs
  riq runs --limit 5 --format table
  riq runs riq:run:1f3acd90`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)
	orch := getOrchestrator(repoRoot, cfg, logger)

	if len(args) == 1 {
		status := orch.GetStatus(args[0])
		if status.Status == pipeline.StatusNotFound {
			err := errors.NewRiqError(errors.RunNotFound,
				fmt.Sprintf("no run with ID %q", args[0]),
				nil, errors.GetSuggestedFixes(errors.RunNotFound))
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := printStatus(status); err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := printRunList(orch.ListRuns(runsLimit)); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
