package main

import (
	"fmt"
	"os"

	"riq/internal/pipeline"

	"github.com/spf13/cobra"
)

var factsRefresh bool

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Extract repository facts",
	Long: `Walk the repository and extract deterministic facts: structure,
database schema, API surface, frontend stack, conventions, and declared
dependencies. Serves cached facts when the repository identity is
unchanged.

Examples:
  riq facts
  riq facts --refresh
  riq facts --repo ../shop --format markdown`,
	Args: cobra.NoArgs,
	Run:  runFacts,
}

func init() {
	rootCmd.AddCommand(factsCmd)

	factsCmd.Flags().BoolVar(&factsRefresh, "refresh", false,
		"Re-extract facts even when a cached artifact exists")
}

func runFacts(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)
	orch := getOrchestrator(repoRoot, cfg, logger)

	run, err := orch.Analyze(newContext(), pipeline.AnalyzeRequest{
		RepoRoot:     repoRoot,
		RefreshFacts: factsRefresh,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting facts: %v\n", err)
		os.Exit(1)
	}

	if run.Facts == nil {
		fmt.Fprintln(os.Stderr, "Error: run finished without a facts artifact")
		os.Exit(1)
	}

	if err := printFacts(run.Facts); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
