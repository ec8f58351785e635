package main

import (
	"fmt"
	"os"

	"riq/internal/estimate"
	"riq/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	analyzeChanges           []string
	analyzeIntegrationPoints int
	analyzeDataMigration     bool
	analyzeBreaking          bool
	analyzeCompliance        bool
	analyzeAsync             bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [requirement]",
	Short: "Run the full analysis pipeline",
	Long: `Extract repository facts, assess the impact of a requirement against
them, and estimate delivery effort in one run. Without a requirement only
the facts phase runs.

Examples:
  riq analyze "add multi-tenant support"
  riq analyze "expose a REST endpoint for orders" --integration-points 2
  riq analyze "migrate sessions to the new broker" --data-migration --async
  riq analyze "rework billing" --change "Billing Service:service:refactor" --change "Database Schema:database:modify:high"`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringArrayVar(&analyzeChanges, "change", nil,
		"Component change as name:type:kind[:confidence] (repeatable)")
	analyzeCmd.Flags().IntVar(&analyzeIntegrationPoints, "integration-points", 0,
		"Number of external integration points touched")
	analyzeCmd.Flags().BoolVar(&analyzeDataMigration, "data-migration", false,
		"Requirement involves a data migration")
	analyzeCmd.Flags().BoolVar(&analyzeBreaking, "breaking", false,
		"Requirement introduces breaking changes")
	analyzeCmd.Flags().BoolVar(&analyzeCompliance, "compliance", false,
		"Requirement carries compliance constraints")
	analyzeCmd.Flags().BoolVar(&analyzeAsync, "async", false,
		"Start the run and print its ID instead of waiting")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)

	changes, err := parseChangeSpecs(analyzeChanges)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var requirement string
	if len(args) > 0 {
		requirement = args[0]
	}

	req := pipeline.AnalyzeRequest{
		RepoRoot:    repoRoot,
		Requirement: requirement,
		Changes:     changes,
		Complexity: estimate.Complexity{
			IntegrationPoints:  analyzeIntegrationPoints,
			DataMigration:      analyzeDataMigration,
			BreakingChanges:    analyzeBreaking,
			ComplianceRequired: analyzeCompliance,
		},
	}

	orch := getOrchestrator(repoRoot, cfg, logger)

	if analyzeAsync {
		runID, err := orch.Start(newContext(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting analysis: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(runID)
		return
	}

	run, err := orch.Analyze(newContext(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing repository: %v\n", err)
		os.Exit(1)
	}

	if err := printStatus(run.StatusView()); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
