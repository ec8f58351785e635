package main

import (
	"fmt"
	"os"

	"riq/internal/estimate"
	"riq/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	impactChanges           []string
	impactIntegrationPoints int
	impactDataMigration     bool
	impactBreaking          bool
	impactCompliance        bool
)

var impactCmd = &cobra.Command{
	Use:   "impact <requirement>",
	Short: "Assess the impact of a requirement",
	Long: `Assess which components a requirement touches, the risks it carries,
and the effort it takes, grounded in fresh or cached repository facts.
Component changes are derived from the requirement unless --change
overrides them.

Examples:
  riq impact "add multi-tenant support"
  riq impact "expose a webhook endpoint" --integration-points 3
  riq impact "drop the legacy export" --change "Export Service:service:delete:high"`,
	Args: cobra.ExactArgs(1),
	Run:  runImpact,
}

func init() {
	rootCmd.AddCommand(impactCmd)

	impactCmd.Flags().StringArrayVar(&impactChanges, "change", nil,
		"Component change as name:type:kind[:confidence] (repeatable)")
	impactCmd.Flags().IntVar(&impactIntegrationPoints, "integration-points", 0,
		"Number of external integration points touched")
	impactCmd.Flags().BoolVar(&impactDataMigration, "data-migration", false,
		"Requirement involves a data migration")
	impactCmd.Flags().BoolVar(&impactBreaking, "breaking", false,
		"Requirement introduces breaking changes")
	impactCmd.Flags().BoolVar(&impactCompliance, "compliance", false,
		"Requirement carries compliance constraints")
}

func runImpact(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)

	changes, err := parseChangeSpecs(impactChanges)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	orch := getOrchestrator(repoRoot, cfg, logger)

	run, err := orch.Analyze(newContext(), pipeline.AnalyzeRequest{
		RepoRoot:    repoRoot,
		Requirement: args[0],
		Changes:     changes,
		Complexity: estimate.Complexity{
			IntegrationPoints:  impactIntegrationPoints,
			DataMigration:      impactDataMigration,
			BreakingChanges:    impactBreaking,
			ComplianceRequired: impactCompliance,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing impact: %v\n", err)
		os.Exit(1)
	}

	if run.Impact == nil {
		fmt.Fprintln(os.Stderr, "Error: run finished without an impact artifact")
		os.Exit(1)
	}

	if err := printImpact(run.Impact); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
