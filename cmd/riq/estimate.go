package main

import (
	"fmt"
	"os"

	"riq/internal/errors"
	"riq/internal/estimate"
	"riq/internal/impact"

	"github.com/spf13/cobra"
)

var (
	estimateChanges           []string
	estimateIntegrationPoints int
	estimateDataMigration     bool
	estimateBreaking          bool
	estimateCompliance        bool
	estimateExplain           bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [requirement]",
	Short: "Estimate delivery effort",
	Long: `Score component changes into an effort bucket (S, M, L, XL) without
touching the repository. Changes come from --change flags, or are derived
from the requirement text when no flags are given.

Examples:
  riq estimate --change "Auth Service:service:modify" --change "Database Schema:database:modify:high"
  riq estimate --change "Orders API:api:create" --integration-points 2 --explain
  riq estimate "add multi-tenant support" --explain`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().StringArrayVar(&estimateChanges, "change", nil,
		"Component change as name:type:kind[:confidence] (repeatable)")
	estimateCmd.Flags().IntVar(&estimateIntegrationPoints, "integration-points", 0,
		"Number of external integration points touched")
	estimateCmd.Flags().BoolVar(&estimateDataMigration, "data-migration", false,
		"Requirement involves a data migration")
	estimateCmd.Flags().BoolVar(&estimateBreaking, "breaking", false,
		"Requirement introduces breaking changes")
	estimateCmd.Flags().BoolVar(&estimateCompliance, "compliance", false,
		"Requirement carries compliance constraints")
	estimateCmd.Flags().BoolVar(&estimateExplain, "explain", false,
		"Include the scored line items in the output")
}

func runEstimate(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	applyThresholds(cfg, newLogger(cfg))

	changes, err := parseChangeSpecs(estimateChanges)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(changes) == 0 && len(args) > 0 {
		changes = impact.DeriveChanges(args[0], nil)
	}
	if len(changes) == 0 {
		err := errors.NewRiqError(errors.InvalidChange,
			"nothing to estimate: pass --change or a requirement that names known components",
			nil, errors.GetSuggestedFixes(errors.InvalidChange))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	est := estimate.Compute(changes, estimate.Complexity{
		IntegrationPoints:  estimateIntegrationPoints,
		DataMigration:      estimateDataMigration,
		BreakingChanges:    estimateBreaking,
		ComplianceRequired: estimateCompliance,
	})

	if err := printEstimate(est, estimateExplain); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
