package main

import (
	"fmt"
	"os"
	"path/filepath"

	"riq/internal/config"
	"riq/internal/paths"

	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage riq configuration",
	Long:  "View and manage riq configuration stored in .riq/config.json",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to .riq/config.json so it can be
edited in place.

Examples:
  riq config init
  riq config init --force`,
	Args: cobra.NoArgs,
	Run:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the effective configuration: file values merged over
defaults, with environment overrides applied.`,
	Args: cobra.NoArgs,
	Run:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	Args:  cobra.NoArgs,
	Run:   runConfigValidate,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	configPath := filepath.Join(paths.GetLocalRiqDir(repoRoot), "config.json")

	if _, err := os.Stat(configPath); err == nil && !configForce {
		fmt.Fprintf(os.Stderr, "Error: config already exists at %s (use --force to overwrite)\n", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(repoRoot); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", configPath)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)

	if err := printConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}

// runConfigValidate parses the config file directly instead of through
// loadConfig, so parse errors surface instead of degrading to defaults.
func runConfigValidate(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()

	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: config could not be parsed: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration valid")
}
