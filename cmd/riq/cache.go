package main

import (
	"fmt"
	"os"

	"riq/internal/cache"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis cache",
	Long:  "Inspect and maintain the analysis cache stored under .riq/cache.",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long: `Display cache hit counters and per-tier entry counts.

Examples:
  riq cache stats
  riq cache stats --format table`,
	Args: cobra.NoArgs,
	Run:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cache entries",
	Args:  cobra.NoArgs,
	Run:   runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cache entries",
	Args:  cobra.NoArgs,
	Run:   runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache builds the cache exactly as analysis commands would, so
// stats and maintenance see the same tiers.
func openCache() *cache.Cache {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)
	return cache.New(cacheOptions(repoRoot, cfg), logger)
}

func runCacheStats(cmd *cobra.Command, args []string) {
	c := openCache()
	defer c.Close()

	if err := printCacheStats(c.Stats()); err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}

func runCacheClear(cmd *cobra.Command, args []string) {
	c := openCache()
	defer c.Close()

	if err := c.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Error clearing cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Cache cleared")
}

func runCachePrune(cmd *cobra.Command, args []string) {
	c := openCache()
	defer c.Close()

	pruned, err := c.Prune()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error pruning cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Pruned %d expired entries\n", pruned)
}
