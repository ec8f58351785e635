package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"riq/internal/httpapi"

	"github.com/spf13/cobra"
)

var (
	serveHost          string
	servePort          int
	serveGenerateToken bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	Long: `Start the riq HTTP server. Analyses are started with a POST and
polled with GETs; nothing is pushed. Protect the API by generating a
bearer token with --generate-token.

Examples:
  riq serve
  riq serve --host 0.0.0.0 --port 9310
  riq serve --generate-token`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: from config)")
	serveCmd.Flags().BoolVar(&serveGenerateToken, "generate-token", false,
		"Generate a new API token, store its hash, and print the token once")
}

func runServe(cmd *cobra.Command, args []string) error {
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot)
	logger := newLogger(cfg)

	tokenFile := cfg.Server.TokenFile
	if tokenFile != "" && !filepath.IsAbs(tokenFile) {
		tokenFile = filepath.Join(repoRoot, tokenFile)
	}

	if serveGenerateToken {
		if tokenFile == "" {
			return fmt.Errorf("server.tokenFile is empty, nowhere to store the token hash")
		}
		token, err := httpapi.GenerateToken()
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		hash, err := httpapi.HashToken(token)
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		if err := httpapi.WriteTokenHash(tokenFile, hash); err != nil {
			return fmt.Errorf("failed to store token hash: %w", err)
		}
		fmt.Printf("API token (shown once, store it now):\n  %s\n", token)
		fmt.Printf("Hash written to %s\n", tokenFile)
		logger.Info("API token generated", map[string]interface{}{
			"token": httpapi.MaskToken(token),
			"file":  tokenFile,
		})
	}

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	orch := getOrchestrator(repoRoot, cfg, logger)
	server := httpapi.NewServer(httpapi.Config{
		Host:        host,
		Port:        port,
		TokenFile:   tokenFile,
		DefaultRepo: repoRoot,
	}, orch, logger)

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting riq HTTP server", map[string]interface{}{
			"addr": server.Addr(),
		})
		fmt.Printf("riq HTTP server listening on http://%s\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		logger.Info("Server stopped gracefully", nil)
	}

	return nil
}
