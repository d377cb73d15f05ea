// Package main provides the search evaluation server binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/pkg/logger"
	"github.com/searcheval/search-eval/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "search-eval-server",
		Short: "Search Eval Server - search relevance evaluation platform",
		Long: `Search Eval Server orchestrates search relevance experiments: it fans
queries out across search configurations, scores results against relevance
judgments, and aggregates per-query metrics into experiment summaries.

Examples:
  search-eval-server                      # Start with defaults
  search-eval-server --port 9090          # Custom HTTP port
  search-eval-server -c config.yaml       # Load a config file`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")
	rootCmd.Flags().String("host", "", "server host (overrides config)")
	rootCmd.Flags().String("qdrant", "", "Qdrant URL (overrides config)")
	rootCmd.Flags().String("data-dir", "./data", "directory for runtime state")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("search-eval-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	qdrantURL, _ := cmd.Flags().GetString("qdrant")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("port") {
		appCfg.Port = port
	}
	if host != "" {
		appCfg.Host = host
	}
	if qdrantURL != "" {
		appCfg.Qdrant.URL = qdrantURL
	}
	if verbose {
		appCfg.Log.Level = "debug"
	}

	log := logger.New(appCfg.Log.Level, appCfg.Log.Format)
	log.Info("Starting Search Eval Server",
		"version", version,
		"host", appCfg.Host,
		"port", appCfg.Port,
		"store", appCfg.Store.Type,
		"bus", appCfg.Bus.Type,
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Host = appCfg.Host
	srvCfg.Port = appCfg.Port
	srvCfg.Version = version
	srvCfg.DataDir = dataDir

	srv, err := server.New(srvCfg, *appCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	return nil
}
