// Package main provides the search-eval CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/evaluation"
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
		Use:   "search-eval",
		Short: "Search Eval - search relevance evaluation platform",
		Long: `Search Eval measures search quality. It runs experiments that execute
query sets against search configurations and scores the results with IR
metrics against relevance judgments.

Run 'search-eval serve' to start the server.
Run 'search-eval evaluate' to score a ranking file offline.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		serveCmd(),
		evaluateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")
			port, _ := cmd.Flags().GetInt("port")
			host, _ := cmd.Flags().GetString("host")
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
			if verbose {
				appCfg.Log.Level = "debug"
			}

			log := logger.New(appCfg.Log.Level, appCfg.Log.Format)

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
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Stop(ctx)
			}
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	cmd.Flags().String("host", "", "HTTP server host")
	cmd.Flags().String("data-dir", "./data", "directory for runtime state")

	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score ranked results against judgments offline",
		Long: `Score ranked document lists against relevance judgments without a server.

The rankings file maps query text to ranked document IDs:
  {"red shoes": ["d3", "d1", "d7"]}

The judgments file maps query text to document grades:
  {"red shoes": {"d1": 3, "d3": 2}}

Documents absent from the judgments count as grade 0.`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("rankings", "", "path to rankings JSON file (required)")
	cmd.Flags().String("judgments", "", "path to judgments JSON file (required)")
	cmd.Flags().IntSlice("k", []int{5, 10}, "metric cutoffs")
	cmd.Flags().String("format", "text", "output format (text, json)")
	_ = cmd.MarkFlagRequired("rankings")
	_ = cmd.MarkFlagRequired("judgments")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	rankingsPath, _ := cmd.Flags().GetString("rankings")
	judgmentsPath, _ := cmd.Flags().GetString("judgments")
	ks, _ := cmd.Flags().GetIntSlice("k")
	format, _ := cmd.Flags().GetString("format")

	rankings, err := loadRankings(rankingsPath)
	if err != nil {
		return err
	}
	judgments, err := loadJudgments(judgmentsPath)
	if err != nil {
		return err
	}

	perQuery := make(map[string]map[string]float64, len(rankings))
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for query, docIDs := range rankings {
		grades, ok := judgments[query]
		if !ok {
			fmt.Fprintf(os.Stderr, "warning: no judgments for query %q, skipping\n", query)
			continue
		}

		result := evaluation.Evaluate(docIDs, grades, ks)
		perQuery[query] = result
		for metric, value := range result {
			sums[metric] += value
			counts[metric]++
		}
	}

	if len(perQuery) == 0 {
		return fmt.Errorf("no queries could be evaluated")
	}

	summary := make(map[string]float64, len(sums))
	for metric, sum := range sums {
		summary[metric] = sum / float64(counts[metric])
	}

	if format == "json" {
		out := map[string]any{
			"queries": perQuery,
			"summary": summary,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printSummary(perQuery, summary)
	return nil
}

func printSummary(perQuery map[string]map[string]float64, summary map[string]float64) {
	queries := make([]string, 0, len(perQuery))
	for q := range perQuery {
		queries = append(queries, q)
	}
	sort.Strings(queries)

	metricNames := make([]string, 0, len(summary))
	for m := range summary {
		metricNames = append(metricNames, m)
	}
	sort.Strings(metricNames)

	for _, query := range queries {
		fmt.Printf("%s\n", query)
		for _, metric := range metricNames {
			fmt.Printf("  %-14s %.4f\n", metric, perQuery[query][metric])
		}
	}

	fmt.Printf("\nmean over %d queries\n", len(perQuery))
	for _, metric := range metricNames {
		fmt.Printf("  %-14s %.4f\n", metric, summary[metric])
	}
}

func loadRankings(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rankings file: %w", err)
	}
	var rankings map[string][]string
	if err := json.Unmarshal(data, &rankings); err != nil {
		return nil, fmt.Errorf("parsing rankings file: %w", err)
	}
	return rankings, nil
}

func loadJudgments(path string) (map[string]map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading judgments file: %w", err)
	}
	var judgments map[string]map[string]float64
	if err := json.Unmarshal(data, &judgments); err != nil {
		return nil, fmt.Errorf("parsing judgments file: %w", err)
	}
	return judgments, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("search-eval %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
