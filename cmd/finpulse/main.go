package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "finpulse"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Personal finance analytics backend",
		Version: version,
		Long: `FinPulse analyzes a user's transactions, budgets, goals and
subscriptions, emits deduplicated financial signals, and turns them into
suggestions, weekly summaries and LLM-backed insights.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background scheduler",
		RunE:  runServe,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full analysis pipeline for one user",
		Long:  "Runs aggregation, pattern and risk analysis for one user and prints the report as JSON",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("user", "", "User id to analyze (required)")
	analyzeCmd.Flags().Bool("store", false, "Persist emitted signals")
	_ = analyzeCmd.MarkFlagRequired("user")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled jobs once, without the server",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().Bool("weekly", false, "Run the weekly batch for all users")
	scheduleCmd.Flags().Bool("sweep", false, "Run the daily TTL sweep")
	scheduleCmd.Flags().Int("retry-days", 0, "Retry users whose weekly run failed within N days")

	rootCmd.AddCommand(serveCmd, analyzeCmd, scheduleCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
