package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/app"
	"github.com/tickerlens/tickerlens/internal/observe"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video-id>",
	Short: "Analyze a single video and print the result",
	Long: `Run the full analysis pipeline for one YouTube video and print the
resulting intelligence document as JSON. The analysis is persisted when a
PostgreSQL store is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	videoID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(cfg.Server.LogLevel)

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "tickerlens",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(flushCtx)
	}()

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(closeCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	rec, err := application.AnalyzeVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", videoID, err)
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
