package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/app"
	"github.com/tickerlens/tickerlens/internal/config"
	"github.com/tickerlens/tickerlens/internal/observe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis server",
	Long: `Start the REST API server with Prometheus metrics and health endpoints.
The config file is watched while running; log level changes apply live.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lvl := setupLogger(cfg.Server.LogLevel)

	slog.Info("tickerlens starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

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
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return err
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithConfigWatch(configPath, lvl))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return err
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return err
	}

	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return err
	}
	slog.Info("goodbye")
	return nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Tickerlens — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	for _, fb := range cfg.Providers.LLMFallbacks {
		printProvider("LLM fallback", fb.Name, fb.Model)
	}
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Postgres store  : %-19s ║\n", "configured")
	} else {
		fmt.Printf("║  Postgres store  : %-19s ║\n", "(disabled)")
	}
	if cfg.Storage.LevelTypeDB != "" {
		fmt.Printf("║  Level type DB   : %-19s ║\n", truncateCell(cfg.Storage.LevelTypeDB))
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, truncateCell(value))
}

func truncateCell(value string) string {
	if len(value) > 19 {
		return value[:16] + "…"
	}
	return value
}
