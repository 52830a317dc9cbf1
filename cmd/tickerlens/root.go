package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/config"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tickerlens",
	Short: "Trading-video intelligence extraction",
	Long: `Tickerlens analyzes YouTube trading videos: it acquires the transcript,
runs chunked LLM analysis with automatic structured-output repair,
normalizes price level types with an adaptive classifier, and stores the
resulting intelligence in PostgreSQL with pgvector similarity search.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("tickerlens version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configured YAML file, with a friendlier message when
// the file is absent.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found — copy configs/example.yaml to get started", configPath)
		}
		return nil, err
	}
	return cfg, nil
}

// setupLogger installs a text handler on stderr as the default logger and
// returns the level var so the serve command can hot-reload the level.
func setupLogger(level config.LogLevel) *slog.LevelVar {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
