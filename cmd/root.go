package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsculptor/internal/config"
)

var (
	logLevel   string
	logFormat  string
	configPath string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pixelsculptor",
	Short: "Recolor images with optimal transport",
	Long: `PixelSculptor transfers the colors of a source image onto the layout of a
target image using blockwise Sinkhorn transport, exact pixel assignment or
histogram matching, and grades the result with SSIM.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(os.Stderr, logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = slog.New(l)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json, logfmt)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file")
}

// loadConfig returns the --config file layered over the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Debug("Loaded config", "path", configPath)
	return cfg, nil
}
