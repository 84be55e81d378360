package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsculptor/internal/pipeline"
	"github.com/cwbudde/pixelsculptor/internal/server"
	"github.com/cwbudde/pixelsculptor/internal/store"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job server",
	Long: `Starts an HTTP server that accepts transport jobs, runs them in the
background and serves their status and result images.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for stored runs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Pipeline.DataDir = serveDataDir
	}

	st, err := store.NewFSStore(cfg.Pipeline.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	p := pipeline.New(pipeline.Config{
		Options:      cfg.EngineOptions(),
		Thresholds:   cfg.Thresholds(),
		TargetWidth:  cfg.Pipeline.TargetWidth,
		TargetHeight: cfg.Pipeline.TargetHeight,
		Store:        st,
		Logger:       slog.Default(),
	})
	srv := server.NewServer(cfg.Server.Addr, p, slog.Default())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
