package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
	"github.com/cwbudde/pixelsculptor/internal/pipeline"
	"github.com/cwbudde/pixelsculptor/internal/store"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

var (
	tuneIters   int
	tunePop     int
	tuneSeed    int64
	tuneDataDir string
	tuneTrace   bool
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search blockwise parameters with the mayfly optimizer",
	Long: `Searches block size and Sinkhorn regularization for the blockwise method,
minimizing the mean squared error between transformed image and target.`,
	RunE: runTune,
}

func init() {
	tuneCmd.Flags().StringVar(&sourcePath, "source", "", "Source image path (required)")
	tuneCmd.Flags().StringVar(&targetPath, "target", "", "Target image path (required)")
	tuneCmd.Flags().IntVar(&targetWidth, "target-width", 128, "Resize target to this width (0 keeps its size)")
	tuneCmd.Flags().IntVar(&targetHeight, "target-height", 64, "Resize target to this height (0 keeps its size)")
	tuneCmd.Flags().IntVar(&tuneIters, "iters", 20, "Optimizer iterations")
	tuneCmd.Flags().IntVar(&tunePop, "pop", 20, "Population size (at least 20)")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Random seed")
	tuneCmd.Flags().StringVar(&tuneDataDir, "data-dir", "./data", "Base directory for the evaluation trace")
	tuneCmd.Flags().BoolVar(&tuneTrace, "trace", true, "Record every evaluation to trace.jsonl")

	tuneCmd.MarkFlagRequired("source")
	tuneCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("target-width") {
		cfg.Pipeline.TargetWidth = targetWidth
	}
	if cmd.Flags().Changed("target-height") {
		cfg.Pipeline.TargetHeight = targetHeight
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	target, err := imageio.LoadNRGBA(targetPath)
	if err != nil {
		return fmt.Errorf("target %s: %w", targetPath, err)
	}
	if w, h := cfg.Pipeline.TargetWidth, cfg.Pipeline.TargetHeight; w > 0 {
		target = imageio.Resize(target, w, h)
	}
	source, err := imageio.LoadNRGBA(sourcePath)
	if err != nil {
		return fmt.Errorf("source %s: %w", sourcePath, err)
	}

	tgt := transport.FromNRGBA(target)
	src := transport.FromNRGBA(source)
	if !src.SameShape(tgt) {
		src = transport.Resize(src, tgt.Width, tgt.Height)
	}

	opts := pipeline.DefaultTuneOptions()
	opts.Iters = tuneIters
	opts.PopSize = tunePop
	opts.Seed = tuneSeed
	opts.Base = cfg.EngineOptions().Block
	opts.Logger = slog.Default()

	var trace *store.TraceWriter
	if tuneTrace {
		trace, err = store.NewTraceWriter(tuneDataDir, "tune-"+uuid.New().String(), false)
		if err != nil {
			return err
		}
		defer trace.Close()
		opts.Trace = trace
	}

	res, err := pipeline.Tune(context.Background(), src, tgt, opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printTitle(w, "Blockwise tuning")
	printKeyValue(w, "Block size", fmt.Sprintf("%d", res.BlockSize))
	printKeyValue(w, "Reg", fmt.Sprintf("%.4f", res.Reg))
	printKeyValue(w, "Best MSE", fmt.Sprintf("%.2f", res.BestCost))
	printKeyValue(w, "Baseline MSE", fmt.Sprintf("%.2f", res.BaselineCost))
	printKeyValue(w, "Improvement", fmt.Sprintf("%.1f%%", 100*res.Improvement()))
	printKeyValue(w, "Evaluations", fmt.Sprintf("%d", res.Evaluations))
	printKeyValue(w, "Elapsed", res.Elapsed.String())
	if trace != nil {
		printFile(w, trace.Path())
	}
	return nil
}
