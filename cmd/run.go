package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsculptor/internal/config"
	"github.com/cwbudde/pixelsculptor/internal/pipeline"
	"github.com/cwbudde/pixelsculptor/internal/store"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

var (
	sourcePath   string
	targetPath   string
	method       string
	blockSize    int
	blockReg     float64
	sampleSize   int
	bins         int
	workers      int
	targetWidth  int
	targetHeight int
	outputDir    string
	dataDir      string
	saveRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Transport the colors of a source image onto a target",
	Long: `Runs one color transport, grades the result with SSIM against the target
and writes target, source, transformed and comparison images.`,
	RunE: runTransport,
}

func init() {
	runCmd.Flags().StringVar(&sourcePath, "source", "", "Source image path (required)")
	runCmd.Flags().StringVar(&targetPath, "target", "", "Target image path (required)")
	runCmd.Flags().StringVar(&method, "method", "blockwise", "Transport method: blockwise, histogram, hungarian")
	runCmd.Flags().IntVar(&blockSize, "block-size", transport.DefaultBlockSize, "Blockwise tile size")
	runCmd.Flags().Float64Var(&blockReg, "reg", 0.05, "Blockwise Sinkhorn regularization")
	runCmd.Flags().IntVar(&sampleSize, "sample-size", transport.DefaultSampleSize, "Maximum pixels per side for hungarian")
	runCmd.Flags().IntVar(&bins, "bins", transport.DefaultBins, "Histogram bins")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent blocks (0 = GOMAXPROCS)")
	runCmd.Flags().IntVar(&targetWidth, "target-width", 128, "Resize target to this width (0 keeps its size)")
	runCmd.Flags().IntVar(&targetHeight, "target-height", 64, "Resize target to this height (0 keeps its size)")
	runCmd.Flags().StringVar(&outputDir, "output-dir", ".", "Directory for output images")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored runs")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Persist the run in the data directory")

	runCmd.MarkFlagRequired("source")
	runCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides config values with the flags set on cmd.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("method") {
		cfg.Transport.Method = method
	}
	if flags.Changed("block-size") {
		cfg.Transport.BlockSize = blockSize
	}
	if flags.Changed("reg") {
		cfg.Transport.BlockReg = blockReg
	}
	if flags.Changed("sample-size") {
		cfg.Transport.SampleSize = sampleSize
	}
	if flags.Changed("bins") {
		cfg.Transport.Bins = bins
	}
	if flags.Changed("workers") {
		cfg.Transport.Workers = workers
	}
	if flags.Changed("target-width") {
		cfg.Pipeline.TargetWidth = targetWidth
	}
	if flags.Changed("target-height") {
		cfg.Pipeline.TargetHeight = targetHeight
	}
	if flags.Changed("output-dir") {
		cfg.Pipeline.OutputDir = outputDir
	}
	if flags.Changed("data-dir") {
		cfg.Pipeline.DataDir = dataDir
	}
	return cfg.Validate()
}

func runTransport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	pcfg := pipeline.Config{
		Options:      cfg.EngineOptions(),
		Thresholds:   cfg.Thresholds(),
		TargetWidth:  cfg.Pipeline.TargetWidth,
		TargetHeight: cfg.Pipeline.TargetHeight,
		OutputDir:    cfg.Pipeline.OutputDir,
		Logger:       slog.Default(),
	}
	if saveRun {
		st, err := store.NewFSStore(cfg.Pipeline.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		pcfg.Store = st
	}

	slog.Info("Starting transport", "method", cfg.Transport.Method, "source", sourcePath, "target", targetPath)

	res, err := pipeline.New(pcfg).Run(context.Background(), pipeline.Request{
		SourcePath: sourcePath,
		TargetPath: targetPath,
		Method:     transport.Method(cfg.Transport.Method),
	})
	if err != nil {
		return err
	}

	printRunSummary(cmd.OutOrStdout(), res, saveRun)
	return nil
}

func printRunSummary(w io.Writer, res *pipeline.Result, saved bool) {
	printTitle(w, "Color transport")
	printKeyValue(w, "Method", string(res.Method))
	printKeyValue(w, "Size", fmt.Sprintf("%dx%d", res.Target.Bounds().Dx(), res.Target.Bounds().Dy()))
	printKeyValue(w, "SSIM", fmt.Sprintf("%.4f", res.SSIM))
	printKeyValue(w, "Verdict", renderVerdict(res.Verdict))
	printKeyValue(w, "Publishable", fmt.Sprintf("%t", res.Publishable))
	printKeyValue(w, "Elapsed", res.Elapsed.String())
	if saved {
		printKeyValue(w, "Run ID", res.RunID)
	}
	for _, f := range res.Files {
		printFile(w, f)
	}
}
