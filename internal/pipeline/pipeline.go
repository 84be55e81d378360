// Package pipeline drives a complete color transport run: loading, resizing,
// solving, grading and writing the results.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
	"github.com/cwbudde/pixelsculptor/internal/quality"
	"github.com/cwbudde/pixelsculptor/internal/store"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

// Output file names written to the output directory.
const (
	TargetFile      = "target_image.png"
	SourceFile      = "source_image.png"
	TransformedFile = "transformed_image.png"
	ComparisonFile  = "comparison.png"
)

// Config configures a Pipeline.
type Config struct {
	Options    transport.Options
	Thresholds quality.Thresholds

	// TargetWidth×TargetHeight is the size every target is resized to.
	// 0×0 keeps the target's own size.
	TargetWidth  int
	TargetHeight int

	// OutputDir receives the four output PNGs. Empty disables writing.
	OutputDir string

	// Store, if set, persists every run.
	Store store.Store

	Logger *slog.Logger
}

// Pipeline runs transports end to end. It is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a pipeline. A nil logger uses slog.Default().
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Request describes one run.
type Request struct {
	// RunID names the run in the store; a new UUID is used when empty.
	RunID string

	SourcePath string
	TargetPath string
	Method     transport.Method

	// TargetWidth and TargetHeight override the configured target size
	// when both are positive.
	TargetWidth  int
	TargetHeight int

	// OutputDir overrides the configured output directory when set.
	OutputDir string

	// OnBlock reports blockwise progress.
	OnBlock func(done, total int)
}

// Result is the outcome of a run.
type Result struct {
	RunID  string
	Method transport.Method

	Source      *image.NRGBA
	Target      *image.NRGBA
	Transformed *image.NRGBA

	SSIM        float64
	Verdict     quality.Verdict
	Publishable bool
	Elapsed     time.Duration

	// Files lists the PNGs written to the output directory.
	Files []string
}

// Run executes req. ctx is checked between stages; a solve already in
// progress runs to completion.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := p.logger.With("run", runID)

	target, err := imageio.LoadNRGBA(req.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", req.TargetPath, err)
	}
	width, height := p.targetSize(req)
	if width > 0 && (target.Bounds().Dx() != width || target.Bounds().Dy() != height) {
		logger.Info("Resizing target",
			"from", fmt.Sprintf("%dx%d", target.Bounds().Dx(), target.Bounds().Dy()),
			"to", fmt.Sprintf("%dx%d", width, height),
		)
		target = imageio.Resize(target, width, height)
	}

	source, err := imageio.LoadNRGBA(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourcePath, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := p.cfg.Options
	opts.Block.OnBlock = req.OnBlock
	engine := transport.NewEngine(opts, logger)

	start := time.Now()
	out, err := engine.Apply(transport.FromImage(source), transport.FromImage(target), req.Method)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transformed := out.ToNRGBA()
	ssim, err := score(transformed, target)
	if err != nil {
		return nil, fmt.Errorf("failed to score result: %w", err)
	}
	verdict := p.cfg.Thresholds.Classify(ssim)

	res := &Result{
		RunID:       runID,
		Method:      req.Method,
		Source:      source,
		Target:      target,
		Transformed: transformed,
		SSIM:        ssim,
		Verdict:     verdict,
		Publishable: verdict.Publishable(),
		Elapsed:     elapsed,
	}

	logger.Info("Run complete",
		"method", req.Method,
		"ssim", fmt.Sprintf("%.4f", ssim),
		"verdict", verdict,
		"elapsed", elapsed,
	)

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = p.cfg.OutputDir
	}
	if outputDir != "" {
		if res.Files, err = writeOutputs(outputDir, res); err != nil {
			return nil, err
		}
	}

	if p.cfg.Store != nil {
		if err := p.persist(req, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// score grades a against b, upscaling both when they are smaller than the
// SSIM window.
func score(a, b image.Image) (float64, error) {
	const minSide = 7
	w, h := b.Bounds().Dx(), b.Bounds().Dy()
	if w < minSide || h < minSide {
		w, h = max(w, minSide), max(h, minSide)
		a, b = imageio.Resize(a, w, h), imageio.Resize(b, w, h)
	}
	return quality.SSIM(a, b)
}

func (p *Pipeline) targetSize(req Request) (int, int) {
	if req.TargetWidth > 0 && req.TargetHeight > 0 {
		return req.TargetWidth, req.TargetHeight
	}
	return p.cfg.TargetWidth, p.cfg.TargetHeight
}

func writeOutputs(dir string, res *Result) ([]string, error) {
	outputs := []struct {
		name string
		img  image.Image
	}{
		{TargetFile, res.Target},
		{SourceFile, res.Source},
		{TransformedFile, res.Transformed},
		{ComparisonFile, imageio.Comparison(res.Source, res.Transformed, res.Target)},
	}

	files := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := imageio.SavePNG(path, o.img); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", o.name, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func (p *Pipeline) persist(req Request, res *Result) error {
	opts := p.cfg.Options
	run := &store.Run{
		ID:         res.RunID,
		Method:     string(res.Method),
		SourcePath: req.SourcePath,
		TargetPath: req.TargetPath,
		Width:      res.Target.Bounds().Dx(),
		Height:     res.Target.Bounds().Dy(),
		Options: store.RunOptions{
			BlockSize:  opts.Block.BlockSize,
			Reg:        opts.Block.Sinkhorn.Reg,
			SampleSize: opts.SampleSize,
			Bins:       opts.Bins,
		},
		SSIM:           res.SSIM,
		Verdict:        string(res.Verdict),
		Publishable:    res.Publishable,
		ElapsedSeconds: res.Elapsed.Seconds(),
		CreatedAt:      time.Now(),
	}
	if err := p.cfg.Store.SaveRun(run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	images := map[string]image.Image{
		"target":      res.Target,
		"transformed": res.Transformed,
	}
	for _, name := range []string{"target", "transformed"} {
		if err := p.cfg.Store.SaveImage(res.RunID, name, images[name]); err != nil {
			return fmt.Errorf("failed to save %s image: %w", name, err)
		}
	}
	return nil
}
