package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
	"github.com/cwbudde/pixelsculptor/internal/quality"
	"github.com/cwbudde/pixelsculptor/internal/store"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSolid(t *testing.T, dir, name string, w, h int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	if err := imageio.SavePNG(path, img); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func testConfig() Config {
	opts := transport.DefaultOptions()
	opts.Block.Workers = 2
	return Config{
		Options:      opts,
		Thresholds:   quality.DefaultThresholds(),
		TargetWidth:  16,
		TargetHeight: 16,
		Logger:       quietLogger(),
	}
}

func TestRunBlockwise(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 16, 16, color.NRGBA{255, 0, 0, 255})
	tgt := writeSolid(t, dir, "tgt.png", 16, 16, color.NRGBA{0, 0, 255, 255})

	cfg := testConfig()
	cfg.OutputDir = filepath.Join(dir, "out")
	p := New(cfg)

	res, err := p.Run(context.Background(), Request{SourcePath: src, TargetPath: tgt, Method: transport.MethodBlockwise})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := res.Transformed.NRGBAAt(5, 5); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected source color to survive a solid transport, got %v", got)
	}
	if res.RunID == "" {
		t.Error("Expected a generated run ID")
	}
	if len(res.Files) != 4 {
		t.Fatalf("Expected 4 output files, got %v", res.Files)
	}
	for _, name := range []string{TargetFile, SourceFile, TransformedFile, ComparisonFile} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Errorf("Missing output %s: %v", name, err)
		}
	}

	cmp, err := imageio.Load(filepath.Join(cfg.OutputDir, ComparisonFile))
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Bounds().Dx() != 3*16+20 || cmp.Bounds().Dy() != 16+40 {
		t.Errorf("Unexpected comparison size %v", cmp.Bounds())
	}
}

func TestRunIdenticalImagesIsExcellent(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 16, 16, color.NRGBA{40, 120, 200, 255})

	res, err := New(testConfig()).Run(context.Background(), Request{SourcePath: src, TargetPath: src, Method: transport.MethodHistogram})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Verdict != quality.VerdictExcellent || !res.Publishable {
		t.Errorf("Expected excellent and publishable, got %s (ssim %f)", res.Verdict, res.SSIM)
	}
	if len(res.Files) != 0 {
		t.Errorf("No output dir configured, expected no files, got %v", res.Files)
	}
}

func TestRunResizesTarget(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 10, 10, color.NRGBA{0, 255, 0, 255})
	tgt := writeSolid(t, dir, "tgt.png", 40, 20, color.NRGBA{0, 0, 255, 255})

	cfg := testConfig()
	cfg.TargetWidth, cfg.TargetHeight = 16, 8
	p := New(cfg)

	res, err := p.Run(context.Background(), Request{SourcePath: src, TargetPath: tgt, Method: transport.MethodBlockwise})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if b := res.Transformed.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("Expected 16x8 output, got %v", b)
	}

	// A request size overrides the configured one.
	res, err = p.Run(context.Background(), Request{
		SourcePath: src, TargetPath: tgt, Method: transport.MethodHistogram,
		TargetWidth: 20, TargetHeight: 10,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if b := res.Transformed.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("Expected 20x10 output, got %v", b)
	}
}

func TestRunKeepsTargetSizeWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 10, 10, color.NRGBA{0, 255, 0, 255})
	tgt := writeSolid(t, dir, "tgt.png", 12, 9, color.NRGBA{0, 0, 255, 255})

	cfg := testConfig()
	cfg.TargetWidth, cfg.TargetHeight = 0, 0

	res, err := New(cfg).Run(context.Background(), Request{SourcePath: src, TargetPath: tgt, Method: transport.MethodHistogram})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if b := res.Transformed.Bounds(); b.Dx() != 12 || b.Dy() != 9 {
		t.Errorf("Expected 12x9 output, got %v", b)
	}
}

func TestRunTinyTarget(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 4, 4, color.NRGBA{10, 10, 10, 255})

	cfg := testConfig()
	cfg.TargetWidth, cfg.TargetHeight = 4, 4

	res, err := New(cfg).Run(context.Background(), Request{SourcePath: src, TargetPath: src, Method: transport.MethodHungarian})
	if err != nil {
		t.Fatalf("Run failed on a target smaller than the SSIM window: %v", err)
	}
	if res.SSIM < 0.99 {
		t.Errorf("Expected SSIM near 1, got %f", res.SSIM)
	}
}

func TestRunProgress(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 16, 16, color.NRGBA{255, 0, 0, 255})

	var last, total int
	_, err := New(testConfig()).Run(context.Background(), Request{
		SourcePath: src, TargetPath: src, Method: transport.MethodBlockwise,
		OnBlock: func(done, n int) { last, total = done, n },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if last != 4 || total != 4 {
		t.Errorf("Expected final progress 4/4, got %d/%d", last, total)
	}
}

func TestRunPersistsToStore(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 16, 16, color.NRGBA{255, 0, 0, 255})

	st, err := store.NewFSStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Store = st

	res, err := New(cfg).Run(context.Background(), Request{RunID: "fixed", SourcePath: src, TargetPath: src, Method: transport.MethodBlockwise})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.RunID != "fixed" {
		t.Errorf("Expected run ID fixed, got %s", res.RunID)
	}

	run, err := st.LoadRun("fixed")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if run.Method != "blockwise" || run.Width != 16 || run.Height != 16 {
		t.Errorf("Unexpected stored run: %+v", run)
	}
	if run.Options.BlockSize != 8 || run.Options.Reg != 0.05 {
		t.Errorf("Unexpected stored options: %+v", run.Options)
	}
	if len(run.Images) != 2 {
		t.Errorf("Expected 2 stored images, got %v", run.Images)
	}
	if _, err := os.Stat(st.ImagePath("fixed", "transformed")); err != nil {
		t.Errorf("Transformed image not stored: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	src := writeSolid(t, dir, "src.png", 16, 16, color.NRGBA{255, 0, 0, 255})
	p := New(testConfig())

	_, err := p.Run(context.Background(), Request{SourcePath: src, TargetPath: src, Method: "foo"})
	if !errors.Is(err, transport.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown method, got %v", err)
	}

	_, err = p.Run(context.Background(), Request{SourcePath: src, TargetPath: filepath.Join(dir, "missing.png"), Method: transport.MethodBlockwise})
	if err == nil {
		t.Error("Expected error for missing target")
	}

	_, err = p.Run(context.Background(), Request{SourcePath: filepath.Join(dir, "missing.png"), TargetPath: src, Method: transport.MethodBlockwise})
	if err == nil {
		t.Error("Expected error for missing source")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, Request{SourcePath: src, TargetPath: src, Method: transport.MethodBlockwise})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
