package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/pixelsculptor/internal/transport"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pixelsculptor.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Transport.Method != "blockwise" {
		t.Errorf("Expected default method blockwise, got %s", cfg.Transport.Method)
	}
	if cfg.Transport.BlockSize != 8 || cfg.Transport.BlockReg != 0.05 {
		t.Errorf("Unexpected block defaults: %+v", cfg.Transport)
	}
	if cfg.Pipeline.TargetWidth != 128 || cfg.Pipeline.TargetHeight != 64 {
		t.Errorf("Expected 128x64 target, got %dx%d", cfg.Pipeline.TargetWidth, cfg.Pipeline.TargetHeight)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[transport]
method = "histogram"
bins = 32

[pipeline]
min_ssim = 0.6
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.Method != "histogram" {
		t.Errorf("Expected method histogram, got %s", cfg.Transport.Method)
	}
	if cfg.Transport.Bins != 32 {
		t.Errorf("Expected 32 bins, got %d", cfg.Transport.Bins)
	}
	if cfg.Transport.BlockSize != 8 {
		t.Errorf("Unset keys should keep defaults, got block size %d", cfg.Transport.BlockSize)
	}
	if cfg.Pipeline.MinSSIM != 0.6 {
		t.Errorf("Expected min_ssim 0.6, got %f", cfg.Pipeline.MinSSIM)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected default addr, got %s", cfg.Server.Addr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown method", "[transport]\nmethod = \"foo\"\n"},
		{"zero block size", "[transport]\nblock_size = 0\n"},
		{"negative reg", "[transport]\nblock_reg = -0.1\n"},
		{"half target size", "[pipeline]\ntarget_width = 0\n"},
		{"unknown key", "[transport]\nblok_size = 4\n"},
		{"thresholds inverted", "[pipeline]\nmin_ssim = 0.9\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeConfig(t, "[transport\n")); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	cfg.Transport.BlockSize = 4
	cfg.Transport.BlockReg = 0.2
	cfg.Transport.SampleSize = 100
	cfg.Transport.Workers = 2

	opts := cfg.EngineOptions()
	if opts.Block.BlockSize != 4 || opts.Block.Sinkhorn.Reg != 0.2 || opts.Block.Workers != 2 {
		t.Errorf("Unexpected block options: %+v", opts.Block)
	}
	if opts.SampleSize != 100 {
		t.Errorf("Expected sample size 100, got %d", opts.SampleSize)
	}
	if opts.Bins != transport.DefaultBins {
		t.Errorf("Expected default bins, got %d", opts.Bins)
	}

	// Zero workers is passed through; the solver picks GOMAXPROCS itself.
	cfg.Transport.Workers = 0
	if got := cfg.EngineOptions().Block.Workers; got != 0 {
		t.Errorf("Expected workers 0 to pass through, got %d", got)
	}

	cfg.Pipeline.MinSSIM = 0.5
	cfg.Pipeline.Excellent = 0.9
	if th := cfg.Thresholds(); th.Acceptable != 0.5 || th.Excellent != 0.9 {
		t.Errorf("Unexpected thresholds: %+v", th)
	}
}
