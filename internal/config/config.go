// Package config loads pipeline settings from a TOML file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/cwbudde/pixelsculptor/internal/quality"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

// Config is the full configuration file.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
}

// TransportConfig holds the solver settings.
type TransportConfig struct {
	Method     string  `toml:"method"`
	BlockSize  int     `toml:"block_size"`
	BlockReg   float64 `toml:"block_reg"`
	MaxIter    int     `toml:"max_iter"`
	Tolerance  float64 `toml:"tolerance"`
	SampleSize int     `toml:"sample_size"`
	Bins       int     `toml:"bins"`
	Workers    int     `toml:"workers"` // 0 = GOMAXPROCS
}

// PipelineConfig holds the surrounding run settings.
type PipelineConfig struct {
	TargetWidth  int     `toml:"target_width"` // 0 keeps the target's own size
	TargetHeight int     `toml:"target_height"`
	MinSSIM      float64 `toml:"min_ssim"`
	Excellent    float64 `toml:"excellent_ssim"`
	OutputDir    string  `toml:"output_dir"`
	DataDir      string  `toml:"data_dir"`
}

// ServerConfig holds the job server settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	block := transport.DefaultBlockOptions()
	th := quality.DefaultThresholds()

	return &Config{
		Transport: TransportConfig{
			Method:     string(transport.MethodBlockwise),
			BlockSize:  block.BlockSize,
			BlockReg:   block.Sinkhorn.Reg,
			MaxIter:    block.Sinkhorn.MaxIter,
			Tolerance:  block.Sinkhorn.Tolerance,
			SampleSize: transport.DefaultSampleSize,
			Bins:       transport.DefaultBins,
		},
		Pipeline: PipelineConfig{
			TargetWidth:  128,
			TargetHeight: 64,
			MinSSIM:      th.Acceptable,
			Excellent:    th.Excellent,
			OutputDir:    ".",
			DataDir:      "./data",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads path on top of the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, &ValidationError{Field: undecoded[0].String(), Reason: "is not a known setting"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every setting for range errors.
func (c *Config) Validate() error {
	t := c.Transport
	if _, err := transport.ParseMethod(t.Method); err != nil {
		return &ValidationError{Field: "transport.method", Reason: fmt.Sprintf("unknown method %q", t.Method)}
	}
	if t.BlockSize <= 0 {
		return &ValidationError{Field: "transport.block_size", Reason: "must be positive"}
	}
	if !(t.BlockReg > 0) {
		return &ValidationError{Field: "transport.block_reg", Reason: "must be positive"}
	}
	if t.MaxIter <= 0 {
		return &ValidationError{Field: "transport.max_iter", Reason: "must be positive"}
	}
	if t.Tolerance < 0 {
		return &ValidationError{Field: "transport.tolerance", Reason: "cannot be negative"}
	}
	if t.SampleSize <= 0 {
		return &ValidationError{Field: "transport.sample_size", Reason: "must be positive"}
	}
	if t.Bins <= 0 {
		return &ValidationError{Field: "transport.bins", Reason: "must be positive"}
	}
	if t.Workers < 0 {
		return &ValidationError{Field: "transport.workers", Reason: "cannot be negative"}
	}

	p := c.Pipeline
	if p.TargetWidth < 0 || p.TargetHeight < 0 || (p.TargetWidth == 0) != (p.TargetHeight == 0) {
		return &ValidationError{Field: "pipeline.target_width/target_height", Reason: "must both be positive or both be zero"}
	}
	if p.MinSSIM > p.Excellent {
		return &ValidationError{Field: "pipeline.min_ssim", Reason: "cannot exceed excellent_ssim"}
	}
	return nil
}

// EngineOptions converts the transport section into solver options.
func (c *Config) EngineOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.Block.BlockSize = c.Transport.BlockSize
	opts.Block.Sinkhorn.Reg = c.Transport.BlockReg
	opts.Block.Sinkhorn.MaxIter = c.Transport.MaxIter
	opts.Block.Sinkhorn.Tolerance = c.Transport.Tolerance
	opts.Block.Workers = c.Transport.Workers
	opts.SampleSize = c.Transport.SampleSize
	opts.Bins = c.Transport.Bins
	return opts
}

// Thresholds returns the SSIM grading thresholds.
func (c *Config) Thresholds() quality.Thresholds {
	return quality.Thresholds{Excellent: c.Pipeline.Excellent, Acceptable: c.Pipeline.MinSSIM}
}

// ValidationError reports an invalid setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}
