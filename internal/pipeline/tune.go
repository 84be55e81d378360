package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/pixelsculptor/internal/opt"
	"github.com/cwbudde/pixelsculptor/internal/quality"
	"github.com/cwbudde/pixelsculptor/internal/store"
	"github.com/cwbudde/pixelsculptor/internal/transport"
)

// Search ranges for Tune.
const (
	MinTuneBlockSize = 4
	MaxTuneBlockSize = 16
	MinTuneReg       = 0.01
	MaxTuneReg       = 0.5
)

// TraceSink records tuning evaluations. *store.TraceWriter implements it.
type TraceSink interface {
	Write(entry store.TraceEntry) error
	Flush() error
}

// TuneOptions configures a parameter search.
type TuneOptions struct {
	Iters   int
	PopSize int
	Seed    int64

	// Base supplies every blockwise setting the search does not vary.
	Base transport.BlockOptions

	// Trace, if set, receives one entry per successful evaluation.
	Trace TraceSink

	Logger *slog.Logger
}

// DefaultTuneOptions returns a short search around the default solver.
func DefaultTuneOptions() TuneOptions {
	return TuneOptions{
		Iters:   20,
		PopSize: opt.MinPopSize,
		Seed:    42,
		Base:    transport.DefaultBlockOptions(),
	}
}

// TuneResult is the best blockwise setting found.
type TuneResult struct {
	BlockSize    int
	Reg          float64
	BestCost     float64
	BaselineCost float64
	Evaluations  int
	Elapsed      time.Duration
}

// Improvement returns the relative cost reduction over the baseline.
func (r *TuneResult) Improvement() float64 {
	if r.BaselineCost == 0 {
		return 0
	}
	return (r.BaselineCost - r.BestCost) / r.BaselineCost
}

// Tune searches block size and regularization for the blockwise method,
// minimizing the MSE between the transported source and the target. src
// must already have tgt's shape. The baseline is the cost of opts.Base.
func Tune(ctx context.Context, src, tgt *transport.Image, opts TuneOptions) (*TuneResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !src.SameShape(tgt) {
		return nil, fmt.Errorf("source %dx%d does not match target %dx%d",
			src.Width, src.Height, tgt.Width, tgt.Height)
	}

	reference := tgt.ToNRGBA()
	cost := func(blockSize int, reg float64) (float64, error) {
		block := opts.Base
		block.BlockSize = blockSize
		block.Sinkhorn.Reg = reg
		block.OnBlock = nil

		out, _, err := transport.Blockwise(src, tgt, block)
		if err != nil {
			return 0, err
		}
		return quality.MSE(out.ToNRGBA(), reference)
	}

	baseline, err := cost(opts.Base.BlockSize, opts.Base.Sinkhorn.Reg)
	if err != nil {
		return nil, fmt.Errorf("baseline evaluation failed: %w", err)
	}
	logger.Info("Starting tune",
		"baseline_cost", baseline,
		"iters", opts.Iters,
		"pop", opts.PopSize,
	)

	var (
		mu       sync.Mutex
		evals    int
		best     = math.Inf(1)
		traceErr error
	)
	eval := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		blockSize, reg := decodeParams(x)
		c, err := cost(blockSize, reg)
		if err != nil {
			logger.Warn("Evaluation failed", "block_size", blockSize, "reg", reg, "error", err)
			c = math.Inf(1)
		}

		mu.Lock()
		defer mu.Unlock()
		evals++
		best = min(best, c)
		if opts.Trace != nil && traceErr == nil && !math.IsInf(c, 0) {
			err := opts.Trace.Write(store.TraceEntry{
				Evaluation: evals,
				BlockSize:  blockSize,
				Reg:        reg,
				Cost:       c,
				BestCost:   best,
				Timestamp:  time.Now(),
			})
			if err != nil {
				logger.Warn("Failed to write trace entry", "evaluation", evals, "error", err)
				traceErr = err
			}
		}
		return c
	}

	start := time.Now()
	optimizer := opt.NewMayfly(opts.Iters, opts.PopSize, opts.Seed)
	params, bestCost, err := optimizer.Run(eval,
		[]float64{MinTuneBlockSize, MinTuneReg},
		[]float64{MaxTuneBlockSize, MaxTuneReg},
	)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if traceErr != nil {
		return nil, fmt.Errorf("failed to record trace: %w", traceErr)
	}
	if opts.Trace != nil {
		if err := opts.Trace.Flush(); err != nil {
			return nil, err
		}
	}

	blockSize, reg := decodeParams(params)
	res := &TuneResult{
		BlockSize:    blockSize,
		Reg:          reg,
		BestCost:     bestCost,
		BaselineCost: baseline,
		Evaluations:  evals,
		Elapsed:      time.Since(start),
	}

	logger.Info("Tune complete",
		"block_size", res.BlockSize,
		"reg", fmt.Sprintf("%.4f", res.Reg),
		"best_cost", res.BestCost,
		"baseline_cost", res.BaselineCost,
		"evaluations", res.Evaluations,
	)
	return res, nil
}

// decodeParams rounds the block size dimension to an integer.
func decodeParams(x []float64) (int, float64) {
	blockSize := int(math.Round(x[0]))
	blockSize = max(MinTuneBlockSize, min(MaxTuneBlockSize, blockSize))
	reg := max(MinTuneReg, min(MaxTuneReg, x[1]))
	return blockSize, reg
}
