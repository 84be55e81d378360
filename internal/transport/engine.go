package transport

import (
	"fmt"
	"log/slog"
	"time"
)

// Method selects the transport algorithm.
type Method string

const (
	MethodBlockwise Method = "blockwise"
	MethodHistogram Method = "histogram"
	MethodHungarian Method = "hungarian"
)

// Methods lists every supported method.
var Methods = []Method{MethodBlockwise, MethodHistogram, MethodHungarian}

// ParseMethod validates a method name.
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods {
		if string(m) == name {
			return m, nil
		}
	}
	return "", invalid("method", fmt.Sprintf("unknown method %q", name))
}

// Options configures every solver the engine can dispatch to.
type Options struct {
	Block      BlockOptions
	SampleSize int // Assignment subsample cap
	Bins       int // Histogram bins
}

// DefaultOptions returns the defaults of each solver.
func DefaultOptions() Options {
	return Options{
		Block:      DefaultBlockOptions(),
		SampleSize: DefaultSampleSize,
		Bins:       DefaultBins,
	}
}

// Engine reconciles inputs and dispatches to a solver.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger uses slog.Default().
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Apply transforms src toward tgt with the given method. The result always
// has the target's shape; a source of different size is resized first.
func (e *Engine) Apply(src, tgt Input, method Method) (*Image, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}

	source, err := src.resolve("source")
	if err != nil {
		return nil, err
	}
	target, err := tgt.resolve("target")
	if err != nil {
		return nil, err
	}
	if target.Width == 0 || target.Height == 0 {
		return nil, invalid("target", "image is empty")
	}
	if source.Width == 0 || source.Height == 0 {
		return nil, invalid("source", "image is empty")
	}

	if !source.SameShape(target) {
		source = Resize(source, target.Width, target.Height)
		e.logger.Info("Resized source", "width", source.Width, "height", source.Height)
	}

	e.logger.Info("Applying transport", "method", method, "width", target.Width, "height", target.Height)
	start := time.Now()

	var out *Image
	switch method {
	case MethodBlockwise:
		var stats BlockStats
		out, stats, err = Blockwise(source, target, e.opts.Block)
		if err == nil {
			e.logger.Debug("Blockwise transport complete",
				"blocks", stats.Blocks,
				"converged", stats.Converged,
				"block_size", e.opts.Block.BlockSize,
			)
		}
	case MethodHistogram:
		out, err = MatchHistograms(source, target, e.opts.Bins)
	case MethodHungarian:
		out, err = e.hungarian(source, target)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("Transport complete", "method", method, "elapsed", time.Since(start))
	return out, nil
}

// hungarian matches flattened pixels and writes each matched source color at
// the target position of its partner. Positions outside the sampled match
// stay zero.
func (e *Engine) hungarian(source, target *Image) (*Image, error) {
	srcFlat := source.Flatten()
	tgtFlat := target.Flatten()

	pairs, err := Assign(srcFlat, tgtFlat, e.opts.SampleSize)
	if err != nil {
		return nil, err
	}

	out := NewImage(target.Width, target.Height)
	for _, p := range pairs {
		c := srcFlat[p.Source]
		out.Set(p.Target%target.Width, p.Target/target.Width, Color{quantize(c[0]), quantize(c[1]), quantize(c[2])})
	}

	if len(pairs) < len(tgtFlat) {
		e.logger.Warn("Assignment was subsampled; unmatched pixels are zero",
			"matched", len(pairs),
			"pixels", len(tgtFlat),
		)
	}
	return out, nil
}
