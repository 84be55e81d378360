package transport

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the tile edge used by the blockwise method.
const DefaultBlockSize = 8

// BlockOptions configures the tiled Sinkhorn solve.
type BlockOptions struct {
	BlockSize int
	Sinkhorn  SinkhornOptions

	// Workers bounds the number of blocks solved concurrently.
	// 0 uses GOMAXPROCS, 1 solves blocks sequentially.
	Workers int

	// OnBlock, if set, is called after every finished block. Calls are
	// serialized.
	OnBlock func(done, total int)
}

// DefaultBlockOptions uses 8×8 tiles and a sharper regularization of 0.05.
func DefaultBlockOptions() BlockOptions {
	sinkhorn := DefaultSinkhornOptions()
	sinkhorn.Reg = 0.05
	return BlockOptions{
		BlockSize: DefaultBlockSize,
		Sinkhorn:  sinkhorn,
	}
}

// BlockStats summarizes a blockwise solve.
type BlockStats struct {
	Blocks    int
	Converged int // Blocks whose Sinkhorn solve reached tolerance
}

// Partition splits a width×height area into a row-major grid of size×size
// tiles. Trailing tiles are truncated at the image edge.
func Partition(width, height, size int) []image.Rectangle {
	if size <= 0 || width <= 0 || height <= 0 {
		return nil
	}
	rows := (height + size - 1) / size
	cols := (width + size - 1) / size

	blocks := make([]image.Rectangle, 0, rows*cols)
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			y1, x1 := by*size, bx*size
			blocks = append(blocks, image.Rect(x1, y1, min(x1+size, width), min(y1+size, height)))
		}
	}
	return blocks
}

// Blockwise transports src onto tgt tile by tile. Every output pixel is the
// plan-weighted mean of the source pixels of its own tile; a plan column with
// zero mass copies the target pixel through. Tiles never exchange data, so
// seams at tile borders are expected.
func Blockwise(src, tgt *Image, opts BlockOptions) (*Image, BlockStats, error) {
	if opts.BlockSize <= 0 {
		return nil, BlockStats{}, invalid("block_size", fmt.Sprintf("must be > 0, got %d", opts.BlockSize))
	}
	if err := opts.Sinkhorn.validate(); err != nil {
		return nil, BlockStats{}, err
	}
	if !src.SameShape(tgt) {
		return nil, BlockStats{}, invalid("shape", fmt.Sprintf("source %dx%d does not match target %dx%d",
			src.Width, src.Height, tgt.Width, tgt.Height))
	}
	if tgt.Width == 0 || tgt.Height == 0 {
		return nil, BlockStats{}, invalid("target", "image is empty")
	}

	blocks := Partition(tgt.Width, tgt.Height, opts.BlockSize)
	out := NewImage(tgt.Width, tgt.Height)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu    sync.Mutex
		stats = BlockStats{Blocks: len(blocks)}
		done  int
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for _, r := range blocks {
		g.Go(func() error {
			converged, err := solveBlock(src, tgt, out, r, opts.Sinkhorn)
			if err != nil {
				return fmt.Errorf("block %v: %w", r, err)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if converged {
				stats.Converged++
			}
			if opts.OnBlock != nil {
				opts.OnBlock(done, len(blocks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, BlockStats{}, err
	}

	return out, stats, nil
}

// solveBlock writes the transported pixels of r into out. Distinct blocks
// touch disjoint parts of out.
func solveBlock(src, tgt, out *Image, r image.Rectangle, opts SinkhornOptions) (bool, error) {
	srcSet := src.Region(r)
	tgtSet := tgt.Region(r)

	plan, err := Sinkhorn(srcSet, tgtSet, opts)
	if err != nil {
		return false, err
	}

	w := r.Dx()
	for k := range tgtSet {
		var mass float64
		var c Color
		for i, s := range srcSet {
			p := plan.At(i, k)
			mass += p
			c[0] += p * s[0]
			c[1] += p * s[1]
			c[2] += p * s[2]
		}

		if mass > 0 {
			c = Color{c[0] / mass, c[1] / mass, c[2] / mass}
		} else {
			c = tgtSet[k]
		}
		out.Set(r.Min.X+k%w, r.Min.Y+k/w, Color{quantize(c[0]), quantize(c[1]), quantize(c[2])})
	}

	return plan.Converged, nil
}
