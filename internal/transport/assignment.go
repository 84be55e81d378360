package transport

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultSampleSize caps the assignment problem at 2000×2000.
const DefaultSampleSize = 2000

// Pair matches a source index to a target index.
type Pair struct {
	Source int
	Target int
}

// Assign computes an exact minimum-cost one-to-one matching between src and
// tgt. With n = min(len(src), len(tgt), sampleSize), any side longer than n
// is reduced to n evenly spaced indices first, so the result is optimal over
// the sampled n×n problem only. Returned indices refer to the original sets.
func Assign(src, tgt PixelSet, sampleSize int) ([]Pair, error) {
	if len(src) == 0 {
		return nil, invalid("source", "pixel set is empty")
	}
	if len(tgt) == 0 {
		return nil, invalid("target", "pixel set is empty")
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	n := min(len(src), len(tgt), sampleSize)
	srcIdx := SampleIndices(len(src), n)
	tgtIdx := SampleIndices(len(tgt), n)

	cost, err := CostMatrix(pick(src, srcIdx), pick(tgt, tgtIdx))
	if err != nil {
		return nil, err
	}

	cols, err := MinCostMatching(cost)
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, n)
	for row, col := range cols {
		pairs[row] = Pair{Source: srcIdx[row], Target: tgtIdx[col]}
	}
	return pairs, nil
}

// SampleIndices selects n evenly spaced indices over [0, total-1].
// When n >= total every index is returned.
func SampleIndices(total, n int) []int {
	if n >= total {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, n)
	if n == 1 {
		return idx
	}
	for k := range idx {
		idx[k] = k * (total - 1) / (n - 1)
	}
	return idx
}

func pick(set PixelSet, idx []int) PixelSet {
	out := make(PixelSet, len(idx))
	for k, i := range idx {
		out[k] = set[i]
	}
	return out
}

// MinCostMatching solves the square assignment problem on cost and returns,
// for every row, the column it is matched to. It runs the shortest
// augmenting path variant of the Hungarian method in O(n³).
func MinCostMatching(cost *mat.Dense) ([]int, error) {
	n, m := cost.Dims()
	if n != m {
		return nil, invalid("cost", fmt.Sprintf("matrix must be square, got %dx%d", n, m))
	}

	// 1-based arrays; index 0 is the virtual free row/column.
	rowPot := make([]float64, n+1)
	colPot := make([]float64, n+1)
	match := make([]int, n+1) // match[col] = row
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)

	for row := 1; row <= n; row++ {
		match[0] = row
		col0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}

		for {
			used[col0] = true
			row0 := match[col0]
			delta := math.Inf(1)
			col1 := 0

			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost.At(row0-1, j-1) - rowPot[row0] - colPot[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = col0
				}
				if minv[j] < delta {
					delta = minv[j]
					col1 = j
				}
			}

			for j := 0; j <= n; j++ {
				if used[j] {
					rowPot[match[j]] += delta
					colPot[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			col0 = col1
			if match[col0] == 0 {
				break
			}
		}

		// Flip the augmenting path.
		for col0 != 0 {
			col1 := way[col0]
			match[col0] = match[col1]
			col0 = col1
		}
	}

	cols := make([]int, n)
	for j := 1; j <= n; j++ {
		cols[match[j]-1] = j - 1
	}
	return cols, nil
}
