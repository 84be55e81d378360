package transport

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CostMatrix computes Euclidean color distances between src (rows) and
// tgt (columns), normalized so the largest entry is 1. An all-zero matrix
// is returned unscaled.
func CostMatrix(src, tgt PixelSet) (*mat.Dense, error) {
	if len(src) == 0 {
		return nil, invalid("source", "pixel set is empty")
	}
	if len(tgt) == 0 {
		return nil, invalid("target", "pixel set is empty")
	}

	n, m := len(src), len(tgt)
	data := make([]float64, n*m)
	maxDist := 0.0

	for i, s := range src {
		row := data[i*m : (i+1)*m]
		for j, t := range tgt {
			dr := s[0] - t[0]
			dg := s[1] - t[1]
			db := s[2] - t[2]
			d := math.Sqrt(dr*dr + dg*dg + db*db)
			row[j] = d
			if d > maxDist {
				maxDist = d
			}
		}
	}

	if maxDist == 0 {
		maxDist = 1
	}
	for i := range data {
		data[i] /= maxDist
	}

	return mat.NewDense(n, m, data), nil
}
