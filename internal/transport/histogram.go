package transport

import (
	"math"
	"sort"
)

// DefaultBins is the histogram resolution used by the histogram method.
const DefaultBins = 64

// MatchHistograms remaps every channel of src so its distribution follows
// tgt. Each source bin is sent to the midpoint of the target bin whose CDF
// value is closest to its own. The result has src's shape and integer
// channel values in [0,255].
func MatchHistograms(src, tgt *Image, bins int) (*Image, error) {
	if bins <= 0 {
		bins = DefaultBins
	}
	if len(src.Pix) == 0 {
		return nil, invalid("source", "image is empty")
	}
	if len(tgt.Pix) == 0 {
		return nil, invalid("target", "image is empty")
	}

	edges := binEdges(bins)
	out := NewImage(src.Width, src.Height)

	for ch := 0; ch < 3; ch++ {
		srcCDF := channelCDF(src, ch, edges)
		tgtCDF := channelCDF(tgt, ch, edges)
		mapping := cdfMapping(srcCDF, tgtCDF, edges)

		for i := ch; i < len(src.Pix); i += 3 {
			out.Pix[i] = quantize(mapping[binIndex(src.Pix[i], edges)])
		}
	}

	return out, nil
}

// binEdges returns bins+1 equally spaced edges over [0,255].
func binEdges(bins int) []float64 {
	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = 255 * float64(i) / float64(bins)
	}
	return edges
}

// binIndex returns the bin holding v. Bins are half-open except the last,
// which also holds 255; out-of-range values land in the nearest edge bin.
func binIndex(v float64, edges []float64) int {
	bins := len(edges) - 1
	// first edge strictly greater than v, minus one
	i := sort.Search(bins, func(k int) bool { return edges[k] > v }) - 1
	return max(0, min(i, bins-1))
}

// channelCDF builds the normalized cumulative histogram of one channel.
func channelCDF(img *Image, ch int, edges []float64) []float64 {
	bins := len(edges) - 1
	cdf := make([]float64, bins)
	total := 0
	for i := ch; i < len(img.Pix); i += 3 {
		cdf[binIndex(img.Pix[i], edges)]++
		total++
	}
	for i := 1; i < bins; i++ {
		cdf[i] += cdf[i-1]
	}
	for i := range cdf {
		cdf[i] /= float64(total)
	}
	return cdf
}

// cdfMapping sends each source bin to the midpoint of the first target bin
// with the nearest CDF value.
func cdfMapping(srcCDF, tgtCDF, edges []float64) []float64 {
	mapping := make([]float64, len(srcCDF))
	for i, s := range srcCDF {
		best, bestDiff := 0, math.Inf(1)
		for j, t := range tgtCDF {
			if d := math.Abs(t - s); d < bestDiff {
				best, bestDiff = j, d
			}
		}
		mapping[i] = (edges[best] + edges[best+1]) / 2
	}
	return mapping
}
