package transport

import "math/rand"

// solidImage creates a w×h image filled with c.
func solidImage(w, h int, c Color) *Image {
	img := NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// randomImage creates a w×h image with integer channel values.
func randomImage(w, h int, seed int64) *Image {
	rng := rand.New(rand.NewSource(seed))
	img := NewImage(w, h)
	for i := range img.Pix {
		img.Pix[i] = float64(rng.Intn(256))
	}
	return img
}

func randomPixels(n int, seed int64) PixelSet {
	return randomImage(n, 1, seed).Flatten()
}
