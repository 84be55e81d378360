package quality

import (
	"fmt"
	"image"
)

// MSE computes the mean squared error over the RGB channels of two
// equally sized images. Alpha is ignored.
func MSE(current, reference *image.NRGBA) (float64, error) {
	width := current.Rect.Dx()
	height := current.Rect.Dy()

	if width != reference.Rect.Dx() || height != reference.Rect.Dy() {
		return 0, fmt.Errorf("image dimensions must match: %dx%d vs %dx%d",
			width, height, reference.Rect.Dx(), reference.Rect.Dy())
	}
	if width == 0 || height == 0 {
		return 0, fmt.Errorf("images are empty")
	}

	var sum float64
	numPixels := width * height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := current.PixOffset(current.Rect.Min.X+x, current.Rect.Min.Y+y)
			j := reference.PixOffset(reference.Rect.Min.X+x, reference.Rect.Min.Y+y)

			dr := float64(current.Pix[i+0]) - float64(reference.Pix[j+0])
			dg := float64(current.Pix[i+1]) - float64(reference.Pix[j+1])
			db := float64(current.Pix[i+2]) - float64(reference.Pix[j+2])

			sum += dr*dr + dg*dg + db*db
		}
	}

	// Mean over pixels and channels
	return sum / float64(numPixels*3), nil
}
