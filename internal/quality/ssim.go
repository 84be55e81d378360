// Package quality scores how closely a transformed image matches its target.
package quality

import (
	"fmt"
	"image"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	dataRange  = 255.0
)

// SSIM computes the mean structural similarity of the grayscale versions of
// a and b using a 7×7 uniform window and sample covariance. Only windows
// that lie fully inside the image contribute. If b differs in size it is
// resized to a's dimensions first.
func SSIM(a, b image.Image) (float64, error) {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w < ssimWindow || h < ssimWindow {
		return 0, fmt.Errorf("image %dx%d is smaller than the %dx%d SSIM window", w, h, ssimWindow, ssimWindow)
	}
	if b.Bounds().Dx() != w || b.Bounds().Dy() != h {
		b = imageio.Resize(b, w, h)
	}

	x := Luma(a)
	y := Luma(b)

	c1 := (ssimK1 * dataRange) * (ssimK1 * dataRange)
	c2 := (ssimK2 * dataRange) * (ssimK2 * dataRange)

	np := float64(ssimWindow * ssimWindow)
	covNorm := np / (np - 1)
	pad := ssimWindow / 2

	var sum float64
	var count int
	for cy := pad; cy < h-pad; cy++ {
		for cx := pad; cx < w-pad; cx++ {
			var sx, sy, sxx, syy, sxy float64
			for dy := -pad; dy <= pad; dy++ {
				row := (cy + dy) * w
				for dx := -pad; dx <= pad; dx++ {
					px := x[row+cx+dx]
					py := y[row+cx+dx]
					sx += px
					sy += py
					sxx += px * px
					syy += py * py
					sxy += px * py
				}
			}

			ux, uy := sx/np, sy/np
			vx := covNorm * (sxx/np - ux*ux)
			vy := covNorm * (syy/np - uy*uy)
			vxy := covNorm * (sxy/np - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			sum += num / den
			count++
		}
	}

	return sum / float64(count), nil
}

// Luma converts img to 8-bit ITU-R 601 luma values in row-major order,
// using the same fixed-point weights as common imaging libraries.
func Luma(img image.Image) []float64 {
	n := imageio.ToNRGBA(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := n.PixOffset(x, y)
			r, g, b := uint32(n.Pix[i]), uint32(n.Pix[i+1]), uint32(n.Pix[i+2])
			out[y*w+x] = float64((r*19595 + g*38470 + b*7471 + 0x8000) >> 16)
		}
	}
	return out
}
