package imageio

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

const (
	comparisonGap    = 10
	comparisonHeader = 30
	comparisonFooter = 10
)

var comparisonBackground = color.NRGBA{30, 30, 30, 255}

// Comparison renders source, transformed and target side by side on a dark
// canvas. Every panel takes the target's size; the source is resized to fit.
func Comparison(source, transformed, target image.Image) *image.NRGBA {
	w, h := target.Bounds().Dx(), target.Bounds().Dy()

	canvas := image.NewNRGBA(image.Rect(0, 0, 3*w+2*comparisonGap, h+comparisonHeader+comparisonFooter))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(comparisonBackground), image.Point{}, draw.Src)

	panels := []image.Image{fitTo(source, w, h), fitTo(transformed, w, h), target}
	for i, panel := range panels {
		x := i * (w + comparisonGap)
		r := image.Rect(x, comparisonHeader, x+w, comparisonHeader+h)
		draw.Draw(canvas, r, panel, panel.Bounds().Min, draw.Src)
	}

	return canvas
}

func fitTo(img image.Image, w, h int) image.Image {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	return Resize(img, w, h)
}

// DiffImage renders per-pixel RGB distance as a false-color image:
// black means identical, bright red means maximal difference.
func DiffImage(a, b image.Image) *image.NRGBA {
	bounds := a.Bounds()
	diff := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	bb := b.Bounds()

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r1, g1, b1, _ := a.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r2, g2, b2, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()

			// Per-channel differences (0-65535 range)
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)

			// Max magnitude is ~113k for 16-bit channels
			normalized := uint8(math.Min(255, math.Sqrt(dr*dr+dg*dg+db*db)/443.0))

			diff.Set(x, y, color.NRGBA{normalized, 0, 0, 255})
		}
	}

	return diff
}
