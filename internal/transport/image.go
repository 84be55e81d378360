package transport

import (
	"image"
	"image/color"
	"math"
)

// Color is an RGB vector with channel values in [0,255].
type Color [3]float64

// PixelSet is an ordered sequence of colors.
type PixelSet []Color

// Image is a row-major H×W×3 float array.
type Image struct {
	Width  int
	Height int
	Pix    []float64 // len = Width*Height*3
}

// NewImage allocates a zero-filled image.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height*3),
	}
}

// Bounds returns the image rectangle anchored at the origin.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// SameShape reports whether m and o have identical dimensions.
func (m *Image) SameShape(o *Image) bool {
	return m.Width == o.Width && m.Height == o.Height
}

func (m *Image) offset(x, y int) int {
	return (y*m.Width + x) * 3
}

// At returns the color at (x, y).
func (m *Image) At(x, y int) Color {
	i := m.offset(x, y)
	return Color{m.Pix[i], m.Pix[i+1], m.Pix[i+2]}
}

// Set writes the color at (x, y).
func (m *Image) Set(x, y int, c Color) {
	i := m.offset(x, y)
	m.Pix[i+0] = c[0]
	m.Pix[i+1] = c[1]
	m.Pix[i+2] = c[2]
}

// Flatten returns all pixels in row-major order.
func (m *Image) Flatten() PixelSet {
	return m.Region(m.Bounds())
}

// Region returns the pixels of r in row-major order.
func (m *Image) Region(r image.Rectangle) PixelSet {
	set := make(PixelSet, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			set = append(set, m.At(x, y))
		}
	}
	return set
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := NewImage(m.Width, m.Height)
	copy(out.Pix, m.Pix)
	return out
}

// FromNRGBA converts any image to a 3-channel float array, dropping alpha.
func FromNRGBA(img image.Image) *Image {
	b := img.Bounds()
	out := NewImage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.Set(x, y, Color{float64(c.R), float64(c.G), float64(c.B)})
		}
	}
	return out
}

// ToNRGBA rounds and clamps every channel into an opaque NRGBA image.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(m.Bounds())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := m.At(x, y)
			i := out.PixOffset(x, y)
			out.Pix[i+0] = toByte(c[0])
			out.Pix[i+1] = toByte(c[1])
			out.Pix[i+2] = toByte(c[2])
			out.Pix[i+3] = 255
		}
	}
	return out
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}

// quantize clips to [0,255] and rounds to the nearest integer.
func quantize(v float64) float64 {
	return math.Round(clamp(v, 0, 255))
}

func toByte(v float64) uint8 {
	return uint8(quantize(v))
}
