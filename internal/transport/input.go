package transport

import (
	"image"

	"github.com/cwbudde/pixelsculptor/internal/imageio"
)

// Input is either a raw float array or a decoded image. Build one with
// FromArray or FromImage; it is converted to an *Image once, at the
// engine boundary.
type Input struct {
	array  *Image
	handle image.Image
}

// FromArray wraps a 3-channel float array.
func FromArray(img *Image) Input {
	return Input{array: img}
}

// FromImage wraps a decoded image of any color model.
func FromImage(img image.Image) Input {
	return Input{handle: img}
}

// resolve returns the 3-channel array behind the input.
func (in Input) resolve(field string) (*Image, error) {
	switch {
	case in.array != nil:
		if len(in.array.Pix) != in.array.Width*in.array.Height*3 {
			return nil, invalid(field, "pixel buffer does not match its dimensions")
		}
		return in.array, nil
	case in.handle != nil:
		return FromNRGBA(in.handle), nil
	default:
		return nil, invalid(field, "no image given")
	}
}

// Resize scales img to width×height with Catmull-Rom (bicubic) filtering.
func Resize(img *Image, width, height int) *Image {
	return FromNRGBA(imageio.Resize(img.ToNRGBA(), width, height))
}
