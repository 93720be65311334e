package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Image rebuilds an RGB image from a tensor, for inspecting what the
// classifier actually sees.
func (t Tensor) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: unit8(t.At(0, x, y)),
				G: unit8(t.At(1, x, y)),
				B: unit8(t.At(2, x, y)),
				A: 255,
			})
		}
	}
	return img
}

// Save writes the tensor as an image file; the format follows the file
// extension. scale enlarges the 64×64 crop with nearest-neighbour sampling.
func (t Tensor) Save(path string, scale int) error {
	if t.Len() != Channels*plane {
		return fmt.Errorf("%w: tensor has %d values", ErrEmptyInput, t.Len())
	}

	var img image.Image = t.Image()
	if scale > 1 {
		img = imaging.Resize(img, Size*scale, Size*scale, imaging.NearestNeighbor)
	}
	return imaging.Save(img, path)
}

func unit8(v float32) uint8 {
	return uint8(math.Round(float64(clamp01(v)) * 255))
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
