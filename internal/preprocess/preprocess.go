// Package preprocess turns the selected face region of a frame into the
// fixed-shape float tensor the emotion classifier consumes.
package preprocess

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/native"
)

// Tensor geometry: batch 1, RGB planes, 64×64 pixels.
const (
	Size     = 64
	Channels = 3
	plane    = Size * Size
)

// Shape is the [batch, channel, height, width] shape of every Tensor.
var Shape = [4]int64{1, Channels, Size, Size}

// ErrEmptyInput is returned for an empty frame or a region that has no
// overlap with the frame.
var ErrEmptyInput = errors.New("empty preprocess input")

// Tensor is a planar, channel-major float buffer with values in [0,1].
// Plane order is R, G, B.
type Tensor struct {
	Data  []float32
	Shape [4]int64
}

// Len returns the number of elements.
func (t Tensor) Len() int {
	return len(t.Data)
}

// At returns the value for channel c at pixel (x, y).
func (t Tensor) At(c, x, y int) float32 {
	return t.Data[c*plane+y*Size+x]
}

// Prepare crops region out of frame, resizes it to Size×Size with bilinear
// interpolation and normalizes it into a Tensor. The region is clamped to
// the frame bounds. All intermediate Mats are released before returning.
func Prepare(scope *native.Scope, frame *gocv.Mat, region detector.Region) (Tensor, error) {
	if frame == nil || frame.Empty() {
		return Tensor{}, ErrEmptyInput
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	clamped := region.Clamp(bounds)
	if clamped.Area() == 0 {
		return Tensor{}, fmt.Errorf("%w: region %+v outside %dx%d frame",
			ErrEmptyInput, region, frame.Cols(), frame.Rows())
	}

	local := scope.Child()
	defer local.Close()

	crop := frame.Region(clamped.Rect())
	local.AdoptMat(&crop)

	resized := local.NewMat()
	gocv.Resize(crop, &resized, image.Pt(Size, Size), 0, 0, gocv.InterpolationLinear)

	bgr := resized
	switch resized.Channels() {
	case 1:
		bgr = local.NewMat()
		gocv.CvtColor(resized, &bgr, gocv.ColorGrayToBGR)
	case 4:
		bgr = local.NewMat()
		gocv.CvtColor(resized, &bgr, gocv.ColorBGRAToBGR)
	}

	if bgr.Type() != gocv.MatTypeCV8UC3 {
		return Tensor{}, fmt.Errorf("unsupported frame type %v", frame.Type())
	}

	return Normalize(bgr.ToBytes())
}

// Normalize converts Size×Size interleaved BGR bytes into a planar RGB
// Tensor, dividing every value by 255.
func Normalize(bgr []byte) (Tensor, error) {
	if len(bgr) != plane*Channels {
		return Tensor{}, fmt.Errorf("%w: got %d bytes, want %d", ErrEmptyInput, len(bgr), plane*Channels)
	}

	data := make([]float32, Channels*plane)
	for i := 0; i < plane; i++ {
		px := bgr[i*Channels : i*Channels+Channels]
		data[i] = float32(px[2]) / 255
		data[plane+i] = float32(px[1]) / 255
		data[2*plane+i] = float32(px[0]) / 255
	}

	return Tensor{Data: data, Shape: Shape}, nil
}
