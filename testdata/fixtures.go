// Package testdata builds synthetic frames for tests. Frames are drawn at
// runtime so no binary fixtures need to be checked in.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Default frame geometry, matching the camera defaults.
const (
	Width  = 640
	Height = 480
)

// SolidFrame returns a BGR frame filled with one colour. The caller must
// close it.
func SolidFrame(width, height int, c color.RGBA) *gocv.Mat {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
	return &mat
}

// FaceFrame returns a grey frame with a crude face drawn inside box: a skin
// toned ellipse with darker eyes and mouth. The caller must close it.
func FaceFrame(width, height int, box image.Rectangle) *gocv.Mat {
	mat := SolidFrame(width, height, color.RGBA{R: 90, G: 90, B: 90, A: 255})

	skin := color.RGBA{R: 224, G: 172, B: 105, A: 255}
	dark := color.RGBA{R: 40, G: 30, B: 30, A: 255}

	center := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
	axes := image.Pt(box.Dx()/2, box.Dy()/2)
	gocv.EllipseWithParams(mat, center, axes, 0, 0, 360, skin, -1, gocv.LineAA, 0)

	eyeY := box.Min.Y + box.Dy()*2/5
	eyeR := max(box.Dx()/12, 1)
	gocv.Circle(mat, image.Pt(box.Min.X+box.Dx()/3, eyeY), eyeR, dark, -1)
	gocv.Circle(mat, image.Pt(box.Max.X-box.Dx()/3, eyeY), eyeR, dark, -1)

	mouth := image.Rect(box.Min.X+box.Dx()/3, box.Min.Y+box.Dy()*7/10,
		box.Max.X-box.Dx()/3, box.Min.Y+box.Dy()*3/4)
	gocv.Rectangle(mat, mouth, dark, -1)

	return mat
}

// Sequence returns n blank frames. The caller must close each one.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = SolidFrame(Width, Height, color.RGBA{A: 255})
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// Image returns an RGBA still image with a coloured square at box.
func Image(width, height int, box image.Rectangle, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if image.Pt(x, y).In(box) {
				img.SetRGBA(x, y, c)
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	return img
}
