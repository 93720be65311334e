// Package detector wraps the face detection capability and selects the
// dominant face region per frame.
package detector

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/native"
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect returns candidate face regions in frame pixel coordinates, in
	// detector-defined order. Returns an empty slice if no face is found.
	// Intermediate native buffers are released before Detect returns.
	Detect(scope *native.Scope, frame *gocv.Mat) ([]Region, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Region is a candidate face rectangle in frame pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionFromRect converts an image.Rectangle to a Region.
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Area returns width × height, or 0 for degenerate regions.
func (r Region) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Clamp intersects the region with bounds.
func (r Region) Clamp(bounds image.Rectangle) Region {
	return RegionFromRect(r.Rect().Intersect(bounds))
}

// Config holds configuration options for face detection.
type Config struct {
	// CascadePath is the Haar cascade XML file to load.
	CascadePath string

	// ScaleFactor is the image pyramid step (must be > 1.0).
	ScaleFactor float64

	// MinNeighbors is how many neighbouring hits a candidate needs to be kept.
	MinNeighbors int

	// MinSize is the smallest face side, in pixels, to report.
	MinSize int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		CascadePath:  "haarcascade_frontalface_default.xml",
		ScaleFactor:  1.1,
		MinNeighbors: 3,
		MinSize:      30,
	}
}
