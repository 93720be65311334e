package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/native"
)

var (
	// ErrCascadeLoad is returned when the cascade file cannot be loaded.
	ErrCascadeLoad = errors.New("failed to load face cascade")
	// ErrEmptyFrame is returned when Detect is called with an empty frame.
	ErrEmptyFrame = errors.New("empty frame")
)

// CascadeDetector implements Detector using an OpenCV Haar cascade.
type CascadeDetector struct {
	config     Config
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
	closed     bool
}

// NewCascadeDetector loads the cascade named by cfg.CascadePath.
func NewCascadeDetector(cfg Config) (*CascadeDetector, error) {
	defaults := DefaultConfig()
	if cfg.ScaleFactor <= 1.0 {
		cfg.ScaleFactor = defaults.ScaleFactor
	}
	if cfg.MinNeighbors <= 0 {
		cfg.MinNeighbors = defaults.MinNeighbors
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}

	if _, err := os.Stat(cfg.CascadePath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCascadeLoad, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("%w: %s", ErrCascadeLoad, cfg.CascadePath)
	}

	return &CascadeDetector{
		config:     cfg,
		classifier: classifier,
	}, nil
}

// Detect converts frame to grayscale and runs the cascade over it.
func (d *CascadeDetector) Detect(scope *native.Scope, frame *gocv.Mat) ([]Region, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	local := scope.Child()
	defer local.Close()

	gray := local.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector is closed")
	}

	minSize := image.Pt(d.config.MinSize, d.config.MinSize)
	rects := d.classifier.DetectMultiScaleWithParams(
		gray,
		d.config.ScaleFactor,
		d.config.MinNeighbors,
		0,
		minSize,
		image.Point{},
	)

	regions := make([]Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, RegionFromRect(r))
	}
	return regions, nil
}

// Close releases the cascade.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}
