package capture

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/native"
)

// StillCamera serves decoded still images as frames, one per ReadFrame, in
// order. It lets one-shot classification reuse the live pipeline.
type StillCamera struct {
	mu      sync.Mutex
	images  []image.Image
	index   int
	running bool
}

// NewStillCamera creates a camera over images.
func NewStillCamera(images ...image.Image) *StillCamera {
	return &StillCamera{images: images}
}

func (c *StillCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	return nil
}

func (c *StillCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// Push appends an image to the playback queue.
func (c *StillCamera) Push(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = append(c.images, img)
}

// ReadFrame converts the next queued image to a BGR Mat.
func (c *StillCamera) ReadFrame(scope *native.Scope) (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if c.index >= len(c.images) {
		return nil, fmt.Errorf("%w: no more images", ErrNoFrame)
	}

	img := c.images[c.index]
	c.images[c.index] = nil
	c.index++

	return MatFromImage(scope, img)
}

func (c *StillCamera) SetFPS(fps int) {}
func (c *StillCamera) FPS() int       { return 0 }
func (c *StillCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// MatFromImage copies img into a new 8-bit BGR Mat owned by scope.
func MatFromImage(scope *native.Scope, img image.Image) (*gocv.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrNoFrame)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrNoFrame)
	}

	// ImageToMatRGB lays the pixels out in OpenCV's BGR order.
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: image converted to an empty mat", ErrNoFrame)
	}
	scope.AdoptMat(&mat)
	return &mat, nil
}
