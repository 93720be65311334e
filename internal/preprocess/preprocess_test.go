package preprocess

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/native"
)

func TestNormalize_PlanarRGB(t *testing.T) {
	bgr := make([]byte, plane*Channels)
	for i := 0; i < plane; i++ {
		bgr[i*3] = 10  // B
		bgr[i*3+1] = 20 // G
		bgr[i*3+2] = 255 // R
	}

	tensor, err := Normalize(bgr)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if tensor.Shape != Shape {
		t.Errorf("Shape = %v, want %v", tensor.Shape, Shape)
	}
	if tensor.Len() != 3*64*64 {
		t.Fatalf("Len() = %d, want %d", tensor.Len(), 3*64*64)
	}

	checks := []struct {
		channel int
		want    float32
	}{
		{0, 1.0},
		{1, 20.0 / 255},
		{2, 10.0 / 255},
	}
	for _, c := range checks {
		for _, xy := range [][2]int{{0, 0}, {63, 0}, {17, 42}, {63, 63}} {
			got := tensor.At(c.channel, xy[0], xy[1])
			if math.Abs(float64(got-c.want)) > 1e-6 {
				t.Errorf("At(%d, %d, %d) = %f, want %f", c.channel, xy[0], xy[1], got, c.want)
			}
		}
	}
}

func TestNormalize_PixelOrder(t *testing.T) {
	bgr := make([]byte, plane*Channels)
	// Pixel (x=5, y=2) is the only red pixel.
	idx := 2*Size + 5
	bgr[idx*3+2] = 255

	tensor, err := Normalize(bgr)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if got := tensor.At(0, 5, 2); got != 1 {
		t.Errorf("red plane at (5,2) = %f, want 1", got)
	}
	if got := tensor.At(0, 2, 5); got != 0 {
		t.Errorf("red plane at (2,5) = %f, want 0", got)
	}
}

func TestNormalize_WrongLength(t *testing.T) {
	if _, err := Normalize(make([]byte, 10)); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Normalize() error = %v, want ErrEmptyInput", err)
	}
}

func TestPrepare(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	ledger := native.NewLedger()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(0, 128, 255, 0))

	tests := []struct {
		name   string
		region detector.Region
	}{
		{"small region upscaled", detector.Region{X: 10, Y: 10, Width: 8, Height: 8}},
		{"large region downscaled", detector.Region{X: 0, Y: 0, Width: 400, Height: 300}},
		{"non-square region", detector.Region{X: 100, Y: 50, Width: 200, Height: 37}},
		{"region overflowing the frame edge", detector.Region{X: 600, Y: 440, Width: 80, Height: 80}},
		{"whole frame", detector.Region{X: 0, Y: 0, Width: 640, Height: 480}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := ledger.Begin()
			tensor, err := Prepare(scope, &frame, tt.region)
			scope.Close()

			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if tensor.Shape != [4]int64{1, 3, 64, 64} {
				t.Errorf("Shape = %v, want [1 3 64 64]", tensor.Shape)
			}
			if tensor.Len() != 3*64*64 {
				t.Errorf("Len() = %d", tensor.Len())
			}
			for i, v := range tensor.Data {
				if v < 0 || v > 1 {
					t.Fatalf("Data[%d] = %f outside [0,1]", i, v)
				}
			}
			// Uniform BGR (0,128,255) → R=1, G≈0.5, B=0.
			if got := tensor.At(0, 32, 32); math.Abs(float64(got)-1) > 1e-6 {
				t.Errorf("R = %f, want 1", got)
			}
			if got := tensor.At(2, 32, 32); got != 0 {
				t.Errorf("B = %f, want 0", got)
			}
		})
	}

	if live := ledger.Stats().Live(); live != 0 {
		t.Errorf("Prepare leaked %d native buffers", live)
	}
}

func TestPrepare_Deterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			frame.SetUCharAt3(y, x, 0, uint8(x))
			frame.SetUCharAt3(y, x, 1, uint8(y))
			frame.SetUCharAt3(y, x, 2, uint8(x+y))
		}
	}

	region := detector.Region{X: 13, Y: 7, Width: 91, Height: 77}
	var scope native.Scope
	a, err := Prepare(&scope, &frame, region)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	b, err := Prepare(&scope, &frame, region)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("Data[%d] differs between runs: %f vs %f", i, a.Data[i], b.Data[i])
		}
	}
}

func TestPrepare_ChannelLayouts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	for _, mt := range []gocv.MatType{gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC4} {
		frame := gocv.NewMatWithSize(50, 50, mt)
		var scope native.Scope
		tensor, err := Prepare(&scope, &frame, detector.Region{Width: 50, Height: 50})
		frame.Close()

		if err != nil {
			t.Fatalf("Prepare(%v) error = %v", mt, err)
		}
		if tensor.Len() != 3*64*64 {
			t.Errorf("Prepare(%v) Len() = %d", mt, tensor.Len())
		}
	}
}

func TestPrepare_EmptyInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	var scope native.Scope

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := Prepare(&scope, &empty, detector.Region{Width: 10, Height: 10}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty frame: error = %v, want ErrEmptyInput", err)
	}

	frame := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if _, err := Prepare(&scope, &frame, detector.Region{X: 50, Y: 50, Width: 10, Height: 10}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("region outside frame: error = %v, want ErrEmptyInput", err)
	}
	if _, err := Prepare(&scope, &frame, detector.Region{X: 5, Y: 5}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("zero-area region: error = %v, want ErrEmptyInput", err)
	}
}

func TestTensor_Save(t *testing.T) {
	bgr := make([]byte, plane*Channels)
	for i := range bgr {
		bgr[i] = byte(i % 251)
	}
	tensor, err := Normalize(bgr)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "crop.png")
	if err := tensor.Save(path, 4); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("saved file is empty")
	}

	img := tensor.Image()
	r, g, b, _ := img.At(0, 0).RGBA()
	if uint8(r>>8) != bgr[2] || uint8(g>>8) != bgr[1] || uint8(b>>8) != bgr[0] {
		t.Errorf("pixel (0,0) = %d,%d,%d, want %d,%d,%d", r>>8, g>>8, b>>8, bgr[2], bgr[1], bgr[0])
	}
}
