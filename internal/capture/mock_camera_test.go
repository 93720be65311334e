package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/native"
)

func TestMockCamera_Playback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	ledger := native.NewLedger()

	for i := 0; i < 2; i++ {
		scope := ledger.Begin()
		if _, err := cam.ReadFrame(scope); err != nil {
			t.Fatalf("ReadFrame() %d error = %v", i, err)
		}
		scope.Close()
	}

	// Third read should fail (no loop)
	_, err := cam.ReadFrame(ledger.Begin())
	if !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame after all frames consumed, got %v", err)
	}

	if cam.Reads() != 3 {
		t.Errorf("Reads() = %d, want 3", cam.Reads())
	}
	if live := ledger.Stats().Live(); live != 0 {
		t.Errorf("%d frames not released", live)
	}
}

func TestMockCamera_Loop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	// Should loop indefinitely
	for i := 0; i < 5; i++ {
		scope := native.NewLedger().Begin()
		if _, err := cam.ReadFrame(scope); err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		scope.Close()
	}
}

func TestMockCamera_Errors(t *testing.T) {
	cam := NewMockCamera(nil, false)

	if _, err := cam.ReadFrame(nil); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("closed camera error = %v, want ErrCameraNotOpen", err)
	}

	cam.Open()
	if _, err := cam.ReadFrame(nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty camera error = %v, want ErrNoFrame", err)
	}

	boom := errors.New("usb unplugged")
	cam.SetError(boom)
	if _, err := cam.ReadFrame(nil); !errors.Is(err, boom) {
		t.Errorf("ReadFrame() error = %v, want %v", err, boom)
	}
}

func TestStillCamera(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	cam := NewStillCamera(img)
	cam.Open()
	defer cam.Close()

	ledger := native.NewLedger()
	scope := ledger.Begin()

	mat, err := cam.ReadFrame(scope)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if mat.Cols() != 4 || mat.Rows() != 3 || mat.Channels() != 3 {
		t.Fatalf("mat = %dx%dx%d, want 4x3x3", mat.Cols(), mat.Rows(), mat.Channels())
	}
	px := mat.GetVecbAt(2, 1)
	if px[0] != 50 || px[1] != 100 || px[2] != 200 {
		t.Errorf("pixel = %v, want BGR [50 100 200]", px)
	}
	scope.Close()

	if _, err := cam.ReadFrame(ledger.Begin()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("second ReadFrame() error = %v, want ErrNoFrame", err)
	}
	if live := ledger.Stats().Live(); live != 0 {
		t.Errorf("%d mats not released", live)
	}
}

func TestCameraImplementations(t *testing.T) {
	var _ Camera = (*MockCamera)(nil)
	var _ Camera = (*StillCamera)(nil)
	var _ Camera = NewCamera(DefaultConfig())
}
