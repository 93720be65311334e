package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/assets"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/testdata"
)

func init() {
	logger = slog.Default()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDashboardURL(t *testing.T) {
	if got := dashboardURL(":8080"); got != "http://localhost:8080/" {
		t.Errorf("dashboardURL(:8080) = %q", got)
	}
	if got := dashboardURL("127.0.0.1:9000"); got != "http://127.0.0.1:9000/" {
		t.Errorf("dashboardURL(127.0.0.1:9000) = %q", got)
	}
}

func TestImageResult_String(t *testing.T) {
	tests := []struct {
		name string
		res  imageResult
		want string
	}{
		{"error", imageResult{Path: "a.jpg", Error: "boom"}, "a.jpg: error: boom"},
		{"no face", imageResult{Path: "b.jpg"}, "b.jpg: no face"},
		{"outcome", imageResult{Path: "c.jpg", Outcome: &classifier.Outcome{Label: "happy", Confidence: 0.875}}, "c.jpg: happy (87.5%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintResults_Summary(t *testing.T) {
	results := []imageResult{
		{Path: "1.jpg", Outcome: &classifier.Outcome{Label: "sad", Confidence: 0.6}},
		{Path: "2.jpg"},
		{Path: "3.jpg", Outcome: &classifier.Outcome{Label: "happy", Confidence: 0.9}},
		{Path: "4.jpg", Outcome: &classifier.Outcome{Label: "sad", Confidence: 0.7}},
	}

	var buf bytes.Buffer
	printResults(&buf, results, []string{"happy", "neutral", "sad"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[4] != "4 images: happy=1 sad=2" {
		t.Errorf("summary = %q", lines[4])
	}
}

func TestCheck_MissingAssets(t *testing.T) {
	dir := t.TempDir()
	a := app.New(app.Config{
		Assets: assets.NewDirSource(dir),
		Camera: capture.NewStillCamera(),
	})

	err := a.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() with empty asset dir should fail")
	}

	var buf bytes.Buffer
	printCheck(&buf, dir, a)
	out := buf.String()
	if !strings.Contains(out, "status:  failed") {
		t.Errorf("output missing failed status:\n%s", out)
	}
	if !strings.Contains(out, "reason:") {
		t.Errorf("output missing reason:\n%s", out)
	}
}

type memSource struct{ catalog classifier.Catalog }

func (memSource) CascadePath() (string, error) { return "cascade.xml", nil }
func (memSource) Model() ([]byte, error) { return []byte("model"), nil }
func (s memSource) Catalog() (classifier.Catalog, error) { return s.catalog, nil }

func newMockApp(t *testing.T, det *detector.MockDetector, cam *capture.StillCamera) *app.App {
	t.Helper()
	a := app.New(app.Config{
		Assets: memSource{catalog: classifier.MustCatalog("happy", "sad")},
		Camera: cam,
		OpenDetector: func(string) (detector.Detector, error) {
			return det, nil
		},
		OpenClassifier: func([]byte) (classifier.Classifier, error) {
			return classifier.NewMockClassifier(0.2, 1.5), nil
		},
	})
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPrintCheck_Ready(t *testing.T) {
	cam := capture.NewStillCamera()
	a := newMockApp(t, detector.NewMockDetector(), cam)

	var buf bytes.Buffer
	printCheck(&buf, "assets", a)
	out := buf.String()

	for _, want := range []string{"status:  ready", "outputs: 2", "labels:  happy, sad"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestClassifyOne(t *testing.T) {
	dir := t.TempDir()
	box := image.Rect(20, 20, 84, 84)
	path := writePNG(t, dir, "face.png", testdata.Image(128, 128, box, color.RGBA{R: 220, G: 180, B: 150, A: 255}))

	det := detector.NewMockDetector()
	cam := capture.NewStillCamera()
	a := newMockApp(t, det, cam)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	// No face: the result carries no outcome.
	res := classifyOne(cmd, a, cam, path)
	if res.Error != "" || res.Outcome != nil || res.Faces != 0 {
		t.Fatalf("no-face result = %+v", res)
	}

	det.SetRegions([]detector.Region{{X: 20, Y: 20, Width: 64, Height: 64}})
	classifyOpts.SaveCrops = filepath.Join(dir, "crops")
	classifyOpts.CropScale = 2
	t.Cleanup(func() { classifyOpts.SaveCrops = "" })
	if err := os.MkdirAll(classifyOpts.SaveCrops, 0755); err != nil {
		t.Fatal(err)
	}

	res = classifyOne(cmd, a, cam, path)
	if res.Error != "" {
		t.Fatalf("classifyOne() error = %s", res.Error)
	}
	if res.Outcome == nil || res.Outcome.Label != "sad" {
		t.Fatalf("outcome = %+v, want sad", res.Outcome)
	}
	if res.Crop != cropName(classifyOpts.SaveCrops, path) {
		t.Errorf("crop = %q", res.Crop)
	}
	if _, err := os.Stat(res.Crop); err != nil {
		t.Errorf("crop not written: %v", err)
	}

	// A missing file is reported, not fatal.
	res = classifyOne(cmd, a, cam, filepath.Join(dir, "missing.png"))
	if res.Error == "" {
		t.Error("missing file should report an error")
	}
}

func TestCropName(t *testing.T) {
	dir := t.TempDir()

	a := cropName(dir, filepath.Join("a", "face.png"))
	b := cropName(dir, filepath.Join("b", "face.png"))
	if a == b {
		t.Errorf("cropName() = %q for both directories", a)
	}
	for _, name := range []string{a, b} {
		if filepath.Dir(name) != dir {
			t.Errorf("cropName() = %q, want it under %q", name, dir)
		}
		if !strings.HasPrefix(filepath.Base(name), "face_") || !strings.HasSuffix(name, "_crop.png") {
			t.Errorf("cropName() = %q, want face_<hash>_crop.png", name)
		}
	}

	if again := cropName(dir, filepath.Join("a", ".", "face.png")); again != a {
		t.Errorf("cropName() = %q for the same file, want %q", again, a)
	}
}
