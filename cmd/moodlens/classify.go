package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/assets"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/native"
	"github.com/ayusman/moodlens/internal/preprocess"
	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/store"
)

var classifyOpts struct {
	SaveCrops string
	CropScale int
	JSON      bool
	Record    bool
}

var classifyCmd = &cobra.Command{
	Use:   "classify <image|dir>...",
	Short: "Classify the emotion of the main face in still images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyOpts.SaveCrops, "save-crops", "", "write each classifier input crop to this directory")
	f.IntVar(&classifyOpts.CropScale, "crop-scale", 4, "enlarge saved crops by this factor")
	f.BoolVar(&classifyOpts.JSON, "json", false, "print one JSON object per image")
	f.BoolVar(&classifyOpts.Record, "record", false, "write results to the history database")

	rootCmd.AddCommand(classifyCmd)
}

// imageResult is the classification of one input file.
type imageResult struct {
	Path    string              `json:"path"`
	Faces   int                 `json:"faces"`
	Region  *detector.Region    `json:"region,omitempty"`
	Outcome *classifier.Outcome `json:"outcome,omitempty"`
	Crop    string              `json:"crop,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (r imageResult) String() string {
	switch {
	case r.Error != "":
		return fmt.Sprintf("%s: error: %s", r.Path, r.Error)
	case r.Outcome == nil:
		return fmt.Sprintf("%s: no face", r.Path)
	default:
		return fmt.Sprintf("%s: %s (%.1f%%)", r.Path, r.Outcome.Label, r.Outcome.Confidence*100)
	}
}

func runClassify(cmd *cobra.Command, args []string) error {
	paths, err := assets.ExpandImages(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found")
	}

	if classifyOpts.SaveCrops != "" {
		if err := os.MkdirAll(classifyOpts.SaveCrops, 0755); err != nil {
			return fmt.Errorf("failed to create crop directory: %w", err)
		}
	}

	var sink present.Sink = present.Discard
	if classifyOpts.Record {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.New(opts.dbPath())
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()

		recCfg := store.DefaultRecorderConfig()
		// Every image is recorded, even when consecutive labels repeat.
		recCfg.MinInterval = time.Nanosecond
		recCfg.QueueSize = len(paths) + 1
		recCfg.Logger = logger
		recorder := store.NewRecorder(st.Outcomes(), recCfg)
		defer recorder.Close()
		sink = recorder
	}

	cam := capture.NewStillCamera()
	a := app.New(app.Config{
		Assets:     opts.assetSource(),
		Camera:     cam,
		Sink:       sink,
		Logger:     logger,
		Detector:   opts.detectorConfig(),
		Classifier: opts.classifierConfig(),
	})
	if err := a.Initialize(cmd.Context()); err != nil {
		return err
	}
	if err := cam.Open(); err != nil {
		return err
	}
	defer a.Stop()

	out := cmd.OutOrStdout()
	var bar *progressbar.ProgressBar
	if len(paths) > 1 && !classifyOpts.JSON {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Classifying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	var results []imageResult
	for _, path := range paths {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		res := classifyOne(cmd, a, cam, path)
		results = append(results, res)
		if bar != nil {
			bar.Add(1)
		}
		if classifyOpts.JSON {
			if err := json.NewEncoder(out).Encode(res); err != nil {
				return err
			}
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if !classifyOpts.JSON {
		printResults(out, results, a.Status().Labels)
	}
	return nil
}

func classifyOne(cmd *cobra.Command, a *app.App, cam *capture.StillCamera, path string) imageResult {
	res := imageResult{Path: path}

	img, err := assets.LoadImage(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	cam.Push(img)
	report, err := a.ProcessOneFrame(cmd.Context())
	res.Faces = len(report.Regions)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	// A frame without a face carries the previous image's outcome; it does
	// not describe this one.
	if report.Selected == nil || report.Stale {
		return res
	}
	res.Region = report.Selected
	res.Outcome = report.Outcome

	if classifyOpts.SaveCrops != "" {
		crop, err := saveCrop(img, *report.Selected, path)
		if err != nil {
			logger.Warn("failed to save crop", "path", path, "error", err)
		} else {
			res.Crop = crop
		}
	}
	return res
}

// saveCrop writes the classifier's input tensor for region as an image.
func saveCrop(img image.Image, region detector.Region, path string) (string, error) {
	var scope native.Scope
	defer scope.Close()

	mat, err := capture.MatFromImage(&scope, img)
	if err != nil {
		return "", err
	}
	tensor, err := preprocess.Prepare(&scope, mat, region)
	if err != nil {
		return "", err
	}

	name := cropName(classifyOpts.SaveCrops, path)
	if err := tensor.Save(name, classifyOpts.CropScale); err != nil {
		return "", err
	}
	return name, nil
}

func printResults(w io.Writer, results []imageResult, labels []string) {
	counts := make(map[string]int)
	for _, r := range results {
		fmt.Fprintln(w, r)
		if r.Outcome != nil {
			counts[r.Outcome.Label]++
		}
	}
	if len(results) < 2 {
		return
	}

	var parts []string
	for _, label := range labels {
		if n := counts[label]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", label, n))
		}
	}
	fmt.Fprintf(w, "%d images: %s\n", len(results), strings.Join(parts, " "))
}

// cropName derives the crop file for path. The hash of the absolute source
// path keeps same-named images from different directories apart.
func cropName(dir, path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	h := fnv.New32a()
	h.Write([]byte(filepath.Clean(path)))
	return filepath.Join(dir, fmt.Sprintf("%s_%08x_crop.png", base, h.Sum32()))
}
