package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/assets"
	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/detector"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds the flags shared by every subcommand.
type Options struct {
	AssetsDir string
	DataDir   string
	ORTLib    string
	Threads   int
	LogLevel  string
	LogJSON   bool

	ScaleFactor  float64
	MinNeighbors int
	MinFaceSize  int
}

var (
	opts   Options
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "moodlens",
	Short:   "Real-time facial emotion recognition",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(opts.LogLevel)
		if err != nil {
			return err
		}
		handlerOpts := &slog.HandlerOptions{Level: level}
		if opts.LogJSON {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
		}
		slog.SetDefault(logger)

		if opts.DataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			opts.DataDir = filepath.Join(home, ".moodlens")
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.AssetsDir, "assets", envOr("MOODLENS_ASSETS", "assets"), "directory holding the cascade, model and classes.json")
	flags.StringVar(&opts.DataDir, "data-dir", os.Getenv("MOODLENS_DATA"), "data directory (default ~/.moodlens)")
	flags.StringVar(&opts.ORTLib, "ort-lib", os.Getenv("MOODLENS_ORT_LIB"), "path to the onnxruntime shared library")
	flags.IntVar(&opts.Threads, "threads", 0, "inference threads (0 lets the runtime decide)")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&opts.LogJSON, "log-json", false, "write logs as JSON")

	def := detector.DefaultConfig()
	flags.Float64Var(&opts.ScaleFactor, "scale-factor", def.ScaleFactor, "face detector pyramid scale factor")
	flags.IntVar(&opts.MinNeighbors, "min-neighbors", def.MinNeighbors, "face detector minimum neighbours")
	flags.IntVar(&opts.MinFaceSize, "min-face", def.MinSize, "smallest face side in pixels")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func (o Options) assetSource() *assets.DirSource {
	return assets.NewDirSource(o.AssetsDir)
}

func (o Options) detectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.ScaleFactor = o.ScaleFactor
	cfg.MinNeighbors = o.MinNeighbors
	cfg.MinSize = o.MinFaceSize
	return cfg
}

func (o Options) classifierConfig() classifier.Config {
	cfg := classifier.DefaultConfig()
	cfg.LibraryPath = o.ORTLib
	cfg.NumThreads = o.Threads
	cfg.Logger = logger
	return cfg
}

func (o Options) dbPath() string {
	return filepath.Join(o.DataDir, "moodlens.db")
}
