package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/plugin"
	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/server"
	"github.com/ayusman/moodlens/internal/store"
	"github.com/ayusman/moodlens/internal/tray"
)

var serveOpts struct {
	Addr          string
	Device        int
	Width         int
	Height        int
	FPS           int
	JPEGQuality   int
	PluginDir     string
	PluginTimeout time.Duration
	WebDir        string
	Tray          bool
	RecordEvery   time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live camera pipeline with the dashboard and API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.Addr, "addr", ":8080", "HTTP listen address")
	f.IntVar(&serveOpts.Device, "device", 0, "camera device id")
	f.IntVar(&serveOpts.Width, "width", capture.DefaultWidth, "capture width")
	f.IntVar(&serveOpts.Height, "height", capture.DefaultHeight, "capture height")
	f.IntVar(&serveOpts.FPS, "fps", capture.DefaultFPS, "frames per second")
	f.IntVar(&serveOpts.JPEGQuality, "jpeg-quality", app.DefaultJPEGQuality, "dashboard snapshot quality")
	f.StringVar(&serveOpts.PluginDir, "plugins", "", "plugin directory (default <data-dir>/plugins)")
	f.DurationVar(&serveOpts.PluginTimeout, "plugin-timeout", plugin.DefaultTimeout, "per-call plugin timeout")
	f.StringVar(&serveOpts.WebDir, "web", "", "static dashboard directory (default: search common locations)")
	f.BoolVar(&serveOpts.Tray, "tray", false, "show a system tray menu")
	f.DurationVar(&serveOpts.RecordEvery, "record-every", store.DefaultRecorderConfig().MinInterval, "re-record an unchanged emotion after this long")

	rootCmd.AddCommand(serveCmd)
}

// controller keeps the tray toggle in step with changes made over the API.
type controller struct {
	app  *app.App
	tray *tray.Tray
}

func (c controller) Status() app.Status { return c.app.Status() }

func (c controller) SetEnabled(enabled bool) {
	c.app.SetEnabled(enabled)
	if c.tray != nil {
		c.tray.SetEnabled(enabled)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.New(opts.dbPath())
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	enabled := st.Settings().Bool(store.SettingEnabled, true)

	pluginDir := serveOpts.PluginDir
	if pluginDir == "" {
		pluginDir = filepath.Join(opts.DataDir, "plugins")
	}
	plugins := plugin.NewManager(pluginDir)
	plugins.SetLogger(logger)
	if err := plugins.Discover(); err != nil {
		logger.Warn("plugin discovery failed", "dir", pluginDir, "error", err)
	}

	hub := server.NewHub(logger)

	recCfg := store.DefaultRecorderConfig()
	recCfg.MinInterval = serveOpts.RecordEvery
	recCfg.Logger = logger
	recorder := store.NewRecorder(st.Outcomes(), recCfg)
	defer recorder.Close()

	dispCfg := plugin.DefaultDispatcherConfig()
	dispCfg.Logger = logger
	dispatcher := plugin.NewDispatcher(plugins, plugin.NewExecutor(serveOpts.PluginTimeout), st.Bindings(), dispCfg)
	defer dispatcher.Close()

	sink := present.NewMultiSink(hub, recorder, dispatcher)

	var tr *tray.Tray
	if serveOpts.Tray {
		tr = tray.New(enabled)
		sink.Add(tr)
	}

	camCfg := capture.DefaultConfig()
	camCfg.DeviceID = serveOpts.Device
	camCfg.Width = serveOpts.Width
	camCfg.Height = serveOpts.Height
	camCfg.FPS = serveOpts.FPS
	camCfg.Logger = logger

	a := app.New(app.Config{
		Assets:      opts.assetSource(),
		Camera:      capture.NewCamera(camCfg),
		Sink:        sink,
		Logger:      logger,
		Detector:    opts.detectorConfig(),
		Classifier:  opts.classifierConfig(),
		FPS:         serveOpts.FPS,
		JPEGQuality: serveOpts.JPEGQuality,
		StartPaused: !enabled,
	})

	ctrl := controller{app: a, tray: tr}

	webDir := serveOpts.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Controller: ctrl,
		Hub:        hub,
		Plugins:    plugins,
		Logger:     logger,
	})
	httpSrv := srv.HTTPServer(serveOpts.Addr)

	// Model loading happens off the serving path; the dashboard shows the
	// readiness stages as they complete.
	go func() {
		if err := a.Initialize(ctx); err != nil {
			logger.Error("initialization failed", "error", err)
		}
	}()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer a.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", serveOpts.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel()
		}
		close(errCh)
	}()

	if tr != nil {
		tr.OnToggle(func(enabled bool) {
			a.SetEnabled(enabled)
			if err := st.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
				logger.Warn("failed to persist pipeline state", "error", err)
			}
		})
		tr.OnSettings(func() {
			if err := openBrowser(dashboardURL(serveOpts.Addr)); err != nil {
				logger.Warn("failed to open browser", "error", err)
			}
		})
		tr.OnQuit(cancel)

		// The tray owns the main goroutine until it quits.
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		tr.Run()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.moodlens/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".moodlens", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
