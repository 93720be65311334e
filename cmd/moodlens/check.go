package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/readiness"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the detector, model and class catalog and report whether they agree",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a := app.New(app.Config{
		Assets:     opts.assetSource(),
		Camera:     capture.NewStillCamera(),
		Logger:     logger,
		Detector:   opts.detectorConfig(),
		Classifier: opts.classifierConfig(),
	})
	defer a.Stop()

	err := a.Initialize(cmd.Context())
	printCheck(cmd.OutOrStdout(), opts.AssetsDir, a)
	return err
}

func printCheck(w io.Writer, dir string, a *app.App) {
	st := a.Readiness()
	fmt.Fprintf(w, "assets:  %s\n", dir)
	fmt.Fprintf(w, "status:  %s\n", st.Stage)
	if st.Stage == readiness.Failed {
		fmt.Fprintf(w, "reason:  %s\n", st.Reason)
		return
	}

	sess := a.Session()
	if sess == nil {
		return
	}
	fmt.Fprintf(w, "outputs: %d\n", sess.Classifier.OutputWidth())
	fmt.Fprintf(w, "labels:  %s\n", strings.Join(sess.Catalog.Labels(), ", "))
}
