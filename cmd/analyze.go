package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/internal/session"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a video file for target objects",
	Long:  "Uploads a video to the detection backend and prints the detections that match the target objects.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		targets, _ := cmd.Flags().GetString("targets")
		formatFlag, _ := cmd.Flags().GetString("format")

		format, err := parseFormat(formatFlag)
		if err != nil {
			return err
		}
		if _, err := os.Stat(file); err != nil {
			return eris.Wrapf(err, "analyze: video file %q", file)
		}

		sess := session.New(newBackend(metrics.New()))
		sess.SetTargets(targets)
		sess.ChooseFile(finder.LocalFile(file))

		zap.L().Info("analyzing video",
			zap.String("file", file),
			zap.String("targets", targets),
		)
		if err := sess.SubmitAnalyze(ctx); err != nil {
			return eris.Wrap(err, "analyze")
		}

		st := sess.State()
		if st.Error != "" {
			return eris.Errorf("analyze: %s", st.Error)
		}
		zap.L().Info("analysis complete", zap.Int("detections", len(st.Detections)))

		return render(cmd.OutOrStdout(), format, st.Detections, func(w io.Writer) {
			formatDetections(w, st.Detections)
		})
	},
}

func init() {
	analyzeCmd.Flags().String("file", "", "path to the video file")
	analyzeCmd.Flags().String("targets", "", "comma-separated objects to look for (e.g. \"keys, wallet\")")
	analyzeCmd.Flags().String("format", formatTable, "output format: table, json or yaml")
	_ = analyzeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(analyzeCmd)
}
