package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lost-item-finder/internal/metrics"
)

var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Control the backend's live camera",
}

var cameraStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start live detection on the backend camera",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newBackend(metrics.New()).StartCamera(cmd.Context()); err != nil {
			return eris.Wrap(err, "camera start")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Camera started.")
		return nil
	},
}

var cameraStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the backend camera",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := withRetry(newBackend(metrics.New())).StopCamera(cmd.Context()); err != nil {
			return eris.Wrap(err, "camera stop")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Camera stopped.")
		return nil
	},
}

func init() {
	cameraCmd.AddCommand(cameraStartCmd, cameraStopCmd)
	rootCmd.AddCommand(cameraCmd)
}
