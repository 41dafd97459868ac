package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// feedStats summarizes one feed consumption run.
type feedStats struct {
	Received int
	Saved    int
	Skipped  int
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Consume the live annotated camera feed",
	Long:  "Reads frames from the backend's live feed, optionally saving them as JPEG files. The camera must be started first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		targets, _ := cmd.Flags().GetString("targets")
		frames, _ := cmd.Flags().GetInt("frames")
		outDir, _ := cmd.Flags().GetString("out")
		maxFPS, _ := cmd.Flags().GetFloat64("max-fps")
		if maxFPS <= 0 {
			maxFPS = cfg.Feed.MaxFPS
		}

		if outDir != "" {
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return eris.Wrapf(err, "feed: create output dir %s", outDir)
			}
		}

		m := metrics.New()
		feed, err := newBackend(m).OpenFeed(ctx, targets)
		if err != nil {
			return eris.Wrap(err, "feed")
		}
		defer feed.Close() //nolint:errcheck

		zap.L().Info("consuming live feed",
			zap.String("targets", targets),
			zap.Float64("max_fps", maxFPS),
			zap.Int("frames", frames),
		)

		stats, err := consumeFeed(ctx, feed, rate.NewLimiter(rate.Limit(maxFPS), 1), frames, outDir, m)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Received %d frames, saved %d, skipped %d.\n",
			stats.Received, stats.Saved, stats.Skipped)
		return err
	},
}

// frameSource yields frames until io.EOF.
type frameSource interface {
	Next() (*finder.Frame, error)
}

// consumeFeed reads frames until the stream ends, ctx is done or limit
// frames were kept (0 means no limit). Frames over the limiter's rate are
// skipped.
func consumeFeed(ctx context.Context, src frameSource, limiter *rate.Limiter, limit int, outDir string, m *metrics.Metrics) (feedStats, error) {
	var stats feedStats
	for limit <= 0 || stats.Received-stats.Skipped < limit {
		if ctx.Err() != nil {
			return stats, nil
		}

		frame, err := src.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return stats, nil
			}
			return stats, eris.Wrap(err, "feed: read frame")
		}
		stats.Received++
		m.FramesReceived.Inc()

		if !limiter.Allow() {
			stats.Skipped++
			m.FramesSkipped.Inc()
			continue
		}

		if outDir == "" {
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("frame-%06d.jpg", frame.Index))
		if err := os.WriteFile(path, frame.Data, 0o640); err != nil {
			return stats, eris.Wrapf(err, "feed: write %s", path)
		}
		stats.Saved++
	}
	return stats, nil
}

func init() {
	feedCmd.Flags().String("targets", "", "comma-separated objects to highlight in the feed")
	feedCmd.Flags().Int("frames", 0, "stop after keeping this many frames (0 = until interrupted)")
	feedCmd.Flags().String("out", "", "directory to save frames to (frames are discarded when empty)")
	feedCmd.Flags().Float64("max-fps", 0, "maximum frames kept per second (default from config)")
	rootCmd.AddCommand(feedCmd)
}
