package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lost-item-finder/internal/history"
	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/internal/server"
	"github.com/sells-group/lost-item-finder/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local control API for a finder session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		agg, err := history.ForMethod(cfg.History.Method)
		if err != nil {
			return err
		}

		m := metrics.New()
		backend := withRetry(newBackend(m))
		sess := session.New(backend,
			session.WithAggregator(agg),
			session.WithHistoryLimit(cfg.History.Limit),
		)

		srv := server.New(server.Deps{
			Session: sess,
			Feeds:   backend,
			// The live feed is unbounded; it never gets the backend timeout.
			HTTPClient:     newHTTPClient(m, 0),
			Metrics:        m,
			UploadDir:      cfg.Server.UploadDir,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, fmt.Sprintf(":%d", port)); err != nil {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return stopCameraOnExit(sess, backend)
		})

		zap.L().Info("session ready", zap.String("session", sess.State().ID), zap.Int("port", port))
		return g.Wait()
	},
}

// stopCameraOnExit leaves the backend camera off when the session ends.
func stopCameraOnExit(sess *session.Session, gw session.Gateway) error {
	if !sess.State().CameraActive {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.StopCamera(ctx); err != nil {
		zap.L().Warn("stop camera on exit", zap.Error(err))
		return nil
	}
	zap.L().Info("camera stopped on exit")
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
