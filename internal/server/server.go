// Package server exposes a session over a local HTTP control API for a
// presentation layer: JSON transitions, a live feed proxy and a WebSocket
// stream of state changes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/internal/session"
)

// FeedSource builds live feed URLs for the backend.
type FeedSource interface {
	FeedURL(targets string) string
}

// Deps holds everything the control API serves.
type Deps struct {
	Session *session.Session
	Feeds   FeedSource
	// HTTPClient fetches the live feed. Defaults to a client without timeout.
	HTTPClient     *http.Client
	Metrics        *metrics.Metrics
	UploadDir      string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server is the control API for a single session.
type Server struct {
	sess      *session.Session
	feeds     FeedSource
	client    *http.Client
	metrics   *metrics.Metrics
	uploadDir string
	origins   []string
	log       *zap.Logger
	hub       *hub
	upgrader  websocket.Upgrader

	// uploadMu guards upload, the directory holding the selected video.
	uploadMu sync.Mutex
	upload   string

	unsubscribe func()
}

// New wires a Server to the session. Call Close to stop event delivery.
func New(d Deps) *Server {
	s := &Server{
		sess:      d.Session,
		feeds:     d.Feeds,
		client:    d.HTTPClient,
		metrics:   d.Metrics,
		uploadDir: d.UploadDir,
		origins:   d.AllowedOrigins,
		log:       d.Logger,
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = zap.L()
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.hub = newHub(s.log, s.metrics)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.allowOrigin,
	}
	s.unsubscribe = s.sess.Subscribe(s.hub.publish)
	return s
}

// Handler returns the routed control API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleState)
		r.Put("/mode", s.handleMode)
		r.Put("/targets", s.handleTargets)
		r.Post("/file", s.handleFile)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/camera/toggle", s.handleToggle)
		r.Get("/feed", s.handleFeed)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Close detaches from the session, disconnects event clients and removes
// the stored upload.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.close()
	s.replaceUpload("")
}

// replaceUpload records dir as the current upload and removes the previous
// one.
func (s *Server) replaceUpload(dir string) {
	s.uploadMu.Lock()
	prev := s.upload
	s.upload = dir
	s.uploadMu.Unlock()

	if prev == "" || prev == dir {
		return
	}
	if err := os.RemoveAll(prev); err != nil {
		s.log.Warn("server: remove previous upload", zap.String("dir", prev), zap.Error(err))
	}
}

// ListenAndServe serves the control API on addr until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: the feed proxy and event stream are long-lived.
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting control api", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down control api")
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
