package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lost-item-finder/internal/session"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

const maxUploadBytes = 1 << 30

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.State())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		s.metrics.ObserveTransition("select_mode", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.sess.SelectMode(context.WithoutCancel(r.Context()), mode)
	s.metrics.ObserveTransition("select_mode", err)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sess.State())
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Targets string `json:"targets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.sess.SetTargets(req.Targets)
	s.metrics.ObserveTransition("set_targets", nil)
	writeJSON(w, http.StatusOK, s.sess.State())
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	src, hdr, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"video\" is required")
		return
	}
	defer src.Close() //nolint:errcheck

	path, err := s.saveUpload(hdr.Filename, src)
	if err != nil {
		s.log.Error("server: save upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	s.sess.ChooseFile(finder.LocalFile(path))
	s.replaceUpload(filepath.Dir(path))
	s.metrics.ObserveTransition("choose_file", nil)
	writeJSON(w, http.StatusOK, s.sess.State())
}

// saveUpload writes src under a fresh directory so the original base name
// is kept as the file name sent to the backend.
func (s *Server) saveUpload(name string, src io.Reader) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "upload.mp4"
	}

	dir := filepath.Join(s.uploadDir, "finder-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", eris.Wrap(err, "server: create upload dir")
	}
	path := filepath.Join(dir, base)

	dst, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		return "", eris.Wrap(err, "server: create upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()       //nolint:errcheck
		os.RemoveAll(dir) //nolint:errcheck
		return "", eris.Wrap(err, "server: write upload file")
	}
	if err := dst.Close(); err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		return "", eris.Wrap(err, "server: close upload file")
	}
	return path, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// The analysis outlives a dropped client connection.
	err := s.sess.SubmitAnalyze(context.WithoutCancel(r.Context()))
	s.metrics.ObserveTransition("analyze", err)
	switch {
	case errors.Is(err, session.ErrNoFile), errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.sess.State())
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	err := s.sess.ToggleCamera(context.WithoutCancel(r.Context()))
	s.metrics.ObserveTransition("toggle_camera", err)
	switch {
	case errors.Is(err, session.ErrToggleInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.sess.State())
	}
}

// handleFeed relays the backend's multipart JPEG stream to the caller.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	st := s.sess.State()
	if !st.CameraActive {
		writeError(w, http.StatusConflict, "camera is not active")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.feeds.FeedURL(st.TargetObjects), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build feed request")
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("server: open live feed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "live feed unavailable")
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "live feed unavailable")
		return
	}

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF && r.Context().Err() == nil {
				s.log.Debug("server: live feed ended", zap.Error(readErr))
			}
			return
		}
	}
}
