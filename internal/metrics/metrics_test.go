package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentTransport_CountsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/history" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := New()
	client := &http.Client{Transport: m.InstrumentTransport(nil)}

	for _, path := range []string{"/history", "/history", "/start_camera"} {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close() //nolint:errcheck
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.backendRequests.WithLabelValues("200", "get")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.backendRequests.WithLabelValues("503", "get")), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(m.backendInFlight), 0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(m.backendDuration))
}

func TestObserveTransition(t *testing.T) {
	m := New()
	m.ObserveTransition("Analyze", nil)
	m.ObserveTransition("analyze", errors.New("busy"))
	m.ObserveTransition("analyze", errors.New("busy"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Transitions.WithLabelValues("analyze", "ok")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Transitions.WithLabelValues("analyze", "rejected")), 0.001)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.FramesReceived.Add(3)
	m.EventClients.Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "finder_feed_frames_received_total 3"))
	assert.True(t, strings.Contains(text, "finder_server_event_clients 2"))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
