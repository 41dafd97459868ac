package finder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mjpegHandler(frames []string, terminate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, f := range frames {
			_, _ = w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n" + f + "\r\n"))
		}
		if terminate {
			_, _ = w.Write([]byte("--frame--\r\n"))
		}
	}
}

func TestOpenFeed(t *testing.T) {
	var gotObjects string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/video_feed", r.URL.Path)
		gotObjects = r.URL.Query().Get("objects")
		mjpegHandler([]string{"frame-one", "frame-two", "frame-three"}, true)(w, r)
	}))
	defer srv.Close()

	feed, err := NewClient(srv.URL).OpenFeed(context.Background(), "keys,phone")
	require.NoError(t, err)
	defer feed.Close() //nolint:errcheck

	var got []*Frame
	for {
		frame, err := feed.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, frame)
	}

	assert.Equal(t, "keys,phone", gotObjects)
	require.Len(t, got, 3)
	for i, want := range []string{"frame-one", "frame-two", "frame-three"} {
		assert.Equal(t, i, got[i].Index)
		assert.Equal(t, "image/jpeg", got[i].ContentType)
		assert.Equal(t, want, string(got[i].Data))
	}
}

func TestOpenFeed_UnterminatedStream(t *testing.T) {
	srv := httptest.NewServer(mjpegHandler([]string{"a1", "b2", "c3"}, false))
	defer srv.Close()

	feed, err := NewClient(srv.URL).OpenFeed(context.Background(), "")
	require.NoError(t, err)
	defer feed.Close() //nolint:errcheck

	first, err := feed.Next()
	require.NoError(t, err)
	assert.Equal(t, "a1", string(first.Data))

	var n int
	for n = 0; n < 10; n++ {
		if _, err := feed.Next(); err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
	assert.Less(t, n, 10)
}

func TestOpenFeed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "camera_inactive",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: "unexpected status 503",
		},
		{
			name: "no_boundary",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "multipart/x-mixed-replace")
			},
			wantErr: "has no boundary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			feed, err := NewClient(srv.URL).OpenFeed(context.Background(), "keys")
			var re *RequestError
			require.True(t, errors.As(err, &re), "expected RequestError, got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, feed)
		})
	}
}

func TestNewFeed_BadContentType(t *testing.T) {
	_, err := NewFeed(io.NopCloser(strings.NewReader("")), ";;;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse content type")
}
