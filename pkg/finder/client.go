// Package finder provides a client for the lost item finder detection
// backend: video analysis, detection history, camera control and the live
// camera feed.
package finder

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultUserAgent = "lost-item-finder/1.0"
	maxErrorBody     = 512
)

// Client defines the detection backend operations.
type Client interface {
	// Analyze uploads a video and returns the detections of the target objects.
	Analyze(ctx context.Context, video VideoFile, targets string) ([]Detection, error)
	// FetchHistory returns the persisted detection log.
	FetchHistory(ctx context.Context, opts ...HistoryOption) ([]HistoryRecord, error)
	// StartCamera activates server-side capture.
	StartCamera(ctx context.Context) error
	// StopCamera deactivates server-side capture.
	StopCamera(ctx context.Context) error
	// FeedURL returns the live feed URL for the given target list.
	FeedURL(targets string) string
	// OpenFeed connects to the live feed and returns a frame reader.
	OpenFeed(ctx context.Context, targets string) (*Feed, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// HistoryOption configures a history request.
type HistoryOption func(*historyOpts)

type historyOpts struct {
	limit int
}

// WithLimit caps the number of records returned. Zero leaves the backend
// default in place.
func WithLimit(n int) HistoryOption {
	return func(o *historyOpts) {
		o.limit = n
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a detection backend client rooted at baseURL.
//
// The default http.Client has no overall timeout: analyze calls run as long
// as the backend needs and the live feed is an unbounded stream.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: defaultUserAgent,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type analyzeResponse struct {
	Status          string      `json:"status"`
	Detections      []Detection `json:"detections"`
	TotalDetections int         `json:"total_detections"`
	Error           string      `json:"error"`
}

func (c *httpClient) Analyze(ctx context.Context, video VideoFile, targets string) ([]Detection, error) {
	const op = "analyze"
	if video == nil {
		return nil, eris.New("finder: analyze: no video selected")
	}

	src, err := video.Open()
	if err != nil {
		return nil, eris.Wrap(err, "finder: analyze: open video")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer src.Close() //nolint:errcheck
		pw.CloseWithError(writeAnalyzeForm(mw, video.Name(), src, targets))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/analyze", pr)
	if err != nil {
		_ = pr.Close()
		return nil, eris.Wrap(err, "finder: analyze: create request")
	}
	defer pr.Close() //nolint:errcheck
	req.Header.Set("Content-Type", mw.FormDataContentType())

	status, body, err := c.do(req)
	if err != nil {
		return nil, &RequestError{Op: op, StatusCode: status, Err: err}
	}

	var result analyzeResponse
	decodeErr := json.Unmarshal(body, &result)
	if decodeErr == nil && result.Error != "" {
		return nil, &BackendError{Op: op, StatusCode: status, Message: result.Error}
	}
	if !success(status) {
		return nil, &RequestError{Op: op, StatusCode: status, Err: unexpectedStatus(status, body)}
	}
	if decodeErr != nil {
		return nil, &RequestError{Op: op, StatusCode: status, Err: eris.Wrap(decodeErr, "unmarshal response")}
	}

	if result.Detections == nil {
		return []Detection{}, nil
	}
	return result.Detections, nil
}

func writeAnalyzeForm(mw *multipart.Writer, name string, src io.Reader, targets string) error {
	part, err := mw.CreateFormFile("video", name)
	if err != nil {
		return eris.Wrap(err, "create video part")
	}
	if _, err := io.Copy(part, src); err != nil {
		return eris.Wrap(err, "copy video")
	}
	if err := mw.WriteField("target_objects", targets); err != nil {
		return eris.Wrap(err, "write target_objects")
	}
	return mw.Close()
}

type historyResponse struct {
	History []HistoryRecord `json:"history"`
}

func (c *httpClient) FetchHistory(ctx context.Context, opts ...HistoryOption) ([]HistoryRecord, error) {
	const op = "history"
	var o historyOpts
	for _, fn := range opts {
		fn(&o)
	}

	path := "/history"
	if o.limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(o.limit)}}.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "finder: history: create request")
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, &RequestError{Op: op, StatusCode: status, Err: err}
	}
	if !success(status) {
		return nil, &RequestError{Op: op, StatusCode: status, Err: unexpectedStatus(status, body)}
	}

	var result historyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &RequestError{Op: op, StatusCode: status, Err: eris.Wrap(err, "unmarshal response")}
	}
	if result.History == nil {
		return []HistoryRecord{}, nil
	}
	return result.History, nil
}

func (c *httpClient) StartCamera(ctx context.Context) error {
	return c.ack(ctx, "start_camera", "/start_camera")
}

func (c *httpClient) StopCamera(ctx context.Context) error {
	return c.ack(ctx, "stop_camera", "/stop_camera")
}

// ack issues a GET whose only meaningful outcome is a 2xx status.
func (c *httpClient) ack(ctx context.Context, op, path string) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return eris.Wrapf(err, "finder: %s: create request", op)
	}

	status, body, err := c.do(req)
	if err != nil {
		return &RequestError{Op: op, StatusCode: status, Err: err}
	}
	if !success(status) {
		return &RequestError{Op: op, StatusCode: status, Err: unexpectedStatus(status, body)}
	}
	return nil
}

func (c *httpClient) FeedURL(targets string) string {
	return c.baseURL + "/video_feed?" + url.Values{"objects": {targets}}.Encode()
}

func (c *httpClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// do sends req and reads the whole response body.
func (c *httpClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, eris.Wrap(err, "read response")
	}
	return resp.StatusCode, body, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func unexpectedStatus(status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return eris.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(body)))
}
