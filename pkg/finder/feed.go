package finder

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/rotisserie/eris"
)

// Frame is one image from the live camera feed.
type Frame struct {
	Index       int
	ContentType string
	Data        []byte
}

// Feed reads frames from a multipart/x-mixed-replace live feed.
// A Feed is not safe for concurrent use.
type Feed struct {
	body   io.ReadCloser
	reader *multipart.Reader
	next   int
}

func (c *httpClient) OpenFeed(ctx context.Context, targets string) (*Feed, error) {
	const op = "video_feed"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL(targets), nil)
	if err != nil {
		return nil, eris.Wrap(err, "finder: video_feed: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Op: op, Err: eris.Wrap(err, "send request")}
	}
	if !success(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: unexpectedStatus(resp.StatusCode, body)}
	}

	feed, err := NewFeed(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		_ = resp.Body.Close()
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return feed, nil
}

// NewFeed wraps a multipart stream body. contentType must carry the
// boundary parameter.
func NewFeed(body io.ReadCloser, contentType string) (*Feed, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, eris.Wrapf(err, "parse content type %q", contentType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, eris.Errorf("content type %q has no boundary", mediaType)
	}
	return &Feed{
		body:   body,
		reader: multipart.NewReader(body, boundary),
	}, nil
}

// Next returns the next frame. It returns io.EOF once the stream ends; a
// trailing frame cut off by the end of the stream is dropped.
func (f *Feed) Next() (*Frame, error) {
	part, err := f.reader.NextPart()
	if err != nil {
		if isEndOfStream(err) {
			return nil, io.EOF
		}
		return nil, eris.Wrap(err, "finder: video_feed: next part")
	}
	defer part.Close() //nolint:errcheck

	data, err := io.ReadAll(part)
	if err != nil {
		if isEndOfStream(err) {
			return nil, io.EOF
		}
		return nil, eris.Wrap(err, "finder: video_feed: read frame")
	}

	frame := &Frame{
		Index:       f.next,
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}
	f.next++
	return frame, nil
}

// Close releases the underlying connection.
func (f *Feed) Close() error {
	return f.body.Close()
}

func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
