package finder

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Detection is a single object observation returned by POST /analyze.
type Detection struct {
	ClassName     string  `json:"class_name" yaml:"class_name"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
	FrameLocation string  `json:"frame_location" yaml:"frame_location"`
	BBox          []int   `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Timestamp     string  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// HistoryRecord is one persisted detection from GET /history.
//
// On the wire a record is a positional array:
//
//	[id, timestamp, class_name, confidence, location, source, image_url]
//
// Only the first four positions are required. A missing, null or empty
// image_url means the record has no image.
type HistoryRecord struct {
	ID         int64   `json:"id" yaml:"id"`
	Timestamp  string  `json:"timestamp" yaml:"timestamp"`
	ClassName  string  `json:"class_name" yaml:"class_name"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Location   string  `json:"location,omitempty" yaml:"location,omitempty"`
	Source     string  `json:"source,omitempty" yaml:"source,omitempty"`
	ImageURL   string  `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// Date returns the timestamp up to the first space, or the whole timestamp
// when it has no space.
func (r HistoryRecord) Date() string {
	date, _, _ := strings.Cut(r.Timestamp, " ")
	return date
}

// HasImage reports whether the record carries an image reference.
func (r HistoryRecord) HasImage() bool {
	return r.ImageURL != ""
}

// UnmarshalJSON accepts the positional wire form and, for snapshots written
// by this package, the named object form.
func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type named HistoryRecord
		var rec named
		if err := json.Unmarshal(data, &rec); err != nil {
			return eris.Wrap(err, "finder: history record: decode object")
		}
		*r = HistoryRecord(rec)
		return nil
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return eris.Wrap(err, "finder: history record: decode array")
	}
	if len(fields) < 4 {
		return eris.Errorf("finder: history record: want at least 4 fields, got %d", len(fields))
	}

	var rec HistoryRecord
	if err := json.Unmarshal(fields[0], &rec.ID); err != nil {
		return eris.Wrap(err, "finder: history record: id")
	}
	if err := json.Unmarshal(fields[1], &rec.Timestamp); err != nil {
		return eris.Wrap(err, "finder: history record: timestamp")
	}
	if err := json.Unmarshal(fields[2], &rec.ClassName); err != nil {
		return eris.Wrap(err, "finder: history record: class_name")
	}
	if err := json.Unmarshal(fields[3], &rec.Confidence); err != nil {
		return eris.Wrap(err, "finder: history record: confidence")
	}
	rec.Location = looseString(fields, 4)
	rec.Source = looseString(fields, 5)
	rec.ImageURL = looseString(fields, 6)

	*r = rec
	return nil
}

// looseString returns position i as a string. Non-string JSON values are
// kept as their raw text and null becomes the empty string.
func looseString(fields []json.RawMessage, i int) string {
	if i >= len(fields) {
		return ""
	}
	raw := bytes.TrimSpace(fields[i])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// VideoFile is an opaque handle to a recorded video selected for analysis.
// Open is called once per analyze request.
type VideoFile interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type localFile struct {
	path string
}

// LocalFile returns a VideoFile backed by a file on disk.
func LocalFile(path string) VideoFile {
	return localFile{path: path}
}

func (f localFile) Name() string { return filepath.Base(f.path) }

func (f localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
