package main

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lost-item-finder/internal/history"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", formatTable, false},
		{"table", formatTable, false},
		{"JSON", formatJSON, false},
		{" yaml ", formatYAML, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDetections(t *testing.T) {
	var buf bytes.Buffer
	formatDetections(&buf, []finder.Detection{
		{ClassName: "cell phone", Confidence: 0.873, FrameLocation: "frame 40"},
	})

	out := buf.String()
	assert.Contains(t, out, "OBJECT")
	assert.Contains(t, out, "Cell Phone")
	assert.Contains(t, out, "87.3%")
	assert.Contains(t, out, "frame 40")
}

func TestFormatDetections_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatDetections(&buf, nil)
	assert.Equal(t, "No target objects detected.\n", buf.String())
}

func TestFormatHistory(t *testing.T) {
	var buf bytes.Buffer
	formatHistory(&buf, []finder.HistoryRecord{
		{ID: 7, Timestamp: "2024-01-01 10:00:00", ClassName: "keys", Confidence: 0.5, ImageURL: "/img/7.jpg"},
		{ID: 8, Timestamp: "2024-01-02 10:00:00", ClassName: "wallet", Confidence: 0.25},
	})

	out := buf.String()
	assert.Contains(t, out, "Keys")
	assert.Contains(t, out, "/img/7.jpg")
	assert.Contains(t, out, "25.0%")
}

func TestFormatTrend(t *testing.T) {
	var buf bytes.Buffer
	formatTrend(&buf, []history.ConfidencePoint{{Date: "2024-01-01", Confidence: 0.625}})
	assert.Contains(t, buf.String(), "2024-01-01")
	assert.Contains(t, buf.String(), "62.5%")
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	dets := []finder.Detection{{ClassName: "keys", Confidence: 0.9, FrameLocation: "frame 1"}}
	require.NoError(t, render(&buf, formatJSON, dets, nil))

	var got []finder.Detection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, dets, got)
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	points := []history.ConfidencePoint{{Date: "2024-01-01", Confidence: 0.6}}
	require.NoError(t, render(&buf, formatYAML, points, nil))

	assert.Contains(t, buf.String(), "date:")

	var got []history.ConfidencePoint
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, points, got)
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	called := false
	require.NoError(t, render(&buf, formatTable, nil, func(io.Writer) {
		called = true
	}))
	assert.True(t, called)
}
