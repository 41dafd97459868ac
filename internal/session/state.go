package session

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lost-item-finder/internal/history"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// Mode is the active interaction mode of a session.
type Mode string

const (
	ModeUpload  Mode = "upload"
	ModeCamera  Mode = "camera"
	ModeHistory Mode = "history"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeUpload, ModeCamera, ModeHistory:
		return true
	default:
		return false
	}
}

// ParseMode converts a user-supplied name into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", eris.Errorf("session: unknown mode %q", s)
	}
	return m, nil
}

// State is a point-in-time copy of a session. Mutating a State has no
// effect on the session it came from.
type State struct {
	ID               string                    `json:"id" yaml:"id"`
	Mode             Mode                      `json:"mode" yaml:"mode"`
	TargetObjects    string                    `json:"target_objects" yaml:"target_objects"`
	SelectedFile     string                    `json:"selected_file,omitempty" yaml:"selected_file,omitempty"`
	Processing       bool                      `json:"processing" yaml:"processing"`
	CameraActive     bool                      `json:"camera_active" yaml:"camera_active"`
	Error            string                    `json:"error,omitempty" yaml:"error,omitempty"`
	Detections       []finder.Detection        `json:"detections" yaml:"detections"`
	History          []finder.HistoryRecord    `json:"history" yaml:"history"`
	ConfidenceSeries []history.ConfidencePoint `json:"confidence_series" yaml:"confidence_series"`
}

func (s State) clone() State {
	out := s
	out.Detections = slices.Clone(s.Detections)
	for i := range out.Detections {
		out.Detections[i].BBox = slices.Clone(out.Detections[i].BBox)
	}
	out.History = slices.Clone(s.History)
	out.ConfidenceSeries = slices.Clone(s.ConfidenceSeries)
	return out
}
