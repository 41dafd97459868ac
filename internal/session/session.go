// Package session implements the client-side state machine of a lost item
// finder session: mode selection, video analysis, camera control and
// history review against a detection backend.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lost-item-finder/internal/history"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// Messages surfaced through State.Error when a backend call fails.
const (
	MsgAnalyzeFailed = "Failed to process video"
	MsgHistoryFailed = "Failed to fetch detection history"
	MsgCameraFailed  = "Failed to toggle camera"
)

// Guard rejections. A rejected transition leaves the state untouched and
// issues no backend call.
var (
	ErrNoFile         = eris.New("session: no video file selected")
	ErrBusy           = eris.New("session: analysis already in progress")
	ErrToggleInFlight = eris.New("session: camera toggle already in progress")
)

// Gateway is the subset of the backend client a session drives.
type Gateway interface {
	Analyze(ctx context.Context, video finder.VideoFile, targets string) ([]finder.Detection, error)
	FetchHistory(ctx context.Context, opts ...finder.HistoryOption) ([]finder.HistoryRecord, error)
	StartCamera(ctx context.Context) error
	StopCamera(ctx context.Context) error
}

// Option configures a Session.
type Option func(*Session)

// WithAggregator replaces the pairwise history aggregation.
func WithAggregator(agg history.Aggregator) Option {
	return func(s *Session) {
		if agg != nil {
			s.aggregate = agg
		}
	}
}

// WithHistoryLimit asks the backend for at most n history records.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		s.historyLimit = n
	}
}

// WithLogger sets the session logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// Session holds the transient state of one client lifetime. All methods are
// safe for concurrent use; backend calls run without holding the state lock.
type Session struct {
	gw           Gateway
	aggregate    history.Aggregator
	historyLimit int
	log          *zap.Logger

	// At most one analyze call and one camera toggle may be in flight.
	analyzePermit *semaphore.Weighted
	toggleSlot    *semaphore.Weighted

	mu    sync.Mutex
	state State
	file  finder.VideoFile

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// New creates a session in upload mode with nothing selected.
func New(gw Gateway, opts ...Option) *Session {
	s := &Session{
		gw:            gw,
		aggregate:     history.Aggregate,
		log:           zap.L(),
		analyzePermit: semaphore.NewWeighted(1),
		toggleSlot:    semaphore.NewWeighted(1),
		state: State{
			ID:               uuid.NewString(),
			Mode:             ModeUpload,
			Detections:       []finder.Detection{},
			History:          []finder.HistoryRecord{},
			ConfidenceSeries: []history.ConfidencePoint{},
		},
		subs: make(map[int]func(State)),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(zap.String("session", s.state.ID))
	return s
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Callbacks run synchronously on the goroutine that made the change.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// SelectMode switches the active mode. Entering history mode from another
// mode fetches the history once and recomputes the confidence series.
func (s *Session) SelectMode(ctx context.Context, m Mode) error {
	if !m.Valid() {
		return eris.Errorf("session: unknown mode %q", m)
	}

	s.mu.Lock()
	entering := m == ModeHistory && s.state.Mode != ModeHistory
	s.state.Mode = m
	s.mu.Unlock()
	s.notify()

	if entering {
		s.refreshHistory(ctx)
	}
	return nil
}

func (s *Session) refreshHistory(ctx context.Context) {
	var opts []finder.HistoryOption
	if s.historyLimit > 0 {
		opts = append(opts, finder.WithLimit(s.historyLimit))
	}

	records, err := s.gw.FetchHistory(ctx, opts...)
	if err != nil {
		s.log.Warn("fetch history failed", zap.Error(err))
		s.mu.Lock()
		s.state.Error = MsgHistoryFailed
		s.mu.Unlock()
		s.notify()
		return
	}

	if records == nil {
		records = []finder.HistoryRecord{}
	}
	series := s.aggregate(records)
	s.log.Debug("history loaded",
		zap.Int("records", len(records)),
		zap.Int("dates", len(series)),
	)

	s.mu.Lock()
	s.state.History = records
	s.state.ConfidenceSeries = series
	s.mu.Unlock()
	s.notify()
}

// ChooseFile selects the video to analyze and clears any error.
func (s *Session) ChooseFile(f finder.VideoFile) {
	s.mu.Lock()
	s.file = f
	s.state.SelectedFile = ""
	if f != nil {
		s.state.SelectedFile = f.Name()
	}
	s.state.Error = ""
	s.mu.Unlock()
	s.notify()
}

// SetTargets stores the free-text target object list. The text is passed to
// the backend as is.
func (s *Session) SetTargets(targets string) {
	s.mu.Lock()
	s.state.TargetObjects = targets
	s.mu.Unlock()
	s.notify()
}

// SubmitAnalyze sends the selected video for analysis. It returns ErrNoFile
// or ErrBusy when the guard rejects the call. Backend failures are recorded
// in State.Error and leave the previous detections in place.
func (s *Session) SubmitAnalyze(ctx context.Context) error {
	s.mu.Lock()
	file := s.file
	s.mu.Unlock()
	if file == nil {
		return ErrNoFile
	}

	if !s.analyzePermit.TryAcquire(1) {
		return ErrBusy
	}
	defer s.analyzePermit.Release(1)

	s.mu.Lock()
	targets := s.state.TargetObjects
	s.state.Processing = true
	s.state.Error = ""
	s.mu.Unlock()
	s.notify()

	detections, err := s.gw.Analyze(ctx, file, targets)

	s.mu.Lock()
	s.state.Processing = false
	if err != nil {
		s.state.Error = analyzeMessage(err)
	} else {
		if detections == nil {
			detections = []finder.Detection{}
		}
		s.state.Detections = detections
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("analyze failed", zap.String("file", file.Name()), zap.Error(err))
	} else {
		s.log.Info("analyze complete",
			zap.String("file", file.Name()),
			zap.Int("detections", len(detections)),
		)
	}
	s.notify()
	return nil
}

func analyzeMessage(err error) string {
	var be *finder.BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return MsgAnalyzeFailed
}

// ToggleCamera starts the camera when it is off and stops it when it is on.
// A toggle issued while another is pending returns ErrToggleInFlight.
func (s *Session) ToggleCamera(ctx context.Context) error {
	if !s.toggleSlot.TryAcquire(1) {
		return ErrToggleInFlight
	}
	defer s.toggleSlot.Release(1)

	s.mu.Lock()
	active := s.state.CameraActive
	s.mu.Unlock()

	var err error
	if active {
		err = s.gw.StopCamera(ctx)
	} else {
		err = s.gw.StartCamera(ctx)
	}

	s.mu.Lock()
	if err != nil {
		s.state.Error = MsgCameraFailed
	} else {
		s.state.CameraActive = !active
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("camera toggle failed", zap.Bool("was_active", active), zap.Error(err))
	} else {
		s.log.Info("camera toggled", zap.Bool("active", !active))
	}
	s.notify()
	return nil
}

func (s *Session) notify() {
	snap := s.State()

	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(State), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
