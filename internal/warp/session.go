package warp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/tracking"
	"github.com/banshee-data/vrcore/internal/vsync"
)

var logf = monitoring.Component("warp")

// Display is the presentation surface. WaitVsync blocks until the next
// vsync and returns its time in timebase nanoseconds; it must return
// promptly once ctx is done. Draw is only ever called from the warp
// goroutine.
type Display interface {
	VsyncPeriod() time.Duration
	WaitVsync(ctx context.Context) (frameTimeNanos int64, err error)
	TextureValid(t TextureHandle) bool
	Draw(cmd DrawCommand) error
}

// PoseSource predicts head poses. *tracking.Source implements it.
type PoseSource interface {
	Predict(absTime float64) tracking.PredictedPose
}

// State is the session lifecycle. Destroyed is terminal.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Frame outcomes reported to Config.OnFrame.
const (
	OutcomePresent  = "present"
	OutcomeRewarp   = "rewarp"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
)

// FrameRecord describes one warp tick.
type FrameRecord struct {
	SessionID   string
	Tick        uint64
	FrameID     uint64
	Vsync       float64
	DisplayTime float64
	// Latency is DisplayTime minus the submission's PoseTime, zero for
	// fallback frames.
	Latency float64
	Outcome string
	Pose    tracking.PredictedPose
}

// Config tunes a session.
type Config struct {
	// ErrorLogInterval limits how often repeated per-tick faults are logged.
	ErrorLogInterval time.Duration
	// Pool, when set, tracks eye buffer ownership for submissions whose
	// left texture belongs to it.
	Pool *EyePool
	// OnFrame, when set, is called on the warp goroutine after every tick.
	// It must not block.
	OnFrame func(FrameRecord)
}

func DefaultConfig() Config {
	return Config{ErrorLogInterval: time.Second}
}

func ConfigFromTuning(c *config.TuningConfig) Config {
	cfg := DefaultConfig()
	cfg.ErrorLogInterval = c.GetErrorLogInterval()
	return cfg
}

// Stats are cumulative session counters.
type Stats struct {
	Ticks           uint64 `json:"ticks"`
	Presented       uint64 `json:"presented"`
	Rewarped        uint64 `json:"rewarped"`
	Fallback        uint64 `json:"fallback"`
	Submitted       uint64 `json:"submitted"`
	DroppedInvalid  uint64 `json:"dropped_invalid"`
	Superseded      uint64 `json:"superseded"`
	SkippedErrors   uint64 `json:"skipped_errors"`
	LastPresentedID uint64 `json:"last_presented_id"`
}

type counters struct {
	ticks, presented, rewarped, fallback  atomic.Uint64
	submitted, droppedInvalid, superseded atomic.Uint64
	skippedErrors, lastPresentedID        atomic.Uint64
}

// Session is one warp pipeline bound to a display.
type Session struct {
	id      string
	cfg     Config
	display Display
	poses   PoseSource
	clock   *vsync.Clock

	state  atomic.Int32
	nextID atomic.Uint64
	frame  latest.Value[FrameSubmission]
	stats  counters

	submitMu sync.Mutex // orders ID assignment with publication

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
	errMu     sync.Mutex
	err       error

	warnings *monitoring.Throttled
	lastID   uint64 // warp goroutine only
}

// New creates a session in the Created state. clock supplies frame point
// times and is fed every vsync the session observes.
func New(cfg Config, display Display, poses PoseSource, clock *vsync.Clock) *Session {
	if cfg.ErrorLogInterval <= 0 {
		cfg.ErrorLogInterval = DefaultConfig().ErrorLogInterval
	}
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		display: display,
		poses:   poses,
		clock:   clock,
		done:    make(chan struct{}),
	}
	s.warnings = monitoring.NewThrottled(logf, cfg.ErrorLogInterval, nil)
	if p := display.VsyncPeriod(); p > 0 {
		clock.SetPeriod(p)
	}
	return s
}

// ID identifies the session in logs and pacing records.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Submit publishes f as the frame to present from the next tick on and
// returns its assigned ID in f.ID. It never blocks on the warp goroutine.
// A frame with an invalid texture is dropped and logged, and Submit still
// returns nil so the producer keeps its pace.
func (s *Session) Submit(f FrameSubmission) (uint64, error) {
	if s.State() == StateDestroyed {
		return 0, ErrSessionDestroyed
	}
	for eye, img := range f.Eyes {
		if img.Texture == 0 || !s.display.TextureValid(img.Texture) {
			s.stats.droppedInvalid.Add(1)
			s.warnings.Printf("dropping frame: eye %d: %v %d", eye, ErrInvalidTexture, img.Texture)
			if s.cfg.Pool != nil {
				s.cfg.Pool.Release(f.Eyes[0].Texture)
			}
			return 0, nil
		}
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	f.ID = s.nextID.Add(1)
	if s.cfg.Pool != nil {
		s.cfg.Pool.submitted(f.Eyes[0].Texture, f.ID)
	}
	if prev, v := s.frame.Load(); v != 0 && prev.ID > s.stats.lastPresentedID.Load() {
		s.stats.superseded.Add(1)
	}
	s.frame.Store(f)
	s.stats.submitted.Add(1)
	return f.ID, nil
}

// Start launches the warp goroutine. It stops when ctx is done, when
// Destroy is called, or on a fatal display error.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		if s.State() == StateDestroyed {
			return ErrSessionDestroyed
		}
		return ErrAlreadyStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	logf("session %s started", s.id)
	return nil
}

// Destroy stops the session and waits until the warp goroutine has issued
// its last draw. It is safe to call more than once and from any state.
func (s *Session) Destroy() {
	s.lifecycle.Lock()
	prev := State(s.state.Swap(int32(StateDestroyed)))
	cancel := s.cancel
	s.lifecycle.Unlock()

	switch prev {
	case StateCreated:
		s.closeDone()
	case StateRunning:
		cancel()
		<-s.done
		logf("session %s destroyed", s.id)
	default:
		<-s.done
	}
}

// Done is closed once the session can no longer draw.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) run(ctx context.Context) {
	defer s.closeDone()
	for {
		err := s.tick(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.state.Store(int32(StateDestroyed))
		logf("session %s: fatal: %v", s.id, err)
		return
	}
}

// tick waits for one vsync and presents on it. It returns a non-nil error
// only when the session must stop.
func (s *Session) tick(ctx context.Context) error {
	frameTime, err := s.display.WaitVsync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrContextLost) {
			return err
		}
		s.stats.skippedErrors.Add(1)
		s.warnings.Printf("vsync wait failed: %v", err)
		return nil
	}
	if s.State() == StateDestroyed {
		return context.Canceled
	}
	s.clock.UpdateVsync(frameTime)
	index, displayTime := s.clock.NextFramePoint()
	pose := s.poses.Predict(displayTime)
	tick := s.stats.ticks.Add(1)

	f, ok := s.claim()
	cmd := DrawCommand{Tick: tick}
	rec := FrameRecord{SessionID: s.id, Tick: tick, Vsync: index, DisplayTime: displayTime, Pose: pose}
	if !ok {
		cmd.Fallback = true
		cmd.Eyes[0].Warp, cmd.Eyes[1].Warp = IdentityMatrix, IdentityMatrix
		rec.Outcome = OutcomeFallback
	} else {
		cmd.FrameID = f.ID
		cmd.Program = f.Program
		delta := deltaRotation(f.Pose, pose.Orientation)
		for eye := range f.Eyes {
			cmd.Eyes[eye] = EyeDraw{
				Texture: f.Eyes[eye].Texture,
				Warp:    reprojection(f.Eyes[eye].TexMatrix, delta),
			}
		}
		rec.FrameID = f.ID
		rec.Latency = displayTime - f.PoseTime
		rec.Outcome = OutcomePresent
		if f.ID == s.lastID {
			rec.Outcome = OutcomeRewarp
		}
	}

	if err := s.display.Draw(cmd); err != nil {
		if ok && s.cfg.Pool != nil {
			s.cfg.Pool.abandon(f.Eyes[0].Texture)
		}
		if errors.Is(err, ErrContextLost) {
			return err
		}
		s.stats.skippedErrors.Add(1)
		s.warnings.Printf("tick %d skipped: %v", tick, err)
		rec.Outcome = OutcomeSkipped
		s.observe(rec)
		return nil
	}

	switch rec.Outcome {
	case OutcomeFallback:
		s.stats.fallback.Add(1)
	case OutcomeRewarp:
		s.stats.rewarped.Add(1)
	default:
		s.stats.presented.Add(1)
		s.lastID = f.ID
		s.stats.lastPresentedID.Store(f.ID)
	}
	if ok && s.cfg.Pool != nil {
		s.cfg.Pool.presented(f.Eyes[0].Texture)
	}
	s.observe(rec)
	return nil
}

// claim loads the newest submission and reserves its buffers. A frame whose
// buffers were recycled between the load and the claim has been superseded,
// so the load is retried.
func (s *Session) claim() (FrameSubmission, bool) {
	for {
		f, v := s.frame.Load()
		if v == 0 {
			return f, false
		}
		if s.cfg.Pool == nil || s.cfg.Pool.claim(f.Eyes[0].Texture, f.ID) {
			return f, true
		}
	}
}

func (s *Session) observe(rec FrameRecord) {
	if s.cfg.OnFrame != nil {
		s.cfg.OnFrame(rec)
	}
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	return Stats{
		Ticks:           s.stats.ticks.Load(),
		Presented:       s.stats.presented.Load(),
		Rewarped:        s.stats.rewarped.Load(),
		Fallback:        s.stats.fallback.Load(),
		Submitted:       s.stats.submitted.Load(),
		DroppedInvalid:  s.stats.droppedInvalid.Load(),
		Superseded:      s.stats.superseded.Load(),
		SkippedErrors:   s.stats.skippedErrors.Load(),
		LastPresentedID: s.stats.lastPresentedID.Load(),
	}
}
