package tracking

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/sensor"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

var logf = monitoring.Component("tracking")

// Corrector turns raw samples into calibrated ones. *calibration.Filter
// implements it.
type Corrector interface {
	Apply(raw sensor.Sample) sensor.Sample
}

// Config controls integration and prediction.
type Config struct {
	// MaxPrediction caps how far past the newest sample a pose is
	// extrapolated, in seconds.
	MaxPrediction  float64
	UpdateInterval time.Duration
}

func DefaultConfig() Config {
	return Config{MaxPrediction: 0.1, UpdateInterval: 2 * time.Millisecond}
}

func ConfigFromTuning(c *config.TuningConfig) Config {
	return Config{
		MaxPrediction:  c.GetMaxPredictionSeconds(),
		UpdateInterval: c.GetTrackingUpdateInterval(),
	}
}

// fusion is the published integrator output.
type fusion struct {
	orientation     quat.Number
	angularVelocity r3.Vec
	time            float64
	status          Status
}

// Source produces predicted poses. Predict may be called from any goroutine
// and never blocks; Update and Run drive the integrator.
type Source struct {
	cfg      Config
	device   sensor.Device
	filter   Corrector
	timebase *timeutil.Monotonic

	mu       sync.Mutex // serialises Update and Recenter
	last     float64
	haveLast bool

	state latest.Value[fusion]
}

// New creates a Source. A nil device yields untracked identity poses; a nil
// filter passes samples through unchanged.
func New(cfg Config, device sensor.Device, filter Corrector, timebase *timeutil.Monotonic) *Source {
	if cfg.MaxPrediction < 0 {
		cfg.MaxPrediction = 0
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultConfig().UpdateInterval
	}
	if timebase == nil {
		timebase = timeutil.NewMonotonic(nil)
	}
	s := &Source{cfg: cfg, device: device, filter: filter, timebase: timebase}
	f := fusion{orientation: Identity}
	if device != nil {
		f.status = StatusHMDConnected
	}
	s.state.Store(f)
	return s
}

// Predict returns the pose expected at absTime.
func (s *Source) Predict(absTime float64) PredictedPose {
	f := s.state.Get()
	pose := PredictedPose{
		Orientation:     f.orientation,
		AngularVelocity: f.angularVelocity,
		Time:            absTime,
		Status:          f.status,
	}
	if f.status&StatusOrientationTracked == 0 {
		return pose
	}
	dt := absTime - f.time
	if dt < 0 {
		dt = 0
	}
	if dt > s.cfg.MaxPrediction {
		dt = s.cfg.MaxPrediction
	}
	pose.Orientation = Integrate(f.orientation, f.angularVelocity, dt)
	return pose
}

// Current returns the pose at the newest integrated sample.
func (s *Source) Current() PredictedPose {
	f := s.state.Get()
	return PredictedPose{Orientation: f.orientation, AngularVelocity: f.angularVelocity, Time: f.time, Status: f.status}
}

// Update integrates the device's latest sample if it is newer than the last
// one seen, and reports whether it did.
func (s *Source) Update() bool {
	if s.device == nil {
		return false
	}
	raw, ok := s.device.LatestSample()
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveLast && raw.Time <= s.last {
		return false
	}
	sample := raw
	if s.filter != nil {
		sample = s.filter.Apply(raw)
	}

	f := s.state.Get()
	if s.haveLast {
		f.orientation = Integrate(f.orientation, sample.Gyro, sample.Time-s.last)
	}
	f.angularVelocity = sample.Gyro
	f.time = sample.Time
	f.status |= StatusOrientationTracked | StatusHMDConnected
	s.state.Store(f)

	s.last, s.haveLast = sample.Time, true
	return true
}

// Recenter zeroes the current heading, keeping pitch and roll.
func (s *Source) Recenter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.state.Get()
	f.orientation = RemoveYaw(f.orientation)
	s.state.Store(f)
	logf("recentered")
}

// Run calls Update every UpdateInterval until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	if s.device == nil {
		logf("no sensor attached; poses are untracked")
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := s.timebase.Clock().NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Update()
		}
	}
}
