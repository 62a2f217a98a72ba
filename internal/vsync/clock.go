// Package vsync converts the display's vsync callbacks into a continuous
// frame timeline and computes predicted display times for rendering.
package vsync

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

// ThrottleSource reports whether frame pacing has been throttled by the
// power policy. *devicestate.State satisfies it.
type ThrottleSource interface {
	IsThrottled() bool
}

// ThrottledMinVsyncs is the minimum number of vsyncs per frame while throttled,
// i.e. half the display refresh rate.
const ThrottledMinVsyncs = 2

type base struct {
	count      float64 // vsync index at baseNanos
	baseNanos  float64 // timebase nanoseconds of the last vsync
	periodNano float64
}

// Clock is the frame timing clock. UpdateVsync is called from the display's
// vsync callback; every other method may be called from any goroutine.
type Clock struct {
	timebase *timeutil.Monotonic
	throttle ThrottleSource
	period   atomic.Uint64 // float64 bits, nanoseconds
	state    latest.Value[base]
	lastFrac atomic.Uint64 // float64 bits
}

// New creates a clock for a display refreshing every period. The timebase is
// shared with sensor samples so predicted display times and pose times are
// directly comparable. throttle may be nil.
func New(timebase *timeutil.Monotonic, period time.Duration, throttle ThrottleSource) *Clock {
	c := &Clock{timebase: timebase, throttle: throttle}
	c.SetPeriod(period)
	return c
}

// SetPeriod changes the nominal refresh period used for subsequent vsyncs.
func (c *Clock) SetPeriod(period time.Duration) {
	if period <= 0 {
		period = time.Second / 60
	}
	c.period.Store(math.Float64bits(float64(period.Nanoseconds())))
}

// Period returns the refresh period.
func (c *Clock) Period() time.Duration {
	return time.Duration(math.Float64frombits(c.period.Load()))
}

// NowNanos returns the current timebase time in nanoseconds.
func (c *Clock) NowNanos() int64 {
	return c.timebase.Nanos()
}

// UpdateVsync records a vsync that happened at frameTimeNanos on the
// timebase. The vsync count advances by the number of whole periods since the
// previous vsync, rounded, so a missed callback still counts its vsyncs.
func (c *Clock) UpdateVsync(frameTimeNanos int64) {
	period := math.Float64frombits(c.period.Load())
	prev, version := c.state.Load()
	next := base{baseNanos: float64(frameTimeNanos), periodNano: period}
	if version != 0 {
		elapsed := math.Floor(0.5 + (float64(frameTimeNanos)-prev.baseNanos)/prev.periodNano)
		if elapsed < 0 {
			return
		}
		next.count = prev.count + elapsed
	}
	c.state.Store(next)
}

// FractionalVsync returns the current position on the vsync timeline. It
// increases by 1.0 per display refresh and never decreases. It is 0 until the
// first vsync is seen.
func (c *Clock) FractionalVsync() float64 {
	s, version := c.state.Load()
	if version == 0 {
		return 0
	}
	v := s.count + (float64(c.NowNanos())-s.baseNanos)/s.periodNano
	return c.monotonic(v)
}

func (c *Clock) monotonic(v float64) float64 {
	for {
		old := c.lastFrac.Load()
		prev := math.Float64frombits(old)
		if v <= prev {
			return prev
		}
		if c.lastFrac.CompareAndSwap(old, math.Float64bits(v)) {
			return v
		}
	}
}

// FramePointTime converts a (possibly fractional) vsync index into timebase
// seconds.
func (c *Clock) FramePointTime(framePoint float64) float64 {
	s, version := c.state.Load()
	if version == 0 {
		s.periodNano = math.Float64frombits(c.period.Load())
	}
	return (math.Floor(s.baseNanos) + (framePoint-s.count)*s.periodNano) * 1e-9
}

// PredictedDisplayTime returns the time at which a frame started now will be
// displayed, given the minimum number of vsyncs per frame and the depth of
// the render pipeline. The extra half frame centres the prediction between
// the two presentation slots the frame can land in. While throttled the
// frame is assumed to take at least ThrottledMinVsyncs vsyncs.
func (c *Clock) PredictedDisplayTime(minVsyncs, pipelineDepth int) float64 {
	if c.throttle != nil && c.throttle.IsThrottled() && minVsyncs < ThrottledMinVsyncs {
		minVsyncs = ThrottledMinVsyncs
	}
	if minVsyncs < 1 {
		minVsyncs = 1
	}
	vsyncBase := math.Ceil(c.FractionalVsync())
	predicted := vsyncBase + float64(minVsyncs)*(float64(pipelineDepth)+0.5)
	return c.FramePointTime(predicted)
}

// NextFramePoint returns the first integer vsync index after now, and its
// time. A vsync that started exactly now counts as past. The warp loop
// predicts poses for this point.
func (c *Clock) NextFramePoint() (index float64, seconds float64) {
	index = math.Floor(c.FractionalVsync()) + 1
	return index, c.FramePointTime(index)
}
