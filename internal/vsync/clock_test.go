package vsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/vrcore/internal/devicestate"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

const ms = int64(time.Millisecond)

func newTestClock(t *testing.T) (*Clock, *timeutil.MockClock, *devicestate.State) {
	t.Helper()
	mock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	state := devicestate.New()
	return New(timeutil.NewMonotonic(mock), 10*time.Millisecond, state), mock, state
}

func TestFractionalVsyncBeforeFirstVsync(t *testing.T) {
	c, mock, _ := newTestClock(t)
	mock.Advance(time.Second)
	assert.Equal(t, 0.0, c.FractionalVsync())
}

func TestFractionalVsyncAndFramePoints(t *testing.T) {
	c, mock, _ := newTestClock(t)

	c.UpdateVsync(0)
	mock.Advance(25 * time.Millisecond)

	assert.InDelta(t, 2.5, c.FractionalVsync(), 1e-9)
	assert.InDelta(t, 0.030, c.FramePointTime(3), 1e-12)
	assert.InDelta(t, 0.025, c.FramePointTime(2.5), 1e-12)

	idx, at := c.NextFramePoint()
	assert.Equal(t, 3.0, idx)
	assert.InDelta(t, 0.030, at, 1e-12)
}

func TestNextFramePointOnVsync(t *testing.T) {
	c, mock, _ := newTestClock(t)
	c.UpdateVsync(0)
	mock.Advance(30 * time.Millisecond)
	c.UpdateVsync(30 * ms)

	// Read exactly on vsync 3: the target is the following one.
	idx, at := c.NextFramePoint()
	assert.Equal(t, 4.0, idx)
	assert.InDelta(t, 0.040, at, 1e-12)

	mock.Advance(time.Millisecond)
	idx, _ = c.NextFramePoint()
	assert.Equal(t, 4.0, idx)
}

func TestPredictedDisplayTime(t *testing.T) {
	c, mock, state := newTestClock(t)
	c.UpdateVsync(0)
	mock.Advance(25 * time.Millisecond)

	// ceil(2.5) + 1*(1+0.5) = 4.5 vsyncs
	assert.InDelta(t, 0.045, c.PredictedDisplayTime(1, 1), 1e-12)
	// ceil(2.5) + 1*(0+0.5) = 3.5
	assert.InDelta(t, 0.035, c.PredictedDisplayTime(1, 0), 1e-12)

	state.Throttled.Store(true)
	// throttled forces two vsyncs per frame: 3 + 2*1.5 = 6
	assert.InDelta(t, 0.060, c.PredictedDisplayTime(1, 1), 1e-12)
	// a caller already asking for more keeps its value: 3 + 3*1.5 = 7.5
	assert.InDelta(t, 0.075, c.PredictedDisplayTime(3, 1), 1e-12)
}

func TestUpdateVsyncCountsMissedCallbacks(t *testing.T) {
	c, mock, _ := newTestClock(t)
	c.UpdateVsync(0)

	mock.Advance(30 * time.Millisecond)
	c.UpdateVsync(30 * ms)
	assert.InDelta(t, 3.0, c.FractionalVsync(), 1e-9)

	// a late callback 31ms later still rounds to three periods
	mock.Advance(31 * time.Millisecond)
	c.UpdateVsync(61 * ms)
	assert.InDelta(t, 6.0, c.FractionalVsync(), 1e-9)
	assert.InDelta(t, 0.061, c.FramePointTime(6), 1e-12)
}

func TestFractionalVsyncNeverDecreases(t *testing.T) {
	c, mock, _ := newTestClock(t)
	c.UpdateVsync(0)
	mock.Advance(34 * time.Millisecond)
	c.UpdateVsync(30 * ms)

	before := c.FractionalVsync()
	assert.InDelta(t, 3.4, before, 1e-9)

	// an early vsync that rounds to zero elapsed periods re-bases the
	// timeline backwards; the reading must hold
	c.UpdateVsync(34 * ms)
	assert.GreaterOrEqual(t, c.FractionalVsync(), before)

	mock.Advance(10 * time.Millisecond)
	assert.InDelta(t, 4.0, c.FractionalVsync(), 1e-9)
}

func TestUpdateVsyncIgnoresOutOfOrderCallbacks(t *testing.T) {
	c, mock, _ := newTestClock(t)
	mock.Advance(100 * time.Millisecond)
	c.UpdateVsync(100 * ms)
	c.UpdateVsync(50 * ms)
	assert.InDelta(t, 0.100, c.FramePointTime(0), 1e-12)
}

func TestSetPeriod(t *testing.T) {
	c, _, _ := newTestClock(t)
	c.SetPeriod(0)
	assert.Equal(t, time.Second/60, c.Period())
	c.SetPeriod(time.Second / 72)
	assert.Equal(t, time.Second/72, c.Period())
}
