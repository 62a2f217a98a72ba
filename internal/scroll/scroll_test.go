package scroll

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func newManager(axis Axis, max float64) *Manager {
	m := NewManager(axis, DefaultConfig())
	m.SetMaxPosition(max)
	return m
}

func newFreeManager(axis Axis, max float64) *Manager {
	cfg := DefaultConfig()
	cfg.SnapToInteger = false
	m := NewManager(axis, cfg)
	m.SetMaxPosition(max)
	return m
}

func TestConfigFromTuningMatchesDefaults(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromTuning(config.EmptyTuningConfig()))
	assert.Equal(t, DefaultArbiterConfig(), ArbiterConfigFromTuning(config.EmptyTuningConfig()))
}

func TestDragSettlesOnItem(t *testing.T) {
	m := newManager(Horizontal, 4)
	m.TouchDown()
	m.TouchRelative(r2.Vec{X: 50})
	m.TouchUp()
	assert.InDelta(t, 1.0, m.Position(), 1e-12)

	for i := 0; i < 300; i++ {
		m.Frame(1.0/60, 0)
	}
	assert.Equal(t, 1.0, m.Position())
	assert.Equal(t, 0.0, m.Velocity())
	assert.False(t, m.IsScrolling())
	assert.InDelta(t, 0.25, m.Fraction(), 1e-12)
}

func TestSnapToNearestItem(t *testing.T) {
	m := newManager(Vertical, 4)
	m.SetPosition(2.4)
	assert.True(t, m.IsScrolling())
	for i := 0; i < 300; i++ {
		m.Frame(1.0/60, 0)
	}
	assert.Equal(t, 2.0, m.Position())
	assert.False(t, m.IsScrolling())
}

func TestTouchUsesOwnAxis(t *testing.T) {
	h := newManager(Horizontal, 10)
	v := newManager(Vertical, 10)
	for _, m := range []*Manager{h, v} {
		m.TouchDown()
		m.TouchRelative(r2.Vec{X: 10, Y: -5})
	}
	assert.InDelta(t, 0.2, h.Position(), 1e-12)
	// Dragging up past the first item is limited to the padding, which is 0.
	assert.Equal(t, 0.0, v.Position())
}

func TestTouchDownReentrantResetsReference(t *testing.T) {
	m := newManager(Horizontal, 10)
	m.TouchDown()
	m.TouchRelative(r2.Vec{X: 10})
	assert.InDelta(t, 0.2, m.Position(), 1e-12)

	m.TouchDown()
	assert.True(t, m.IsTouchDown())
	m.TouchRelative(r2.Vec{X: 10})
	assert.InDelta(t, 0.4, m.Position(), 1e-12)
}

func TestTouchIgnoredWhenUp(t *testing.T) {
	m := newManager(Horizontal, 10)
	m.TouchRelative(r2.Vec{X: 100})
	assert.Equal(t, 0.0, m.Position())
	m.TouchUp()
	assert.False(t, m.IsTouchDown())
}

func TestReleaseCarriesMomentum(t *testing.T) {
	m := newManager(Horizontal, 100)
	m.TouchDown()
	dt := 1.0 / 60
	for i := 1; i <= 10; i++ {
		m.TouchRelative(r2.Vec{X: float64(i) * 5})
		m.Frame(dt, 0)
	}
	require.Greater(t, m.Velocity(), 0.0)
	released := m.Position()
	m.TouchUp()
	m.Frame(dt, 0)
	assert.Greater(t, m.Position(), released)
}

func TestZeroMaxPosition(t *testing.T) {
	m := newManager(Horizontal, 0)
	m.TouchDown()
	m.TouchRelative(r2.Vec{X: 100})
	m.Frame(1.0/60, ButtonRight)
	m.TouchUp()
	m.Frame(1.0/60, ButtonRight)

	assert.Equal(t, 0.0, m.Position())
	assert.Equal(t, 0.0, m.Fraction())
	assert.False(t, m.ScrollbarVisible())
	assert.False(t, math.IsNaN(m.Fraction()))

	m.SetPosition(3)
	assert.Equal(t, 0.0, m.Position())
}

// timeToRest runs frames at the given rate until the velocity is zero and
// returns the simulated time taken.
func timeToRest(t *testing.T, fps float64) float64 {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SnapToInteger = false
	m := NewManager(Horizontal, cfg)
	m.SetMaxPosition(1000)
	m.SetPosition(500)
	m.SetVelocity(5)

	dt := 1 / fps
	for frames := 1; frames < 100000; frames++ {
		m.Frame(dt, 0)
		if m.Velocity() == 0 {
			return float64(frames) * dt
		}
	}
	t.Fatalf("velocity did not reach rest at %v fps", fps)
	return 0
}

func TestDampingIsFrameRateIndependent(t *testing.T) {
	// 5 * 0.02^t < 0.01 once t > ln(500)/ln(50).
	want := math.Log(500) / math.Log(50)
	at30 := timeToRest(t, 30)
	at90 := timeToRest(t, 90)
	assert.InDelta(t, want, at30, 1.0/30)
	assert.InDelta(t, want, at90, 1.0/90)
	assert.InDelta(t, at30, at90, 1.0/30)
}

func TestControllerImpulse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapToInteger = false
	dt := 0.125
	afterImpulse := cfg.ControllerImpulse * math.Pow(cfg.Damping, dt)

	tests := []struct {
		name    string
		axis    Axis
		buttons Buttons
		sign    float64
	}{
		{"right", Horizontal, ButtonRight, 1},
		{"left", Horizontal, ButtonLeft, -1},
		{"down", Vertical, ButtonDown, 1},
		{"up", Vertical, ButtonUp, -1},
		{"vertical ignores right", Vertical, ButtonRight, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.axis, cfg)
			m.SetMaxPosition(100)
			m.SetPosition(50)
			m.Frame(dt, tt.buttons)
			assert.InDelta(t, tt.sign*afterImpulse, m.Velocity(), 1e-12)
		})
	}
}

func TestControllerRepeatsWhileHeld(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapToInteger = false
	m := NewManager(Horizontal, cfg)
	m.SetMaxPosition(100)
	dt := 0.125
	afterImpulse := cfg.ControllerImpulse * math.Pow(cfg.Damping, dt)

	m.Frame(dt, ButtonRight)
	assert.InDelta(t, afterImpulse, m.Velocity(), 1e-12)
	for i := 0; i < 3; i++ {
		m.Frame(dt, ButtonRight)
		assert.Less(t, m.Velocity(), afterImpulse)
	}
	// Four frames of 0.125s make up the 0.5s repeat time.
	m.Frame(dt, ButtonRight)
	assert.InDelta(t, afterImpulse, m.Velocity(), 1e-12)
}

func TestBoundsClampStopsDead(t *testing.T) {
	const max = 3.0
	rng := rand.New(rand.NewSource(7))
	choices := []Buttons{0, 0, ButtonLeft, ButtonRight, ButtonLeft | ButtonRight}

	m := newManager(Horizontal, max)
	buttons := Buttons(0)
	for i := 0; i < 5000; i++ {
		if i%10 == 0 {
			buttons = choices[rng.Intn(len(choices))]
		}
		m.Frame(1.0/60, buttons)
		p := m.Position()
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, max)
		if p == 0 || p == max {
			require.Equal(t, 0.0, m.Velocity(), "frame %d", i)
		}
	}
}

func TestDragIntoBoundZeroesVelocity(t *testing.T) {
	m := newFreeManager(Horizontal, 4)
	m.SetPosition(3.5)
	m.TouchDown()

	const dt = 1.0 / 60
	m.TouchRelative(r2.Vec{X: 20})
	m.Frame(dt, 0)
	require.InDelta(t, 3.9, m.Position(), 1e-12)
	require.Greater(t, m.Velocity(), 0.0)

	for i := 2; i <= 10; i++ {
		m.TouchRelative(r2.Vec{X: float64(20 * i)})
		assert.Equal(t, 4.0, m.Position(), "frame %d", i)
		assert.Equal(t, 0.0, m.Velocity(), "frame %d: velocity after clamp", i)
		m.Frame(dt, 0)
		assert.Equal(t, 0.0, m.Velocity(), "frame %d", i)
	}

	m.TouchUp()
	m.Frame(dt, 0)
	assert.Equal(t, 4.0, m.Position())
	assert.False(t, m.IsScrolling())
}

func TestPaddingSpringsBack(t *testing.T) {
	m := newManager(Horizontal, 4)
	m.SetScrollPadding(0.5)
	m.TouchDown()
	m.TouchRelative(r2.Vec{X: -100})
	assert.Equal(t, -0.5, m.Position())
	assert.True(t, m.IsOutOfBounds())

	m.TouchUp()
	for i := 0; i < 200; i++ {
		m.Frame(1.0/60, 0)
		require.LessOrEqual(t, m.Position(), 0.0)
	}
	assert.Equal(t, 0.0, m.Position())
	assert.False(t, m.IsOutOfBounds())
}

func wrapManager() *Manager {
	m := newManager(Horizontal, 4)
	m.SetWrapAroundEnable(true)
	m.TouchDown()
	// 40 touch units is 0.8 items, limited to the 0.5 item wrap offset.
	m.TouchRelative(r2.Vec{X: -40})
	return m
}

func TestWrapHoldTeleports(t *testing.T) {
	m := wrapManager()
	require.Equal(t, -0.5, m.Position())
	assert.Equal(t, -1.0, m.RemainingTimeForWrapAround())

	dt := 0.125
	m.Frame(dt, 0)
	require.True(t, m.IsWrapAroundTimeInitiated())
	assert.Equal(t, 1.0, m.RemainingTimeForWrapAround())

	for i := 0; i < 7; i++ {
		m.Frame(dt, 0)
		require.True(t, m.IsOutOfBounds())
	}
	assert.Equal(t, 0.125, m.RemainingTimeForWrapAround())

	m.Frame(dt, 0)
	assert.InDelta(t, 3.5, m.Position(), 1e-12)
	assert.Equal(t, 0.0, m.Velocity())
	assert.False(t, m.IsWrapAroundTimeInitiated())
	assert.False(t, m.IsOutOfBounds())
}

func TestWrapReleasedEarlySnapsBack(t *testing.T) {
	m := wrapManager()
	dt := 0.125
	for i := 0; i < 5; i++ {
		m.Frame(dt, 0)
	}
	require.True(t, m.IsWrapAroundTimeInitiated())
	assert.Equal(t, 0.5, m.RemainingTimeForWrapAround())

	m.TouchUp()
	for i := 0; i < 100; i++ {
		m.Frame(dt, 0)
		require.LessOrEqual(t, m.Position(), 0.0, "teleported")
		require.False(t, m.IsWrapAroundTimeInitiated())
	}
	assert.Equal(t, 0.0, m.Position())
	assert.Equal(t, 0.0, m.Velocity())
}

func TestWrapDisarmsWhenDraggedBack(t *testing.T) {
	m := wrapManager()
	m.Frame(0.125, 0)
	require.True(t, m.IsWrapAroundTimeInitiated())

	m.TouchRelative(r2.Vec{X: 0})
	assert.InDelta(t, 0.3, m.Position(), 1e-12)
	m.Frame(0.125, 0)
	assert.False(t, m.IsWrapAroundTimeInitiated())
	assert.False(t, m.IsOutOfBounds())
}

func TestArbiterTouchLock(t *testing.T) {
	tests := []struct {
		name     string
		decide   r2.Vec
		wantLock Lock
	}{
		{"horizontal", r2.Vec{X: 12, Y: 4}, HorizontalLock},
		{"vertical", r2.Vec{X: -3, Y: -11}, VerticalLock},
		{"tie goes horizontal", r2.Vec{X: 10, Y: 10}, HorizontalLock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFreeManager(Horizontal, 10)
			v := newFreeManager(Vertical, 10)
			h.SetPosition(5)
			v.SetPosition(5)
			a := NewArbiter(DefaultArbiterConfig(), h, v)

			a.TouchDown()
			a.TouchRelative(r2.Vec{X: 3, Y: 2})
			assert.Equal(t, NoLock, a.TouchLock())
			assert.InDelta(t, 5.06, h.Position(), 1e-12)
			assert.InDelta(t, 5.04, v.Position(), 1e-12)

			a.TouchRelative(tt.decide)
			require.Equal(t, tt.wantLock, a.TouchLock())

			winner, loser := h, v
			if tt.wantLock == VerticalLock {
				winner, loser = v, h
			}
			assert.True(t, winner.IsTouchDown())
			assert.False(t, loser.IsTouchDown())

			frozen := loser.Position()
			a.TouchRelative(r2.Vec{X: 60, Y: 60})
			a.Frame(1.0/60, 0)
			assert.Equal(t, frozen, loser.Position())

			a.TouchUp()
			assert.Equal(t, NoLock, a.TouchLock())
			assert.False(t, winner.IsTouchDown())
		})
	}
}

func TestArbiterLoserStopsForRestOfGesture(t *testing.T) {
	h := newFreeManager(Horizontal, 10)
	v := newFreeManager(Vertical, 10)
	h.SetPosition(5)
	v.SetPosition(5)
	a := NewArbiter(DefaultArbiterConfig(), h, v)

	const dt = 1.0 / 60
	a.TouchDown()
	a.TouchRelative(r2.Vec{X: 3, Y: 8})
	a.Frame(dt, 0)
	require.Equal(t, NoLock, a.TouchLock())
	require.Greater(t, v.Velocity(), 0.0, "both axes track before the lock")

	a.TouchRelative(r2.Vec{X: 30, Y: 9})
	require.Equal(t, HorizontalLock, a.TouchLock())
	assert.Equal(t, 0.0, v.Velocity())
	a.Frame(dt, 0)

	frozen := v.Position()
	for i := 1; i <= 30; i++ {
		a.TouchRelative(r2.Vec{X: 30 + float64(i), Y: 9 + float64(i)})
		a.Frame(dt, 0)
		require.Equal(t, frozen, v.Position(), "frame %d", i)
		require.Equal(t, 0.0, v.Velocity(), "frame %d", i)
	}
	assert.Greater(t, h.Position(), 5.5)
}

func TestArbiterControllerLock(t *testing.T) {
	h := newManager(Horizontal, 10)
	v := newManager(Vertical, 10)
	h.SetPosition(5)
	v.SetPosition(5)
	a := NewArbiter(DefaultArbiterConfig(), h, v)

	a.Frame(0.05, ButtonRight)
	assert.Equal(t, HorizontalLock, a.ControllerLock())
	assert.Greater(t, h.Velocity(), 0.0)

	a.Frame(0.05, ButtonRight|ButtonDown)
	assert.Equal(t, HorizontalLock, a.ControllerLock())
	assert.Equal(t, 0.0, v.Velocity())
	assert.Equal(t, 5.0, v.Position())

	a.Frame(0.1, 0)
	assert.Equal(t, HorizontalLock, a.ControllerLock(), "cool-down not elapsed")
	a.Frame(0.15, 0)
	assert.Equal(t, NoLock, a.ControllerLock())

	a.Frame(0.05, ButtonDown)
	assert.Equal(t, VerticalLock, a.ControllerLock())
	assert.Greater(t, v.Velocity(), 0.0)
}

func TestArbiterSingleManagerUnrestricted(t *testing.T) {
	h := newManager(Horizontal, 10)
	a := NewArbiter(DefaultArbiterConfig(), h, nil)
	a.TouchDown()
	a.TouchRelative(r2.Vec{X: 2, Y: 50})
	assert.Equal(t, VerticalLock, a.TouchLock())
	assert.False(t, h.IsTouchDown())

	a.TouchUp()
	a.Frame(0.05, ButtonRight|ButtonDown)
	assert.Greater(t, h.Velocity(), 0.0)
}

func TestHints(t *testing.T) {
	m := newManager(Horizontal, 4)
	m.SetPosition(2)
	h := NewHints(5)

	for i := 0; i < 5; i++ {
		h.Frame(1, m)
	}
	assert.False(t, h.Visible())
	assert.Equal(t, 0.0, h.Alpha())

	h.Frame(0.5, m)
	assert.True(t, h.Visible())
	assert.InDelta(t, 0.5, h.Alpha(), 1e-12)
	assert.True(t, h.Back(m))
	assert.True(t, h.Forward(m))

	h.Frame(10, m)
	assert.Equal(t, 1.0, h.Alpha())

	m.SetPosition(0)
	assert.False(t, h.Back(m))
	m.SetPosition(4)
	assert.False(t, h.Forward(m))

	h.Interacted()
	assert.False(t, h.Visible())

	m.SetVelocity(1)
	h.Frame(10, m)
	assert.False(t, h.Visible())
}

func TestWrapIndicator(t *testing.T) {
	m := newManager(Horizontal, 4)
	assert.Equal(t, WrapIndicator{}, WrapIndicatorFor(m))

	m = wrapManager()
	w := WrapIndicatorFor(m)
	assert.Equal(t, 1.0, w.Fade)
	assert.Equal(t, 0.0, w.Scale)

	m.Frame(0.125, 0)
	for i := 0; i < 4; i++ {
		m.Frame(0.125, 0)
	}
	w = WrapIndicatorFor(m)
	assert.InDelta(t, pop(50), w.Scale, 1e-12)
}

func TestPop(t *testing.T) {
	tests := []struct {
		percent, want float64
	}{
		{-5, 0},
		{0, 0},
		{35, 1.5},
		{70, 3.0},
		{75, 1.9},
		{80, 0.8},
		{90, 0.9},
		{100, 1.0},
		{150, 1.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, pop(tt.percent), 1e-12, "pop(%v)", tt.percent)
	}
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "vertical", Vertical.String())
	assert.Equal(t, "horizontal", Horizontal.String())
	assert.Equal(t, "none", NoLock.String())
	assert.Equal(t, "vertical", VerticalLock.String())
}
