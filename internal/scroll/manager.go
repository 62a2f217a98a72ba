// Package scroll implements the one-dimensional scrolling model shared by
// every scrollable UI region: touch drag, release momentum, controller
// impulses, bounds, optional hold-to-wrap and integer rest snapping.
//
// A Manager lives on the UI goroutine and is not safe for concurrent use.
package scroll

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/config"
)

// Axis is the direction a Manager scrolls along.
type Axis int

const (
	Horizontal Axis = iota
	Vertical
)

func (a Axis) String() string {
	if a == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Lock is a gesture's claimed direction.
type Lock int

const (
	NoLock Lock = iota
	HorizontalLock
	VerticalLock
)

func (l Lock) String() string {
	switch l {
	case HorizontalLock:
		return "horizontal"
	case VerticalLock:
		return "vertical"
	default:
		return "none"
	}
}

func lockFor(a Axis) Lock {
	if a == Vertical {
		return VerticalLock
	}
	return HorizontalLock
}

// Buttons is the per-frame controller button mask. Stick and d-pad
// directions are folded together by the input layer.
type Buttons uint32

const (
	ButtonUp Buttons = 1 << iota
	ButtonDown
	ButtonLeft
	ButtonRight
)

// HorizontalButtons and VerticalButtons select the buttons each axis uses.
const (
	HorizontalButtons = ButtonLeft | ButtonRight
	VerticalButtons   = ButtonUp | ButtonDown
)

// Config holds the kinematic constants.
type Config struct {
	// TouchSensitivity converts touch units to position units.
	TouchSensitivity float64
	// Damping is the fraction of velocity left after one second.
	Damping float64
	// VelocitySmoothing weights the previous velocity while dragging.
	VelocitySmoothing float64
	// RestVelocity is the speed below which motion stops.
	RestVelocity         float64
	ControllerImpulse    float64
	ControllerRepeatTime float64
	// WrapAroundOffset is how far past a bound the position must be held
	// to start the wrap timer.
	WrapAroundOffset   float64
	WrapAroundHoldTime float64
	SnapToInteger      bool
}

func DefaultConfig() Config {
	return Config{
		TouchSensitivity:     0.02,
		Damping:              0.02,
		VelocitySmoothing:    0.5,
		RestVelocity:         0.01,
		ControllerImpulse:    5.5,
		ControllerRepeatTime: 0.5,
		WrapAroundOffset:     0.5,
		WrapAroundHoldTime:   1.0,
		SnapToInteger:        true,
	}
}

func ConfigFromTuning(c *config.TuningConfig) Config {
	return Config{
		TouchSensitivity:     c.GetTouchSensitivity(),
		Damping:              c.GetScrollDamping(),
		VelocitySmoothing:    c.GetVelocitySmoothing(),
		RestVelocity:         c.GetRestVelocity(),
		ControllerImpulse:    c.GetControllerImpulse(),
		ControllerRepeatTime: c.GetControllerRepeatTime(),
		WrapAroundOffset:     c.GetWrapAroundOffset(),
		WrapAroundHoldTime:   c.GetWrapAroundHoldTime(),
		SnapToInteger:        c.GetSnapToInteger(),
	}
}

// snapEpsilon is how close to its rest target the position must come
// before it is set exactly.
const snapEpsilon = 1e-4

// Manager is the scroll state of one axis.
type Manager struct {
	axis Axis
	cfg  Config

	position    float64
	velocity    float64
	maxPosition float64
	padding     float64
	wrap        bool

	touchDown  bool
	lastTouch  float64 // touch offset along the axis at the previous event
	touchAccum float64 // position change from touch since the last frame
	clamped    bool    // a drag hit the bound since the last frame

	ctrlDir    float64
	ctrlRepeat float64

	wrapArmed bool
	wrapDwell float64

	restricted bool
	touchLock  Lock
	ctrlLock   Lock
}

// NewManager creates a manager for axis at position 0 with no extent.
func NewManager(axis Axis, cfg Config) *Manager {
	return &Manager{axis: axis, cfg: cfg}
}

func (m *Manager) Axis() Axis { return m.axis }

// TouchDown starts a drag. Calling it again while down restarts the drag
// from the current touch point.
func (m *Manager) TouchDown() {
	m.touchDown = true
	m.lastTouch = 0
	m.touchAccum = 0
	m.clamped = false
	m.velocity = 0
}

// TouchUp ends a drag; the smoothed drag velocity carries on as momentum.
func (m *Manager) TouchUp() {
	if !m.touchDown {
		return
	}
	m.touchDown = false
	m.touchAccum = 0
	m.clamped = false
}

// cancelTouch ends a drag without momentum. Used when another axis claims
// the gesture.
func (m *Manager) cancelTouch() {
	m.touchDown = false
	m.touchAccum = 0
	m.clamped = false
	m.velocity = 0
}

// TouchRelative reports the touch position relative to where it went
// down. Only the component along the manager's axis is used.
func (m *Manager) TouchRelative(offset r2.Vec) {
	if !m.touchDown {
		return
	}
	along := offset.X
	if m.axis == Vertical {
		along = offset.Y
	}
	delta := (along - m.lastTouch) * m.cfg.TouchSensitivity
	m.lastTouch = along
	if m.maxPosition <= 0 {
		return
	}
	before := m.position
	want := m.position + delta
	m.position = m.clampDrag(want)
	m.touchAccum += m.position - before
	if m.position != want && !m.wrap {
		m.velocity = 0
		m.clamped = true
	}
}

func (m *Manager) clampDrag(p float64) float64 {
	limit := m.padding
	if m.wrap {
		limit = math.Max(m.cfg.WrapAroundOffset, m.padding)
	}
	return clamp(p, -limit, m.maxPosition+limit)
}

// Frame advances the model by dt seconds with the given controller state.
func (m *Manager) Frame(dt float64, buttons Buttons) {
	if m.maxPosition <= 0 {
		m.position, m.velocity = 0, 0
		m.touchAccum = 0
		return
	}
	if dt <= 0 {
		return
	}

	if m.restricted {
		own := lockFor(m.axis)
		if m.touchLock != NoLock && m.touchLock != own {
			// The gesture belongs to the other axis.
			m.cancelTouch()
			return
		}
		if m.ctrlLock != own {
			buttons = 0
		}
	}

	if m.touchDown {
		if m.clamped {
			m.velocity = 0
		} else {
			instant := m.touchAccum / dt
			s := m.cfg.VelocitySmoothing
			m.velocity = s*m.velocity + (1-s)*instant
		}
		m.touchAccum = 0
		m.clamped = false
	} else {
		m.controller(dt, buttons)
		m.coast(dt)
	}
	m.updateWrap(dt)
}

func (m *Manager) controller(dt float64, buttons Buttons) {
	dir := 0.0
	switch m.axis {
	case Horizontal:
		if buttons&ButtonRight != 0 {
			dir++
		}
		if buttons&ButtonLeft != 0 {
			dir--
		}
	case Vertical:
		if buttons&ButtonDown != 0 {
			dir++
		}
		if buttons&ButtonUp != 0 {
			dir--
		}
	}
	switch {
	case dir == 0:
		m.ctrlDir = 0
	case dir != m.ctrlDir:
		m.ctrlDir = dir
		m.ctrlRepeat = m.cfg.ControllerRepeatTime
		m.velocity = dir * m.cfg.ControllerImpulse
	default:
		m.ctrlRepeat -= dt
		if m.ctrlRepeat <= 0 {
			m.ctrlRepeat = m.cfg.ControllerRepeatTime
			m.velocity = dir * m.cfg.ControllerImpulse
		}
	}
}

func (m *Manager) coast(dt float64) {
	if m.IsOutOfBounds() {
		// Released past a bound: spring back.
		m.velocity = 0
		m.settle(dt, clamp(m.position, 0, m.maxPosition))
		return
	}
	if m.velocity != 0 {
		m.position += m.velocity * dt
		m.velocity *= math.Pow(m.cfg.Damping, dt)
		if math.Abs(m.velocity) < m.cfg.RestVelocity {
			m.velocity = 0
		}
		if m.position < 0 || m.position > m.maxPosition {
			m.position = clamp(m.position, 0, m.maxPosition)
			m.velocity = 0
		}
		return
	}
	if m.cfg.SnapToInteger {
		m.settle(dt, clamp(math.Round(m.position), 0, m.maxPosition))
	}
}

// settle moves the position toward target at the damping rate.
func (m *Manager) settle(dt, target float64) {
	m.position += (target - m.position) * (1 - math.Pow(m.cfg.Damping, dt))
	if math.Abs(target-m.position) < snapEpsilon {
		m.position = target
	}
}

func (m *Manager) updateWrap(dt float64) {
	if !m.wrap || !m.touchDown {
		m.wrapArmed, m.wrapDwell = false, 0
		return
	}
	if m.outOfBoundsBy() < m.cfg.WrapAroundOffset {
		m.wrapArmed, m.wrapDwell = false, 0
		return
	}
	if !m.wrapArmed {
		m.wrapArmed, m.wrapDwell = true, 0
		return
	}
	m.wrapDwell += dt
	if m.wrapDwell >= m.cfg.WrapAroundHoldTime {
		n := m.maxPosition
		m.position = m.position - n*math.Floor(m.position/n)
		m.velocity = 0
		m.wrapArmed, m.wrapDwell = false, 0
	}
}

func (m *Manager) outOfBoundsBy() float64 {
	switch {
	case m.position < 0:
		return -m.position
	case m.position > m.maxPosition:
		return m.position - m.maxPosition
	}
	return 0
}

// Position is the scroll position in items; 0 is the first item.
func (m *Manager) Position() float64 { return m.position }

// Velocity is in items per second.
func (m *Manager) Velocity() float64 { return m.velocity }

func (m *Manager) MaxPosition() float64 { return m.maxPosition }

// IsScrolling reports whether the position is still changing or held.
func (m *Manager) IsScrolling() bool {
	if m.touchDown || m.velocity != 0 {
		return true
	}
	if m.IsOutOfBounds() {
		return true
	}
	return m.cfg.SnapToInteger && m.position != math.Round(m.position)
}

func (m *Manager) IsOutOfBounds() bool {
	return m.position < 0 || m.position > m.maxPosition
}

func (m *Manager) IsTouchDown() bool { return m.touchDown }

// Fraction is the position as a share of the extent, for scrollbars. It is
// 0 when there is nothing to scroll.
func (m *Manager) Fraction() float64 {
	if m.maxPosition <= 0 {
		return 0
	}
	return clamp(m.position/m.maxPosition, 0, 1)
}

// ScrollbarVisible reports whether there is anything to scroll.
func (m *Manager) ScrollbarVisible() bool { return m.maxPosition > 0 }

func (m *Manager) IsWrapAroundEnabled() bool       { return m.wrap }
func (m *Manager) WrapAroundScrollOffset() float64 { return m.cfg.WrapAroundOffset }
func (m *Manager) WrapAroundHoldTime() float64     { return m.cfg.WrapAroundHoldTime }

// IsWrapAroundTimeInitiated reports whether the hold timer is running.
func (m *Manager) IsWrapAroundTimeInitiated() bool { return m.wrapArmed }

// RemainingTimeForWrapAround is the hold time left before wrapping, or -1
// when the timer is not running.
func (m *Manager) RemainingTimeForWrapAround() float64 {
	if !m.wrapArmed {
		return -1
	}
	return math.Max(0, m.cfg.WrapAroundHoldTime-m.wrapDwell)
}

// SetMaxPosition sets the extent. A non-positive max pins the position to 0.
func (m *Manager) SetMaxPosition(max float64) {
	if max <= 0 {
		m.maxPosition, m.position, m.velocity = 0, 0, 0
		return
	}
	m.maxPosition = max
}

func (m *Manager) SetPosition(p float64) {
	if m.maxPosition <= 0 {
		m.position = 0
		return
	}
	m.position = p
}

func (m *Manager) SetVelocity(v float64) { m.velocity = v }

func (m *Manager) SetWrapAroundEnable(enabled bool) { m.wrap = enabled }

// SetScrollPadding lets a drag pull the position up to padding past either
// bound; it springs back on release.
func (m *Manager) SetScrollPadding(padding float64) { m.padding = math.Max(0, padding) }

// SetRestrictedScrolling applies a parent's direction locks. While
// restricted, a touch locked to the other axis is released and controller
// input is ignored unless the controller lock names this axis.
func (m *Manager) SetRestrictedScrolling(restricted bool, touchLock, ctrlLock Lock) {
	m.restricted = restricted
	m.touchLock = touchLock
	m.ctrlLock = ctrlLock
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
