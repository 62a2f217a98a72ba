package scroll

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/monitoring"
)

var logf = monitoring.Component("scroll")

// ArbiterConfig holds the direction-lock thresholds.
type ArbiterConfig struct {
	// DecidingDistance is the touch displacement, in touch units, after
	// which a gesture is locked to one axis.
	DecidingDistance float64
	// ControllerCoolDown is how long, in seconds, the controller lock
	// outlives the last directional press.
	ControllerCoolDown float64
}

func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{DecidingDistance: 10, ControllerCoolDown: 0.2}
}

func ArbiterConfigFromTuning(c *config.TuningConfig) ArbiterConfig {
	return ArbiterConfig{
		DecidingDistance:   c.GetDirectionDecidingDistance(),
		ControllerCoolDown: c.GetControllerCoolDown(),
	}
}

// Arbiter shares one touch stream and one controller between a horizontal
// and a vertical Manager. Either manager may be nil.
type Arbiter struct {
	cfg        ArbiterConfig
	horizontal *Manager
	vertical   *Manager

	touchLock Lock
	ctrlLock  Lock
	ctrlIdle  float64
}

func NewArbiter(cfg ArbiterConfig, horizontal, vertical *Manager) *Arbiter {
	return &Arbiter{cfg: cfg, horizontal: horizontal, vertical: vertical}
}

func (a *Arbiter) TouchLock() Lock      { return a.touchLock }
func (a *Arbiter) ControllerLock() Lock { return a.ctrlLock }

func (a *Arbiter) each(fn func(*Manager)) {
	if a.horizontal != nil {
		fn(a.horizontal)
	}
	if a.vertical != nil {
		fn(a.vertical)
	}
}

func (a *Arbiter) TouchDown() {
	a.touchLock = NoLock
	a.each((*Manager).TouchDown)
}

func (a *Arbiter) TouchUp() {
	a.touchLock = NoLock
	a.each((*Manager).TouchUp)
}

// TouchRelative forwards the displacement from the touch-down point. Until
// one axis has moved DecidingDistance both managers follow it; after that
// only the winner does and the loser stops where it is.
func (a *Arbiter) TouchRelative(offset r2.Vec) {
	if a.touchLock == NoLock {
		dx, dy := math.Abs(offset.X), math.Abs(offset.Y)
		if dx >= a.cfg.DecidingDistance || dy >= a.cfg.DecidingDistance {
			if dx >= dy {
				a.touchLock = HorizontalLock
			} else {
				a.touchLock = VerticalLock
			}
			logf("touch locked %s", a.touchLock)
			if loser := a.manager(a.touchLock, false); loser != nil {
				loser.cancelTouch()
			}
		}
	}
	switch a.touchLock {
	case NoLock:
		a.each(func(m *Manager) { m.TouchRelative(offset) })
	default:
		if winner := a.manager(a.touchLock, true); winner != nil {
			winner.TouchRelative(offset)
		}
	}
}

func (a *Arbiter) manager(l Lock, owner bool) *Manager {
	if (l == HorizontalLock) == owner {
		return a.horizontal
	}
	return a.vertical
}

// Frame updates the controller lock and advances both managers.
func (a *Arbiter) Frame(dt float64, buttons Buttons) {
	a.updateControllerLock(dt, buttons)
	restricted := a.horizontal != nil && a.vertical != nil
	a.each(func(m *Manager) {
		m.SetRestrictedScrolling(restricted, a.touchLock, a.ctrlLock)
		m.Frame(dt, buttons)
	})
}

func (a *Arbiter) updateControllerLock(dt float64, buttons Buttons) {
	a.ctrlIdle += dt
	if buttons&(HorizontalButtons|VerticalButtons) == 0 {
		if a.ctrlIdle > a.cfg.ControllerCoolDown {
			a.ctrlLock = NoLock
		}
		return
	}
	if buttons&HorizontalButtons != 0 && a.ctrlLock != VerticalLock {
		a.ctrlLock = HorizontalLock
		a.ctrlIdle = 0
	}
	if buttons&VerticalButtons != 0 && a.ctrlLock != HorizontalLock {
		a.ctrlLock = VerticalLock
		a.ctrlIdle = 0
	}
}
