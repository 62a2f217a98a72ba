package devicestate

import (
	"sync"
	"time"

	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

// PowerLevel is the platform-reported thermal power level.
type PowerLevel int

const (
	PowerNormal    PowerLevel = iota // full clocks
	PowerSave                        // clocks reduced
	PowerMinimum                     // cannot continue
)

func (l PowerLevel) String() string {
	switch l {
	case PowerNormal:
		return "normal"
	case PowerSave:
		return "powersave"
	case PowerMinimum:
		return "minimum"
	}
	return "unknown"
}

// PowerAction is what the policy is waiting for before it can reset.
type PowerAction int

const (
	ActionNone PowerAction = iota
	ActionWaitingForUnmount
	ActionWaitingForUndock
	ActionWaitingForReset
)

func (a PowerAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionWaitingForUnmount:
		return "waiting-for-unmount"
	case ActionWaitingForUndock:
		return "waiting-for-undock"
	case ActionWaitingForReset:
		return "waiting-for-reset"
	}
	return "unknown"
}

// PowerLevelReader reports the current platform power level. The source is
// vendor specific and lives outside this package.
type PowerLevelReader interface {
	PowerLevel() PowerLevel
}

// PowerLevelFunc adapts a function to PowerLevelReader.
type PowerLevelFunc func() PowerLevel

func (f PowerLevelFunc) PowerLevel() PowerLevel { return f() }

// PowerPolicyConfig configures a PowerPolicy.
type PowerPolicyConfig struct {
	// AllowPowerSave lets the application keep running at half rate in
	// power save. When false, power save is treated like minimum.
	AllowPowerSave bool
	CheckInterval  time.Duration
	MountDelay     time.Duration
}

// DefaultPowerPolicyConfig returns the standard policy timings.
func DefaultPowerPolicyConfig() PowerPolicyConfig {
	return PowerPolicyConfig{
		AllowPowerSave: true,
		CheckInterval:  time.Second,
		MountDelay:     5 * time.Second,
	}
}

// PowerPolicy turns power level reports into the Throttled and Minimum
// flags on State.
//
// Once throttled, the device stays throttled even after the level returns to
// normal, because it would quickly heat up again at full rate. Throttling is
// only lifted after the headset has been taken off (unmount) and the level
// has since reported normal.
type PowerPolicy struct {
	mu        sync.Mutex
	cfg       PowerPolicyConfig
	state     *State
	reader    PowerLevelReader
	clock     timeutil.Clock
	action    PowerAction
	lastCheck time.Time
	resumeAt  time.Time
	skip      bool
	logf      func(format string, v ...interface{})
}

// NewPowerPolicy creates a policy writing into state. A nil clock uses the
// real clock.
func NewPowerPolicy(cfg PowerPolicyConfig, state *State, reader PowerLevelReader, clock timeutil.Clock) *PowerPolicy {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	return &PowerPolicy{
		cfg:    cfg,
		state:  state,
		reader: reader,
		clock:  clock,
		logf:   monitoring.Component("power"),
	}
}

// Action returns the current pending action.
func (p *PowerPolicy) Action() PowerAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.action
}

// Update is called once per frame. It evaluates the power level at most once
// per check interval, and not at all while unmounted or within the mount
// delay.
func (p *PowerPolicy) Update() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if p.skip || now.Before(p.resumeAt) {
		return
	}
	if !p.lastCheck.IsZero() && now.Sub(p.lastCheck) < p.cfg.CheckInterval {
		return
	}
	p.lastCheck = now

	level := PowerNormal
	if p.reader != nil {
		level = p.reader.PowerLevel()
	}
	p.apply(level)
}

func (p *PowerPolicy) apply(level PowerLevel) {
	throttled := p.state.Throttled.Get()

	switch level {
	case PowerNormal:
		if p.action == ActionWaitingForReset {
			p.logf("reset from power save")
			p.state.Throttled.Store(false)
			p.action = ActionNone
		}
	case PowerSave:
		if throttled {
			return
		}
		if p.cfg.AllowPowerSave {
			p.logf("power save: forcing half rate")
			p.state.Throttled.Store(true)
			p.action = ActionWaitingForUnmount
			return
		}
		p.enterMinimum()
	case PowerMinimum:
		p.enterMinimum()
	}
}

func (p *PowerPolicy) enterMinimum() {
	if p.action == ActionWaitingForUndock {
		return
	}
	p.logf("minimum power level: cannot continue")
	p.state.Throttled.Store(true)
	p.state.Minimum.Store(true)
	p.action = ActionWaitingForUndock
}

// OnMount records the headset being put on. Power checks resume after the
// mount delay.
func (p *PowerPolicy) OnMount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Mounted.Store(true)
	p.skip = false
	p.resumeAt = p.clock.Now().Add(p.cfg.MountDelay)
}

// OnUnmount records the headset being taken off. Power checks are suspended
// until the next mount.
func (p *PowerPolicy) OnUnmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Mounted.Store(false)
	p.skip = true
	if p.action == ActionWaitingForUnmount {
		p.action = ActionWaitingForReset
	}
}

// OnDock records the phone being docked into the headset.
func (p *PowerPolicy) OnDock() {
	p.state.Docked.Store(true)
}

// OnUndock records the phone leaving the headset. A device stuck at minimum
// becomes eligible for reset.
func (p *PowerPolicy) OnUndock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Docked.Store(false)
	if p.action == ActionWaitingForUndock {
		p.state.Minimum.Store(false)
		p.action = ActionWaitingForReset
	}
}
