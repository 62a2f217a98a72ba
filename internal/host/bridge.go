package host

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/vrcore/internal/devicestate"
	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

var logf = monitoring.Component("host")

// Recenterer resets the tracking yaw reference.
type Recenterer interface {
	Recenter()
}

const (
	defaultQueueSize    = 64
	defaultPollInterval = 100 * time.Millisecond
)

// Bridge queues host commands from any goroutine and executes them on the
// goroutine running Run. Reorient and ReturnToLauncher are also forwarded
// to Events so the application can react.
type Bridge struct {
	State   *devicestate.State
	Tracker Recenterer
	Policy  *devicestate.PowerPolicy

	// PollInterval is how often Run calls Policy.Update.
	PollInterval time.Duration

	clock    timeutil.Clock
	level    latest.Value[devicestate.PowerLevel]
	commands chan Command
	events   chan Command
	dropped  atomic.Int64
	handled  atomic.Int64
}

// NewBridge creates a bridge over state. tracker may be nil.
func NewBridge(state *devicestate.State, tracker Recenterer, clock timeutil.Clock) *Bridge {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Bridge{
		State:        state,
		Tracker:      tracker,
		PollInterval: defaultPollInterval,
		clock:        clock,
		commands:     make(chan Command, defaultQueueSize),
		events:       make(chan Command, defaultQueueSize),
	}
}

// PowerLevel returns the last level reported by the host, so a Bridge can
// serve as the policy's PowerLevelReader.
func (b *Bridge) PowerLevel() devicestate.PowerLevel { return b.level.Get() }

// Send queues c without blocking. It returns false, and counts a drop, if
// the queue is full.
func (b *Bridge) Send(c Command) bool {
	select {
	case b.commands <- c:
		return true
	default:
		b.dropped.Add(1)
		logf("command queue full, dropping %s", c.Name())
		return false
	}
}

// Post decodes a JSON host event and queues it.
func (b *Bridge) Post(data []byte) error {
	c, err := ParseEvent(data)
	if err != nil {
		logf("%v", err)
		return err
	}
	b.Send(c)
	return nil
}

// Events delivers commands the application should also see.
func (b *Bridge) Events() <-chan Command { return b.events }

func (b *Bridge) Dropped() int64 { return b.dropped.Load() }
func (b *Bridge) Handled() int64 { return b.handled.Load() }

// Run executes queued commands until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if b.Policy != nil && b.PollInterval > 0 {
		t := b.clock.NewTicker(b.PollInterval)
		defer t.Stop()
		tick = t.C()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-b.commands:
			b.Execute(c)
		case <-tick:
			b.Policy.Update()
		}
	}
}

// Execute applies c immediately on the calling goroutine.
func (b *Bridge) Execute(c Command) {
	b.handled.Add(1)
	switch c := c.(type) {
	case Reorient:
		b.recenter()
		b.forward(c)
	case ReturnToLauncher:
		b.forward(c)
	case Mount:
		if b.State.Mounted.Get() {
			logf("already mounted")
			return
		}
		if b.Policy != nil {
			b.Policy.OnMount()
		} else {
			b.State.Mounted.Store(true)
		}
		// Putting the headset on recenters the view.
		b.recenter()
		b.forward(Reorient{})
	case Unmount:
		if b.Policy != nil {
			b.Policy.OnUnmount()
		} else {
			b.State.Mounted.Store(false)
		}
	case Dock:
		if b.Policy != nil {
			b.Policy.OnDock()
		} else {
			b.State.Docked.Store(true)
		}
	case Undock:
		if b.Policy != nil {
			b.Policy.OnUndock()
		} else {
			b.State.Docked.Store(false)
		}
	case SetPowerLevel:
		b.level.Store(c.Level)
	case SetVolume:
		b.State.Volume.Store(c.Volume)
	case SetBattery:
		b.State.Battery.Store(c.Battery)
	case SetHeadset:
		b.State.HeadsetPlugged.Store(c.Plugged)
	case SetWifi:
		b.State.Wifi.Store(c.Signal)
	case SetCellular:
		b.State.Cellular.Store(c.Signal)
	default:
		logf("unhandled command %T", c)
	}
}

func (b *Bridge) recenter() {
	if b.Tracker != nil {
		b.Tracker.Recenter()
	}
}

func (b *Bridge) forward(c Command) {
	select {
	case b.events <- c:
	default:
		logf("event queue full, dropping %s", c.Name())
	}
}
