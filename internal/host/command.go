// Package host connects the runtime to the host platform. Platform events
// arrive as JSON objects naming a Command and are decoded into typed
// commands that a single goroutine executes.
package host

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/vrcore/internal/devicestate"
)

// Command names on the wire.
const (
	NameReorient         = "reorient"
	NameReturnToLauncher = "returnToLauncher"
	NameMount            = "mount"
	NameUnmount          = "unmount"
	NameDock             = "dock"
	NameUndock           = "undock"
	NamePower            = "power"
	NameVolume           = "volume"
	NameBattery          = "battery"
	NameHeadset          = "headset"
	NameWifi             = "wifi"
	NameCellular         = "cellular"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingField   = errors.New("missing field")
)

// Command is one decoded host event.
type Command interface {
	Name() string
}

type (
	Reorient struct{}
	// ReturnToLauncher is passed through to the application.
	ReturnToLauncher struct{ PlatformUIVersion int }
	Mount            struct{}
	Unmount          struct{}
	Dock             struct{}
	Undock           struct{}
	SetPowerLevel    struct{ Level devicestate.PowerLevel }
	SetVolume        struct{ Volume int }
	SetBattery       struct{ Battery devicestate.BatteryState }
	SetHeadset       struct{ Plugged bool }
	SetWifi          struct{ Signal devicestate.SignalState }
	SetCellular      struct{ Signal devicestate.SignalState }
)

func (Reorient) Name() string         { return NameReorient }
func (ReturnToLauncher) Name() string { return NameReturnToLauncher }
func (Mount) Name() string            { return NameMount }
func (Unmount) Name() string          { return NameUnmount }
func (Dock) Name() string             { return NameDock }
func (Undock) Name() string           { return NameUndock }
func (SetPowerLevel) Name() string    { return NamePower }
func (SetVolume) Name() string        { return NameVolume }
func (SetBattery) Name() string       { return NameBattery }
func (SetHeadset) Name() string       { return NameHeadset }
func (SetWifi) Name() string          { return NameWifi }
func (SetCellular) Name() string      { return NameCellular }

// wireEvent is the JSON shape of a host event. Only the fields the named
// command needs are set.
type wireEvent struct {
	Command           string                    `json:"Command"`
	PlatformUIVersion int                       `json:"PlatformUIVersion,omitempty"`
	Level             *int                      `json:"Level,omitempty"`
	Plugged           *bool                     `json:"Plugged,omitempty"`
	Battery           *devicestate.BatteryState `json:"Battery,omitempty"`
	Signal            *devicestate.SignalState  `json:"Signal,omitempty"`
}

// ParseEvent decodes one JSON host event.
func ParseEvent(data []byte) (Command, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse host event: %w", err)
	}
	need := func(ok bool, field string) error {
		if !ok {
			return fmt.Errorf("%s: %w %s", w.Command, ErrMissingField, field)
		}
		return nil
	}

	switch w.Command {
	case NameReorient:
		return Reorient{}, nil
	case NameReturnToLauncher:
		return ReturnToLauncher{PlatformUIVersion: w.PlatformUIVersion}, nil
	case NameMount:
		return Mount{}, nil
	case NameUnmount:
		return Unmount{}, nil
	case NameDock:
		return Dock{}, nil
	case NameUndock:
		return Undock{}, nil
	case NamePower:
		if err := need(w.Level != nil, "Level"); err != nil {
			return nil, err
		}
		lvl := devicestate.PowerLevel(*w.Level)
		if lvl < devicestate.PowerNormal || lvl > devicestate.PowerMinimum {
			return nil, fmt.Errorf("power: level %d out of range", *w.Level)
		}
		return SetPowerLevel{Level: lvl}, nil
	case NameVolume:
		if err := need(w.Level != nil, "Level"); err != nil {
			return nil, err
		}
		return SetVolume{Volume: *w.Level}, nil
	case NameBattery:
		if err := need(w.Battery != nil, "Battery"); err != nil {
			return nil, err
		}
		return SetBattery{Battery: *w.Battery}, nil
	case NameHeadset:
		if err := need(w.Plugged != nil, "Plugged"); err != nil {
			return nil, err
		}
		return SetHeadset{Plugged: *w.Plugged}, nil
	case NameWifi, NameCellular:
		if err := need(w.Signal != nil, "Signal"); err != nil {
			return nil, err
		}
		if w.Command == NameWifi {
			return SetWifi{Signal: *w.Signal}, nil
		}
		return SetCellular{Signal: *w.Signal}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownCommand, w.Command)
}

// EncodeEvent is the inverse of ParseEvent.
func EncodeEvent(c Command) ([]byte, error) {
	w := wireEvent{Command: c.Name()}
	switch c := c.(type) {
	case ReturnToLauncher:
		w.PlatformUIVersion = c.PlatformUIVersion
	case SetPowerLevel:
		lvl := int(c.Level)
		w.Level = &lvl
	case SetVolume:
		w.Level = &c.Volume
	case SetBattery:
		w.Battery = &c.Battery
	case SetHeadset:
		w.Plugged = &c.Plugged
	case SetWifi:
		w.Signal = &c.Signal
	case SetCellular:
		w.Signal = &c.Signal
	}
	return json.Marshal(w)
}
