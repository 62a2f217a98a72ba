// Package devicestate holds the headset's ambient device state and the power
// level policy that decides when frame pacing must drop to half rate.
package devicestate

import "github.com/banshee-data/vrcore/internal/latest"

// BatteryState is a battery status report from the host platform.
type BatteryState struct {
	Level       int     `json:"level"`       // percent
	Temperature float64 `json:"temperature"` // °C
	Charging    bool    `json:"charging"`
}

// SignalState is a radio signal report from the host platform.
type SignalState struct {
	Connected bool `json:"connected"`
	Level     int  `json:"level"` // 0..4
}

// State is the device context shared between the host bridge, the power
// policy, the frame timing clock and the telemetry publisher. Each field is
// an independent latest-wins cell written by a single producer; readers
// never block.
type State struct {
	Volume         latest.Value[int]
	Battery        latest.Value[BatteryState]
	HeadsetPlugged latest.Value[bool]
	Mounted        latest.Value[bool]
	Docked         latest.Value[bool]
	Wifi           latest.Value[SignalState]
	Cellular       latest.Value[SignalState]

	// Throttled forces frame pacing to at least two vsyncs per frame.
	Throttled latest.Value[bool]
	// Minimum means the device cannot continue rendering until reset.
	Minimum latest.Value[bool]
}

// New returns an empty State.
func New() *State {
	return &State{}
}

// IsThrottled reports whether the power policy has throttled the device.
// A nil State is never throttled.
func (s *State) IsThrottled() bool {
	if s == nil {
		return false
	}
	return s.Throttled.Get()
}

// Snapshot is a point-in-time copy of State, used for publishing.
type Snapshot struct {
	Volume         int          `json:"volume"`
	Battery        BatteryState `json:"battery"`
	HeadsetPlugged bool         `json:"headset_plugged"`
	Mounted        bool         `json:"mounted"`
	Docked         bool         `json:"docked"`
	Wifi           SignalState  `json:"wifi"`
	Cellular       SignalState  `json:"cellular"`
	Throttled      bool         `json:"throttled"`
	Minimum        bool         `json:"minimum"`
}

// Snapshot reads every field. Fields are read independently, so a snapshot
// taken during concurrent updates may mix old and new field values.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Volume:         s.Volume.Get(),
		Battery:        s.Battery.Get(),
		HeadsetPlugged: s.HeadsetPlugged.Get(),
		Mounted:        s.Mounted.Get(),
		Docked:         s.Docked.Get(),
		Wifi:           s.Wifi.Get(),
		Cellular:       s.Cellular.Get(),
		Throttled:      s.Throttled.Get(),
		Minimum:        s.Minimum.Get(),
	}
}
