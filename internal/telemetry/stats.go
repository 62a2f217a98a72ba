// Package telemetry streams per-frame pacing records to gRPC clients.
//
// Messages are google.protobuf.Struct values, so clients need no generated
// code beyond the well-known types.
package telemetry

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/vrcore/internal/tracking"
	"github.com/banshee-data/vrcore/internal/warp"
)

// FrameStats is one warp tick as published to clients.
type FrameStats struct {
	SessionID   string
	Tick        uint64
	FrameID     uint64
	Outcome     string
	Vsync       float64
	DisplayTime float64
	Latency     float64
	Tracked     bool
	Yaw         float64 // radians
}

// FromRecord converts a warp frame record.
func FromRecord(r warp.FrameRecord) FrameStats {
	return FrameStats{
		SessionID:   r.SessionID,
		Tick:        r.Tick,
		FrameID:     r.FrameID,
		Outcome:     r.Outcome,
		Vsync:       r.Vsync,
		DisplayTime: r.DisplayTime,
		Latency:     r.Latency,
		Tracked:     r.Pose.Status&tracking.StatusOrientationTracked != 0,
		Yaw:         tracking.Yaw(r.Pose.Orientation),
	}
}

// ToStruct encodes s. Counters are carried as numbers, which is exact up
// to 2^53.
func (s FrameStats) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id":   structpb.NewStringValue(s.SessionID),
		"tick":         structpb.NewNumberValue(float64(s.Tick)),
		"frame_id":     structpb.NewNumberValue(float64(s.FrameID)),
		"outcome":      structpb.NewStringValue(s.Outcome),
		"vsync":        structpb.NewNumberValue(s.Vsync),
		"display_time": structpb.NewNumberValue(s.DisplayTime),
		"latency":      structpb.NewNumberValue(s.Latency),
		"tracked":      structpb.NewBoolValue(s.Tracked),
		"yaw":          structpb.NewNumberValue(s.Yaw),
	}}
}

// StatsFromStruct decodes a message produced by ToStruct.
func StatsFromStruct(m *structpb.Struct) (FrameStats, error) {
	f := m.GetFields()
	if _, ok := f["tick"]; !ok {
		return FrameStats{}, fmt.Errorf("frame stats: missing tick")
	}
	return FrameStats{
		SessionID:   f["session_id"].GetStringValue(),
		Tick:        uint64(f["tick"].GetNumberValue()),
		FrameID:     uint64(f["frame_id"].GetNumberValue()),
		Outcome:     f["outcome"].GetStringValue(),
		Vsync:       f["vsync"].GetNumberValue(),
		DisplayTime: f["display_time"].GetNumberValue(),
		Latency:     f["latency"].GetNumberValue(),
		Tracked:     f["tracked"].GetBoolValue(),
		Yaw:         f["yaw"].GetNumberValue(),
	}, nil
}
