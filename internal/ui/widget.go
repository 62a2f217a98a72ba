// Package ui routes per-frame and touch input to widgets. Widgets opt in
// to events by implementing the handler interfaces they need.
package ui

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/scroll"
)

// Status tells the dispatcher whether a touch event should reach the
// widgets behind the one that handled it.
type Status int

const (
	Alive Status = iota
	Consumed
)

// FrameInput is delivered to every FrameHandler once per frame.
type FrameInput struct {
	DT      float64
	Buttons scroll.Buttons
}

type FrameHandler interface {
	OnFrame(in FrameInput)
}

type TouchDownHandler interface {
	OnTouchDown() Status
}

type TouchUpHandler interface {
	OnTouchUp() Status
}

// TouchRelativeHandler receives the touch position relative to where it
// went down.
type TouchRelativeHandler interface {
	OnTouchRelative(offset r2.Vec) Status
}
