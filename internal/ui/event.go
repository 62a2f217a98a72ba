package ui

import (
	"context"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/scroll"
)

// Event is one input event for the Dispatcher.
type Event interface{ isEvent() }

type FrameEvent struct {
	DT      float64
	Buttons scroll.Buttons
}

type TouchDownEvent struct{}

type TouchUpEvent struct{}

type TouchRelativeEvent struct{ Offset r2.Vec }

func (FrameEvent) isEvent()         {}
func (TouchDownEvent) isEvent()     {}
func (TouchUpEvent) isEvent()       {}
func (TouchRelativeEvent) isEvent() {}

// Run dispatches events until ctx is done or events is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Dispatch(ev)
		}
	}
}
