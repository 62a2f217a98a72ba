package ui

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/monitoring"
)

var logf = monitoring.Component("ui")

// Dispatcher owns the widget arena and delivers events to widgets in
// registration order. Touch events stop at the first widget that
// consumes them; a focused widget sees touch events before anyone else.
type Dispatcher struct {
	widgets *Arena[any]
	focus   Handle
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{widgets: NewArena[any]()}
}

// Add registers w. It must implement at least one handler interface.
func (d *Dispatcher) Add(w any) Handle {
	switch w.(type) {
	case FrameHandler, TouchDownHandler, TouchUpHandler, TouchRelativeHandler:
	default:
		logf("widget %T handles no events", w)
	}
	return d.widgets.Alloc(w)
}

// Remove unregisters h. Stale handles are ignored.
func (d *Dispatcher) Remove(h Handle) bool {
	if d.focus == h {
		d.focus = Handle{}
	}
	return d.widgets.Free(h)
}

// Widget returns the widget behind h.
func (d *Dispatcher) Widget(h Handle) (any, bool) { return d.widgets.Get(h) }

func (d *Dispatcher) Len() int { return d.widgets.Len() }

// SetFocus routes touch events to h first. The zero Handle clears focus.
func (d *Dispatcher) SetFocus(h Handle) { d.focus = h }

func (d *Dispatcher) Dispatch(ev Event) {
	switch e := ev.(type) {
	case FrameEvent:
		d.Frame(FrameInput{DT: e.DT, Buttons: e.Buttons})
	case TouchDownEvent:
		d.TouchDown()
	case TouchUpEvent:
		d.TouchUp()
	case TouchRelativeEvent:
		d.TouchRelative(e.Offset)
	}
}

func (d *Dispatcher) Frame(in FrameInput) {
	d.widgets.Each(func(_ Handle, w any) bool {
		if f, ok := w.(FrameHandler); ok {
			f.OnFrame(in)
		}
		return true
	})
}

func (d *Dispatcher) TouchDown() {
	d.touch(func(w any) Status {
		if t, ok := w.(TouchDownHandler); ok {
			return t.OnTouchDown()
		}
		return Alive
	})
}

func (d *Dispatcher) TouchUp() {
	d.touch(func(w any) Status {
		if t, ok := w.(TouchUpHandler); ok {
			return t.OnTouchUp()
		}
		return Alive
	})
}

func (d *Dispatcher) TouchRelative(offset r2.Vec) {
	d.touch(func(w any) Status {
		if t, ok := w.(TouchRelativeHandler); ok {
			return t.OnTouchRelative(offset)
		}
		return Alive
	})
}

func (d *Dispatcher) touch(deliver func(any) Status) {
	if w, ok := d.widgets.Get(d.focus); ok {
		if deliver(w) == Consumed {
			return
		}
	}
	d.widgets.Each(func(h Handle, w any) bool {
		if h == d.focus {
			return true
		}
		return deliver(w) != Consumed
	})
}
