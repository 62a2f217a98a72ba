package ui

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/scroll"
)

// ScrollWidget drives a horizontal and/or vertical scroll.Manager from the
// dispatcher. Either manager may be nil.
type ScrollWidget struct {
	Horizontal *scroll.Manager
	Vertical   *scroll.Manager

	arbiter *scroll.Arbiter
	hints   *scroll.Hints
	// OnScroll, if set, is called after each frame with the positions of
	// whichever managers are present.
	OnScroll func(horizontal, vertical float64)
}

func NewScrollWidget(cfg scroll.ArbiterConfig, hintToggle float64, horizontal, vertical *scroll.Manager) *ScrollWidget {
	return &ScrollWidget{
		Horizontal: horizontal,
		Vertical:   vertical,
		arbiter:    scroll.NewArbiter(cfg, horizontal, vertical),
		hints:      scroll.NewHints(hintToggle),
	}
}

func (w *ScrollWidget) Arbiter() *scroll.Arbiter { return w.arbiter }

// Hints tracks idleness of the primary manager, the vertical one if any.
func (w *ScrollWidget) Hints() *scroll.Hints { return w.hints }

func (w *ScrollWidget) primary() *scroll.Manager {
	if w.Vertical != nil {
		return w.Vertical
	}
	return w.Horizontal
}

func (w *ScrollWidget) OnFrame(in FrameInput) {
	w.arbiter.Frame(in.DT, in.Buttons)
	if in.Buttons != 0 {
		w.hints.Interacted()
	}
	if p := w.primary(); p != nil {
		w.hints.Frame(in.DT, p)
	}
	if w.OnScroll != nil {
		var h, v float64
		if w.Horizontal != nil {
			h = w.Horizontal.Position()
		}
		if w.Vertical != nil {
			v = w.Vertical.Position()
		}
		w.OnScroll(h, v)
	}
}

func (w *ScrollWidget) OnTouchDown() Status {
	w.arbiter.TouchDown()
	w.hints.Interacted()
	return Consumed
}

func (w *ScrollWidget) OnTouchUp() Status {
	w.arbiter.TouchUp()
	return Consumed
}

func (w *ScrollWidget) OnTouchRelative(offset r2.Vec) Status {
	w.arbiter.TouchRelative(offset)
	return Consumed
}
