package scroll

// Hints drives the fade-in arrows shown after the user stops interacting
// with a scroll region, and the wrap-around indicator.
type Hints struct {
	// ToggleTime is the idle time, in seconds, before hints appear.
	ToggleTime float64
	// Margin is how far from a bound the position must be for that
	// bound's arrow to show.
	Margin float64

	idle float64
}

func NewHints(toggleTime float64) *Hints {
	return &Hints{ToggleTime: toggleTime, Margin: 0.8}
}

// Interacted resets the idle timer.
func (h *Hints) Interacted() { h.idle = 0 }

// Frame advances the idle timer. Any scrolling counts as interaction.
func (h *Hints) Frame(dt float64, m *Manager) {
	if m.IsScrolling() {
		h.idle = 0
		return
	}
	h.idle += dt
}

func (h *Hints) Visible() bool { return h.idle > h.ToggleTime }

// Alpha fades the hints in over the second after ToggleTime.
func (h *Hints) Alpha() float64 {
	return clamp(h.idle, h.ToggleTime, h.ToggleTime+1) - h.ToggleTime
}

// Back reports whether the arrow toward position 0 should show.
func (h *Hints) Back(m *Manager) bool {
	return h.Visible() && m.Position() > h.Margin
}

// Forward reports whether the arrow toward the max position should show.
func (h *Hints) Forward(m *Manager) bool {
	return h.Visible() && m.Position() < m.MaxPosition()-h.Margin
}

// popEffect maps the share of the wrap hold completed, in percent, to the
// indicator scale.
var popEffect = [][2]float64{{0, 0}, {70, 3.0}, {80, 0.8}, {100, 1.0}}

// WrapIndicator describes the wrap-around affordance drawn past a bound.
type WrapIndicator struct {
	// Fade is how far past the bound the drag is, as a share of the
	// wrap offset.
	Fade float64
	// Scale pops as the hold timer runs; 0 while it is not running.
	Scale float64
}

func WrapIndicatorFor(m *Manager) WrapIndicator {
	offset := m.WrapAroundScrollOffset()
	if !m.IsWrapAroundEnabled() || offset <= 0 {
		return WrapIndicator{}
	}
	w := WrapIndicator{Fade: clamp(m.outOfBoundsBy(), 0, offset) / offset}
	if m.IsWrapAroundTimeInitiated() && m.WrapAroundHoldTime() > 0 {
		spent := m.WrapAroundHoldTime() - m.RemainingTimeForWrapAround()
		w.Scale = pop(100 * spent / m.WrapAroundHoldTime())
	}
	return w
}

func pop(percent float64) float64 {
	percent = clamp(percent, 0, 100)
	for i := 1; i < len(popEffect); i++ {
		lo, hi := popEffect[i-1], popEffect[i]
		if percent <= hi[0] {
			t := (percent - lo[0]) / (hi[0] - lo[0])
			return lo[1] + t*(hi[1]-lo[1])
		}
	}
	return popEffect[len(popEffect)-1][1]
}
