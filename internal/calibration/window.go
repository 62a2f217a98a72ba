package calibration

import "gonum.org/v1/gonum/spatial/r3"

// window is a fixed-capacity ring of smoothed gyro readings with a running
// sum, so Mean is O(1). Appending to a full window evicts the oldest entry.
type window struct {
	buf   []r3.Vec
	head  int // index of the oldest entry
	count int
	sum   r3.Vec
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{buf: make([]r3.Vec, capacity)}
}

func (w *window) Len() int { return w.count }
func (w *window) Cap() int { return len(w.buf) }
func (w *window) Empty() bool { return w.count == 0 }
func (w *window) Full() bool { return w.count == len(w.buf) }

func (w *window) Clear() {
	w.head, w.count = 0, 0
	w.sum = r3.Vec{}
}

// Back returns the newest entry. It must not be called on an empty window.
func (w *window) Back() r3.Vec {
	return w.buf[(w.head+w.count-1)%len(w.buf)]
}

func (w *window) Mean() r3.Vec {
	if w.count == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/float64(w.count), w.sum)
}

func (w *window) Append(v r3.Vec) {
	if w.Full() {
		w.sum = r3.Sub(w.sum, w.buf[w.head])
		w.buf[w.head] = v
		w.head = (w.head + 1) % len(w.buf)
		if w.head == 0 {
			// Resum once per lap so rounding error in sum stays bounded.
			w.sum = r3.Vec{}
			for _, e := range w.buf {
				w.sum = r3.Add(w.sum, e)
			}
			return
		}
	} else {
		w.buf[(w.head+w.count)%len(w.buf)] = v
		w.count++
	}
	w.sum = r3.Add(w.sum, v)
}
