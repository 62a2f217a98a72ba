package ui

import "fmt"

// Handle refers to an Arena entry. A handle outlives its entry safely:
// once the slot is freed or reused, lookups through the old handle fail.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was ever issued. The zero Handle is never valid.
func (h Handle) Valid() bool { return h.gen != 0 }

func (h Handle) String() string { return fmt.Sprintf("%d/%d", h.index, h.gen) }

type slot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Arena stores values behind generation-checked handles. It is not safe
// for concurrent use; the UI goroutine owns it.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func NewArena[T any]() *Arena[T] { return &Arena[T]{} }

// Alloc stores v and returns its handle.
func (a *Arena[T]) Alloc(v T) Handle {
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		i = uint32(len(a.slots) - 1)
	}
	s := &a.slots[i]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.value = v
	a.live++
	return Handle{index: i, gen: s.gen}
}

func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if !h.Valid() || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return s
}

// Get returns the value for h, or false if h is stale.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if s := a.lookup(h); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

// Free releases h's slot. It returns false for a stale handle.
func (a *Arena[T]) Free(h Handle) bool {
	s := a.lookup(h)
	if s == nil {
		return false
	}
	var zero T
	s.value = zero
	s.live = false
	a.free = append(a.free, h.index)
	a.live--
	return true
}

func (a *Arena[T]) Len() int { return a.live }

// Each calls fn for every live entry in slot order until fn returns false.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{index: uint32(i), gen: s.gen}, s.value) {
			return
		}
	}
}
