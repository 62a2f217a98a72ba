// Package latest provides a single-slot, latest-wins publication cell.
//
// A writer publishes a complete value and the cell's version advances
// atomically with it. Readers never block and only ever observe values that
// were fully published. Intermediate values that no reader loaded in time are
// simply lost, which is the intended behaviour for state such as the most
// recent frame submission or the current gyro bias.
package latest

import "sync/atomic"

type entry[T any] struct {
	value   T
	version uint64
}

// Value is safe for concurrent use. The zero value is empty and ready to use.
type Value[T any] struct {
	p atomic.Pointer[entry[T]]
}

// Store publishes v and returns its version. Versions start at 1 and increase
// by one per Store, so concurrent writers still produce a total order.
func (l *Value[T]) Store(v T) uint64 {
	for {
		old := l.p.Load()
		next := &entry[T]{value: v, version: 1}
		if old != nil {
			next.version = old.version + 1
		}
		if l.p.CompareAndSwap(old, next) {
			return next.version
		}
	}
}

// Load returns the latest value and its version. The version is 0 and the
// value is the zero value if nothing has been stored yet.
func (l *Value[T]) Load() (T, uint64) {
	e := l.p.Load()
	if e == nil {
		var zero T
		return zero, 0
	}
	return e.value, e.version
}

// Get returns the latest value, or the zero value.
func (l *Value[T]) Get() T {
	v, _ := l.Load()
	return v
}

// Version returns the version of the latest value, 0 when empty.
func (l *Value[T]) Version() uint64 {
	if e := l.p.Load(); e != nil {
		return e.version
	}
	return 0
}

// LoadIfNewer returns the latest value only if its version is greater than
// seen. ok is false when there is nothing newer.
func (l *Value[T]) LoadIfNewer(seen uint64) (v T, version uint64, ok bool) {
	e := l.p.Load()
	if e == nil || e.version <= seen {
		return v, seen, false
	}
	return e.value, e.version, true
}
