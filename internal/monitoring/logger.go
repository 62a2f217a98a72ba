package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a printf-style logger that prefixes every line with
// "[name] " and writes through Logf at call time, so a later SetLogger
// also redirects loggers created earlier.
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Throttled wraps a logger so that at most one line is written per interval.
// Suppressed lines are counted and reported with the next line that passes.
// It is used on per-vsync paths where a persistent fault would otherwise
// produce a line every frame.
type Throttled struct {
	mu         sync.Mutex
	logf       func(format string, v ...interface{})
	interval   time.Duration
	now        func() time.Time
	last       time.Time
	suppressed int
}

// NewThrottled creates a Throttled logger. A nil now defaults to time.Now.
func NewThrottled(logf func(format string, v ...interface{}), interval time.Duration, now func() time.Time) *Throttled {
	if now == nil {
		now = time.Now
	}
	return &Throttled{logf: logf, interval: interval, now: now}
}

// Printf writes the line if the interval has elapsed since the last one.
func (t *Throttled) Printf(format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		t.mu.Unlock()
		return
	}
	suppressed := t.suppressed
	t.suppressed = 0
	t.last = now
	t.mu.Unlock()

	if suppressed > 0 {
		t.logf(format+" (%d similar suppressed)", append(v, suppressed)...)
		return
	}
	t.logf(format, v...)
}
