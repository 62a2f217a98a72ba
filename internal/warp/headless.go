package warp

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/vrcore/internal/timeutil"
)

// HeadlessDisplay is a Display without a GPU. Vsyncs come from a ticker on
// the timebase's clock, textures are valid once registered, and draws are
// recorded. It backs the service binary when no panel is attached and the
// tests of the warp loop.
type HeadlessDisplay struct {
	period   time.Duration
	timebase *timeutil.Monotonic
	ticker   timeutil.Ticker

	mu       sync.Mutex
	textures map[TextureHandle]bool
	draws    []DrawCommand
	keep     int
	drawErr  error
	total    uint64
}

// NewHeadlessDisplay creates a display refreshing every period. At most
// keep draw commands are retained for inspection.
func NewHeadlessDisplay(period time.Duration, timebase *timeutil.Monotonic, keep int) *HeadlessDisplay {
	if timebase == nil {
		timebase = timeutil.NewMonotonic(nil)
	}
	return &HeadlessDisplay{
		period:   period,
		timebase: timebase,
		ticker:   timebase.Clock().NewTicker(period),
		textures: make(map[TextureHandle]bool),
		keep:     keep,
	}
}

func (d *HeadlessDisplay) VsyncPeriod() time.Duration { return d.period }

func (d *HeadlessDisplay) WaitVsync(ctx context.Context) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-d.ticker.C():
		return d.timebase.Nanos(), nil
	}
}

// Register makes textures valid for submission.
func (d *HeadlessDisplay) Register(textures ...TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range textures {
		d.textures[t] = true
	}
}

// Unregister invalidates textures.
func (d *HeadlessDisplay) Unregister(textures ...TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range textures {
		delete(d.textures, t)
	}
}

func (d *HeadlessDisplay) TextureValid(t TextureHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textures[t]
}

// FailDraws makes every following Draw return err; nil restores success.
func (d *HeadlessDisplay) FailDraws(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawErr = err
}

func (d *HeadlessDisplay) Draw(cmd DrawCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drawErr != nil {
		return d.drawErr
	}
	d.total++
	if d.keep > 0 {
		if len(d.draws) == d.keep {
			copy(d.draws, d.draws[1:])
			d.draws = d.draws[:d.keep-1]
		}
		d.draws = append(d.draws, cmd)
	}
	return nil
}

// Draws returns the retained draw commands, oldest first.
func (d *HeadlessDisplay) Draws() []DrawCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawCommand(nil), d.draws...)
}

// DrawCount is the number of successful draws.
func (d *HeadlessDisplay) DrawCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Close stops the vsync ticker.
func (d *HeadlessDisplay) Close() { d.ticker.Stop() }
