package ui

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/scroll"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestArenaGenerations(t *testing.T) {
	a := NewArena[string]()
	assert.False(t, Handle{}.Valid())
	_, ok := a.Get(Handle{})
	assert.False(t, ok)

	h1 := a.Alloc("one")
	h2 := a.Alloc("two")
	assert.Equal(t, 2, a.Len())

	v, ok := a.Get(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	require.True(t, a.Free(h1))
	assert.False(t, a.Free(h1), "double free")
	_, ok = a.Get(h1)
	assert.False(t, ok)

	h3 := a.Alloc("three")
	assert.Equal(t, h1.index, h3.index, "slot reused")
	assert.NotEqual(t, h1, h3)
	_, ok = a.Get(h1)
	assert.False(t, ok, "stale handle must not see the new value")
	v, _ = a.Get(h3)
	assert.Equal(t, "three", v)

	var seen []string
	a.Each(func(_ Handle, s string) bool {
		seen = append(seen, s)
		return true
	})
	if diff := cmp.Diff([]string{"three", "two"}, seen); diff != "" {
		t.Errorf("Each mismatch (-want +got):\n%s", diff)
	}
	require.True(t, a.Free(h2))
	assert.Equal(t, 1, a.Len())
}

func TestArenaOutOfRangeHandle(t *testing.T) {
	a := NewArena[int]()
	_, ok := a.Get(Handle{index: 9, gen: 1})
	assert.False(t, ok)
	assert.Equal(t, "9/1", Handle{index: 9, gen: 1}.String())
}

type recorder struct {
	name   string
	status Status
	log    *[]string
}

func (r *recorder) OnFrame(in FrameInput) { *r.log = append(*r.log, r.name+":frame") }
func (r *recorder) OnTouchDown() Status {
	*r.log = append(*r.log, r.name+":down")
	return r.status
}
func (r *recorder) OnTouchUp() Status {
	*r.log = append(*r.log, r.name+":up")
	return r.status
}
func (r *recorder) OnTouchRelative(offset r2.Vec) Status {
	*r.log = append(*r.log, r.name+":rel")
	return r.status
}

// frameOnly implements just one capability.
type frameOnly struct{ frames int }

func (f *frameOnly) OnFrame(FrameInput) { f.frames++ }

func TestDispatcherRouting(t *testing.T) {
	var log []string
	d := NewDispatcher()
	a := d.Add(&recorder{name: "a", log: &log})
	d.Add(&recorder{name: "b", status: Consumed, log: &log})
	d.Add(&recorder{name: "c", log: &log})
	fo := &frameOnly{}
	d.Add(fo)

	d.Dispatch(FrameEvent{DT: 0.1})
	d.Dispatch(TouchDownEvent{})
	want := []string{"a:frame", "b:frame", "c:frame", "a:down", "b:down"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, fo.frames)

	log = nil
	require.True(t, d.Remove(a))
	d.Dispatch(TouchUpEvent{})
	d.Dispatch(TouchRelativeEvent{Offset: r2.Vec{X: 1}})
	want = []string{"b:up", "b:rel"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("after remove (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, d.Len())
}

func TestDispatcherFocus(t *testing.T) {
	var log []string
	d := NewDispatcher()
	d.Add(&recorder{name: "a", status: Consumed, log: &log})
	b := d.Add(&recorder{name: "b", status: Consumed, log: &log})

	d.SetFocus(b)
	d.TouchDown()
	assert.Equal(t, []string{"b:down"}, log)

	require.True(t, d.Remove(b))
	log = nil
	d.TouchDown()
	assert.Equal(t, []string{"a:down"}, log)
}

func TestDispatcherRun(t *testing.T) {
	d := NewDispatcher()
	fo := &frameOnly{}
	d.Add(fo)

	events := make(chan Event, 3)
	events <- FrameEvent{DT: 0.1}
	events <- FrameEvent{DT: 0.1}
	close(events)
	require.NoError(t, d.Run(context.Background(), events))
	assert.Equal(t, 2, fo.frames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Run(ctx, make(chan Event)), context.Canceled)
}

func TestScrollWidget(t *testing.T) {
	cfg := scroll.DefaultConfig()
	h := scroll.NewManager(scroll.Horizontal, cfg)
	h.SetMaxPosition(4)
	v := scroll.NewManager(scroll.Vertical, cfg)
	v.SetMaxPosition(4)

	w := NewScrollWidget(scroll.DefaultArbiterConfig(), 5, h, v)
	var lastH, lastV float64
	w.OnScroll = func(hp, vp float64) { lastH, lastV = hp, vp }

	d := NewDispatcher()
	d.Add(w)
	events := make(chan Event, 8)
	events <- TouchDownEvent{}
	events <- TouchRelativeEvent{Offset: r2.Vec{X: 50, Y: 5}}
	events <- TouchUpEvent{}
	for i := 0; i < 4; i++ {
		events <- FrameEvent{DT: 1.0 / 60}
	}
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx, events))

	assert.Equal(t, scroll.NoLock, w.Arbiter().TouchLock())
	assert.InDelta(t, 1.0, lastH, 1e-9)
	assert.InDelta(t, 0.0, lastV, 0.1)
	assert.False(t, w.Hints().Visible())

	for i := 0; i < 600; i++ {
		d.Frame(FrameInput{DT: 1.0 / 60})
	}
	assert.Equal(t, 1.0, h.Position())
	assert.Equal(t, 0.0, v.Position())
	assert.True(t, w.Hints().Visible())
}
