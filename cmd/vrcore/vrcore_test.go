package main

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/vrcore/internal/calibration"
	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/devicestate"
	"github.com/banshee-data/vrcore/internal/host"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/sensor"
	"github.com/banshee-data/vrcore/internal/testutil"
	"github.com/banshee-data/vrcore/internal/timeutil"
	"github.com/banshee-data/vrcore/internal/tracking"
	"github.com/banshee-data/vrcore/internal/ui"
	"github.com/banshee-data/vrcore/internal/vsync"
	"github.com/banshee-data/vrcore/internal/warp"
)

func init() { monitoring.SetLogger(nil) }

func TestDefaultFlags(t *testing.T) {
	assert.Equal(t, "synthetic", *sensorMode)
	assert.Equal(t, "vrcore.db", *dbPath)
	assert.Zero(t, *frameRate)
	assert.False(t, *noPacing)
}

func TestLoadTuningDefaults(t *testing.T) {
	c, err := loadTuning("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTuningConfig().GetRefreshRateHz(), c.GetRefreshRateHz())

	_, err = loadTuning("/nonexistent/tuning.json")
	assert.Error(t, err)
}

func TestPowerConfigFromTuning(t *testing.T) {
	c := config.DefaultTuningConfig()
	got := powerConfig(c)
	assert.Equal(t, c.GetAllowPowerSave(), got.AllowPowerSave)
	assert.Equal(t, c.GetPowerCheckInterval(), got.CheckInterval)
	assert.Equal(t, c.GetMountDelay(), got.MountDelay)
}

func TestOpenSensorModes(t *testing.T) {
	tb := timeutil.NewMonotonic(timeutil.NewMockClock(time.Unix(0, 0)))

	dev, mux, closer, err := openSensor("none", tb, 1000)
	require.NoError(t, err)
	assert.Nil(t, dev)
	assert.Nil(t, mux)
	closer()

	dev, _, _, err = openSensor("synthetic", tb, 500)
	require.NoError(t, err)
	assert.NotNil(t, dev)

	_, _, _, err = openSensor("bogus", tb, 1000)
	assert.ErrorContains(t, err, "unknown sensor mode")

	_, _, _, err = openSensor("replay", tb, 1000)
	assert.ErrorContains(t, err, "requires -replay")
}

func TestNewEyeBuffers(t *testing.T) {
	pool, textures := newEyeBuffers(3)
	assert.Equal(t, []warp.TextureHandle{1, 2, 3, 4, 5, 6}, textures)
	assert.Equal(t, 3, pool.Free())

	pool, textures = newEyeBuffers(0)
	assert.Len(t, textures, 2)
	assert.Equal(t, 1, pool.Free())
}

func TestPacingSample(t *testing.T) {
	r := warp.FrameRecord{
		SessionID:   "s",
		Tick:        4,
		FrameID:     3,
		Vsync:       10,
		DisplayTime: 1.5,
		Latency:     0.025,
		Outcome:     warp.OutcomePresent,
	}
	s := pacingSample(r, time.Unix(100, 500_000_000))
	assert.Equal(t, "s", s.SessionID)
	assert.Equal(t, uint64(4), s.Tick)
	assert.Equal(t, uint64(3), s.FrameID)
	assert.InDelta(t, 0.025, s.LatencySeconds, 1e-12)
	assert.Equal(t, warp.OutcomePresent, s.Outcome)
	assert.InDelta(t, 100.5, s.RecordedAt, 1e-9)

	// nil sinks are skipped
	frameSink(nil, nil, timeutil.RealClock{})(r)
}

type fixedPose struct{}

func (fixedPose) Predict(t float64) tracking.PredictedPose {
	return tracking.PredictedPose{Orientation: tracking.Identity, Time: t}
}

func newTestProducer(t *testing.T, buffers int) (*producer, *warp.Session, *warp.EyePool) {
	t.Helper()
	_, tb := testutil.Timebase()
	display := warp.NewHeadlessDisplay(time.Second/60, tb, 8)
	t.Cleanup(display.Close)
	pool, textures := newEyeBuffers(buffers)
	display.Register(textures...)
	clock := vsync.New(tb, time.Second/60, devicestate.New())
	cfg := warp.DefaultConfig()
	cfg.Pool = pool
	session := warp.New(cfg, display, fixedPose{}, clock)
	return &producer{
		Session:       session,
		Pool:          pool,
		Clock:         clock,
		Poses:         fixedPose{},
		Timebase:      tb,
		MinVsyncs:     1,
		PipelineDepth: 1,
	}, session, pool
}

func TestProducerFrame(t *testing.T) {
	p, session, pool := newTestProducer(t, 2)

	require.NoError(t, p.Frame())
	require.NoError(t, p.Frame())
	assert.Equal(t, uint64(2), p.Submitted())
	assert.Equal(t, uint64(2), session.Stats().Submitted)

	// The first frame was superseded before it was presented, so its
	// buffer is free again.
	assert.Equal(t, 1, pool.Free())

	session.Destroy()
	assert.ErrorIs(t, p.Frame(), warp.ErrSessionDestroyed)
	assert.Equal(t, 1, pool.Free(), "buffer released after failed submit")
}

func TestProducerStarvedWithoutBuffers(t *testing.T) {
	p, _, pool := newTestProducer(t, 1)
	_, ok := pool.Acquire()
	require.True(t, ok)

	require.NoError(t, p.Frame())
	assert.Equal(t, uint64(1), p.Starved())
	assert.Zero(t, p.Submitted())
}

func TestProducerInterval(t *testing.T) {
	p := &producer{Clock: vsync.New(timeutil.NewMonotonic(nil), time.Second/90, nil)}
	assert.Equal(t, time.Second/90, p.interval())
	p.Rate = 50
	assert.Equal(t, 20*time.Millisecond, p.interval())
}

func TestProducerRunStopsOnCancel(t *testing.T) {
	p, _, _ := newTestProducer(t, 3)
	events := make(chan ui.Event, 1)
	p.Events = events

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer did not stop")
	}
}

func TestHostCommandHandler(t *testing.T) {
	bridge := host.NewBridge(devicestate.New(), nil, nil)
	h := hostCommandHandler(bridge)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"accepted", http.MethodPost, `{"Command":"mount"}`, http.StatusAccepted},
		{"unknown", http.MethodPost, `{"Command":"explode"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, `{`, http.StatusBadRequest},
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Serve(t, h, tt.method, "/host/command", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleHostEventsStopsOnCancel(t *testing.T) {
	events := make(chan host.Command, 2)
	events <- host.Reorient{}
	events <- host.ReturnToLauncher{PlatformUIVersion: 2}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		handleHostEvents(ctx, events)
		close(done)
	}()
	assert.Eventually(t, func() bool { return len(events) == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestLauncherScrollsWithFrames(t *testing.T) {
	d, w := newLauncher(config.DefaultTuningConfig())
	require.Equal(t, 1, d.Len())
	require.Nil(t, w.Horizontal)
	assert.Equal(t, float64(launcherItems-1), w.Vertical.MaxPosition())

	var last float64
	w.OnScroll = func(_, v float64) { last = v }
	d.TouchDown()
	d.TouchRelative(r2.Vec{Y: 120})
	d.Frame(ui.FrameInput{DT: 1.0 / 60})
	d.TouchUp()
	for i := 0; i < 600; i++ {
		d.Frame(ui.FrameInput{DT: 1.0 / 60})
	}
	assert.False(t, w.Vertical.IsScrolling())
	assert.Equal(t, w.Vertical.Position(), last)
	assert.Equal(t, math.Round(last), last, "settles on an item")
	assert.NotZero(t, last)
}

func TestCalibrationStoreAlongsideTracking(t *testing.T) {
	tb := timeutil.NewMonotonic(nil)
	dev, _, closer, err := openSensor("synthetic", tb, 1000)
	require.NoError(t, err)
	defer closer()
	require.NoError(t, dev.Start(sensor.FlagOrientation))
	defer dev.Stop()

	cfg := calibration.DefaultConfig()
	cfg.WindowCapacity = 4
	filter := calibration.New(cfg, dev.FactoryCalibration(), dev.Serial(), calibration.NewMemoryStore(), timeutil.RealClock{})
	tcfg := tracking.DefaultConfig()
	tcfg.UpdateInterval = time.Millisecond
	tracker := tracking.New(tcfg, dev, filter, tb)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tracker.Run(ctx)
	}()
	runCalibrationStore(ctx, filter, timeutil.RealClock{}, time.Millisecond)
	<-done

	assert.NotZero(t, tracker.Current().Status&tracking.StatusOrientationTracked)
}

func TestWatchSessionCancelsOnContextLoss(t *testing.T) {
	display := warp.NewHeadlessDisplay(time.Millisecond, timeutil.NewMonotonic(nil), 0)
	defer display.Close()
	display.FailDraws(warp.ErrContextLost)
	clock := vsync.New(timeutil.NewMonotonic(nil), time.Millisecond, devicestate.New())
	session := warp.New(warp.DefaultConfig(), display, fixedPose{}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, session.Start(ctx))
	defer session.Destroy()

	errc := make(chan error, 1)
	go func() { errc <- watchSession(ctx, session, cancel) }()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, warp.ErrContextLost)
	case <-time.After(2 * time.Second):
		t.Fatal("session loss not reported")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "service context cancelled")
	assert.Equal(t, warp.StateDestroyed, session.State())
}

func TestWatchSessionQuietOnShutdown(t *testing.T) {
	_, tb := testutil.Timebase()
	display := warp.NewHeadlessDisplay(time.Second/60, tb, 0)
	defer display.Close()
	session := warp.New(warp.DefaultConfig(), display, fixedPose{}, vsync.New(tb, time.Second/60, nil))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, session.Start(ctx))
	defer session.Destroy()
	cancel()
	assert.NoError(t, watchSession(ctx, session, cancel))
}
