package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/vrcore/internal/db"
	"github.com/banshee-data/vrcore/internal/telemetry"
	"github.com/banshee-data/vrcore/internal/timeutil"
	"github.com/banshee-data/vrcore/internal/ui"
	"github.com/banshee-data/vrcore/internal/vsync"
	"github.com/banshee-data/vrcore/internal/warp"
)

const (
	launcherItems = 12
	fovDegrees    = 90
)

// producer stands in for the application renderer: it acquires eye
// buffers, predicts the pose for the frame's display time and submits the
// frame to the warp session. Each frame also drives the UI dispatcher.
type producer struct {
	Session  *warp.Session
	Pool     *warp.EyePool
	Clock    *vsync.Clock
	Poses    warp.PoseSource
	Events   chan<- ui.Event
	Timebase *timeutil.Monotonic
	// Rate is frames per second; zero renders once per vsync period.
	Rate float64

	MinVsyncs     int
	PipelineDepth int

	submitted atomic.Uint64
	starved   atomic.Uint64
}

func (p *producer) interval() time.Duration {
	if p.Rate > 0 {
		return time.Duration(float64(time.Second) / p.Rate)
	}
	return p.Clock.Period()
}

// Run renders frames until ctx is done or the session is destroyed.
func (p *producer) Run(ctx context.Context) error {
	ticker := p.Timebase.Clock().NewTicker(p.interval())
	defer ticker.Stop()

	last := p.Timebase.Seconds()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		now := p.Timebase.Seconds()
		p.sendUI(ui.FrameEvent{DT: now - last})
		last = now

		if err := p.Frame(); err != nil {
			return err
		}
	}
}

// Frame renders and submits one frame. Running out of eye buffers skips
// the frame.
func (p *producer) Frame() error {
	eyes, ok := p.Pool.Acquire()
	if !ok {
		p.starved.Add(1)
		return nil
	}
	displayTime := p.Clock.PredictedDisplayTime(p.MinVsyncs, p.PipelineDepth)
	pose := p.Poses.Predict(displayTime)
	_, err := p.Session.Submit(warp.FrameSubmission{
		Eyes: [2]warp.EyeImage{
			{Texture: eyes[0], TexMatrix: warp.IdentityMatrix},
			{Texture: eyes[1], TexMatrix: warp.IdentityMatrix},
		},
		FovDegrees: fovDegrees,
		PoseTime:   displayTime,
		Pose:       pose.Orientation,
		Program:    warp.ProgramSimple,
	})
	if err != nil {
		p.Pool.Release(eyes[0])
		if errors.Is(err, warp.ErrSessionDestroyed) {
			return err
		}
		return nil
	}
	p.submitted.Add(1)
	return nil
}

func (p *producer) sendUI(ev ui.Event) {
	if p.Events == nil {
		return
	}
	select {
	case p.Events <- ev:
	default:
	}
}

func (p *producer) Submitted() uint64 { return p.submitted.Load() }
func (p *producer) Starved() uint64   { return p.starved.Load() }

// newEyeBuffers allocates n stereo buffer pairs with texture handles
// starting at 1.
func newEyeBuffers(n int) (*warp.EyePool, []warp.TextureHandle) {
	if n < 1 {
		n = 1
	}
	buffers := make([][2]warp.TextureHandle, n)
	textures := make([]warp.TextureHandle, 0, 2*n)
	for i := range buffers {
		left := warp.TextureHandle(2*i + 1)
		buffers[i] = [2]warp.TextureHandle{left, left + 1}
		textures = append(textures, left, left+1)
	}
	return warp.NewEyePool(buffers), textures
}

func pacingSample(r warp.FrameRecord, recordedAt time.Time) db.PacingSample {
	return db.PacingSample{
		SessionID:      r.SessionID,
		Tick:           r.Tick,
		FrameID:        r.FrameID,
		Vsync:          r.Vsync,
		DisplayTime:    r.DisplayTime,
		LatencySeconds: r.Latency,
		Outcome:        r.Outcome,
		RecordedAt:     float64(recordedAt.UnixNano()) / 1e9,
	}
}

// frameSink fans warp frame records out to the pacing log and telemetry.
// Either may be nil.
func frameSink(recorder *db.PacingRecorder, publisher *telemetry.Publisher, clock timeutil.Clock) func(warp.FrameRecord) {
	return func(r warp.FrameRecord) {
		if recorder != nil {
			recorder.Add(pacingSample(r, clock.Now()))
		}
		if publisher != nil {
			publisher.OnFrame(r)
		}
	}
}
