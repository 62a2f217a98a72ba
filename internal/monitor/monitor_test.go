package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vrcore/internal/db"
	"github.com/banshee-data/vrcore/internal/devicestate"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/testutil"
	"github.com/banshee-data/vrcore/internal/tracking"
	"github.com/banshee-data/vrcore/internal/warp"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakePacing struct {
	samples []db.PacingSample
	err     error
	limit   int
}

func (f *fakePacing) RecentPacing(_ context.Context, limit int) ([]db.PacingSample, error) {
	f.limit = limit
	return f.samples, f.err
}

type fakePose struct{ recenters atomic.Int32 }

func (f *fakePose) Current() tracking.PredictedPose {
	return tracking.PredictedPose{
		Orientation: tracking.Identity,
		Status:      tracking.StatusOrientationTracked | tracking.StatusHMDConnected,
	}
}

func (f *fakePose) Recenter() { f.recenters.Add(1) }

func samples() []db.PacingSample {
	out := make([]db.PacingSample, 0, 10)
	for i := uint64(1); i <= 10; i++ {
		outcome := warp.OutcomePresent
		if i%3 == 0 {
			outcome = warp.OutcomeRewarp
		}
		out = append(out, db.PacingSample{SessionID: "sess-1", Tick: i, FrameID: i, LatencySeconds: 0.011, Outcome: outcome})
	}
	return out
}

func get(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Serve(t, h, http.MethodGet, target, "")
}

func TestPacingChart(t *testing.T) {
	ws := NewWebServer()
	src := &fakePacing{samples: samples()}
	ws.Pacing = src

	rec := get(t, ws.handlePacingChart, "/debug/pacing?limit=50")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 50, src.limit)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Motion-to-photon latency")
	assert.Contains(t, body, "sess-1")
	assert.Contains(t, body, warp.OutcomeRewarp)
}

func TestPacingChartErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    PacingSource
		target string
		want   int
	}{
		{"not configured", nil, "/debug/pacing", http.StatusServiceUnavailable},
		{"bad limit", &fakePacing{samples: samples()}, "/debug/pacing?limit=0", http.StatusBadRequest},
		{"limit not a number", &fakePacing{samples: samples()}, "/debug/pacing?limit=x", http.StatusBadRequest},
		{"empty", &fakePacing{}, "/debug/pacing", http.StatusNotFound},
		{"db error", &fakePacing{err: errors.New("disk gone")}, "/debug/pacing", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := NewWebServer()
			ws.Pacing = tt.src
			rec := get(t, ws.handlePacingChart, tt.target)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestOutcomeCounts(t *testing.T) {
	counts := outcomeCounts(samples())
	assert.Equal(t, map[string]int{warp.OutcomePresent: 7, warp.OutcomeRewarp: 3}, counts)
}

func TestState(t *testing.T) {
	ws := NewWebServer()
	ws.State = devicestate.New()
	ws.State.Volume.Store(9)
	ws.Warp = func() warp.Stats { return warp.Stats{Ticks: 120, Presented: 100} }
	ws.Pose = &fakePose{}

	rec := get(t, ws.handleState, "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Device devicestate.Snapshot   `json:"device"`
		Warp   warp.Stats             `json:"warp"`
		Pose   tracking.PredictedPose `json:"pose"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 9, got.Device.Volume)
	assert.Equal(t, uint64(120), got.Warp.Ticks)
	assert.Equal(t, tracking.Identity, got.Pose.Orientation)

	empty := get(t, NewWebServer().handleState, "/debug/state")
	assert.JSONEq(t, `{}`, empty.Body.String())
}

func TestAdminRoutesRegistered(t *testing.T) {
	mux := http.NewServeMux()
	ws := NewWebServer()
	ws.AttachAdminRoutes(mux)
	for _, path := range []string{"/debug/pacing", "/debug/state", "/debug/pose/ws"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusNotFound, rec.Code, path)
	}
}

func dialPose(t *testing.T, ws *WebServer) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(ws.handlePoseWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestPoseWebSocket(t *testing.T) {
	pose := &fakePose{}
	ws := NewWebServer()
	ws.Pose = pose
	ws.PoseInterval = 5 * time.Millisecond
	conn := dialPose(t, ws)

	var msg PoseMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pose", msg.Type)
	require.NotNil(t, msg.Pose)
	assert.Equal(t, tracking.Identity, msg.Pose.Orientation)
	assert.Equal(t, 0.0, msg.Yaw)
	assert.Contains(t, msg.Status, "orientation")

	require.NoError(t, conn.WriteJSON(poseCommand{Action: "recenter"}))
	require.Eventually(t, func() bool { return pose.recenters.Load() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, conn.WriteJSON(poseCommand{Action: "fly"}))
	for i := 0; i < 1000; i++ {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "error" {
			break
		}
	}
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "fly")
}

func TestPoseWebSocketUnavailable(t *testing.T) {
	rec := get(t, NewWebServer().handlePoseWS, "/debug/pose/ws")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLatencyQuantile(t *testing.T) {
	s := samples()
	s = append(s, db.PacingSample{Tick: 11, Outcome: warp.OutcomeFallback})

	got, ok := LatencyQuantile(s, 0.95)
	require.True(t, ok)
	assert.InDelta(t, 11.0, got, 1e-9)

	_, ok = LatencyQuantile([]db.PacingSample{{Outcome: warp.OutcomeSkipped}}, 0.5)
	assert.False(t, ok)
}

func TestPlotPacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacing.png")
	require.NoError(t, PlotPacing(samples(), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, PlotPacing(nil, path))
}
