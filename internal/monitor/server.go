// Package monitor serves the runtime's debug pages: a frame pacing chart,
// a live pose websocket and a JSON dump of device and session state.
package monitor

import (
	"context"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/vrcore/internal/db"
	"github.com/banshee-data/vrcore/internal/devicestate"
	"github.com/banshee-data/vrcore/internal/httputil"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
	"github.com/banshee-data/vrcore/internal/tracking"
	"github.com/banshee-data/vrcore/internal/warp"
)

var logf = monitoring.Component("monitor")

// PacingSource reads recorded frame pacing. *db.DB implements it.
type PacingSource interface {
	RecentPacing(ctx context.Context, limit int) ([]db.PacingSample, error)
}

// PoseSource is the tracking view the pose socket streams.
type PoseSource interface {
	Current() tracking.PredictedPose
	Recenter()
}

// WebServer holds what the debug pages read. Any field may be nil; its
// page then reports that the data is unavailable.
type WebServer struct {
	Pacing PacingSource
	Pose   PoseSource
	State  *devicestate.State
	Warp   func() warp.Stats

	// PoseInterval is how often the pose socket pushes a sample.
	PoseInterval time.Duration
	Clock        timeutil.Clock
}

func NewWebServer() *WebServer {
	return &WebServer{PoseInterval: time.Second / 30, Clock: timeutil.RealClock{}}
}

// AttachAdminRoutes adds /debug/pacing, /debug/pose/ws and /debug/state.
func (ws *WebServer) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("pacing", "Frame pacing chart", http.HandlerFunc(ws.handlePacingChart))
	debug.Handle("state", "Device and warp session state (JSON)", http.HandlerFunc(ws.handleState))
	debug.HandleSilentFunc("pose/ws", ws.handlePoseWS)
}

type stateResponse struct {
	Device *devicestate.Snapshot   `json:"device,omitempty"`
	Warp   *warp.Stats             `json:"warp,omitempty"`
	Pose   *tracking.PredictedPose `json:"pose,omitempty"`
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	var resp stateResponse
	if ws.State != nil {
		s := ws.State.Snapshot()
		resp.Device = &s
	}
	if ws.Warp != nil {
		s := ws.Warp()
		resp.Warp = &s
	}
	if ws.Pose != nil {
		p := ws.Pose.Current()
		resp.Pose = &p
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
