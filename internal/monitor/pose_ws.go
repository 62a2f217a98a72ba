package monitor

import (
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/vrcore/internal/httputil"
	"github.com/banshee-data/vrcore/internal/timeutil"
	"github.com/banshee-data/vrcore/internal/tracking"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // debug routes are already restricted to trusted peers
	},
}

// PoseMessage is one pose socket frame.
type PoseMessage struct {
	Type   string                  `json:"type"` // "pose" or "error"
	Pose   *tracking.PredictedPose `json:"pose,omitempty"`
	Yaw    float64                 `json:"yaw_deg"`
	Status string                  `json:"status,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// poseCommand is a client request on the pose socket.
type poseCommand struct {
	Action string `json:"action"` // "recenter"
}

// handlePoseWS streams the current pose until the client disconnects.
// Clients may send {"action":"recenter"}.
func (ws *WebServer) handlePoseWS(w http.ResponseWriter, r *http.Request) {
	if ws.Pose == nil {
		httputil.ServiceUnavailable(w, "tracking not configured")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	commands := make(chan poseCommand)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var cmd poseCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logf("pose websocket error: %v", err)
				}
				return
			}
			select {
			case commands <- cmd:
			case <-r.Context().Done():
				return
			}
		}
	}()

	interval := ws.PoseInterval
	if interval <= 0 {
		interval = time.Second / 30
	}
	clock := ws.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case cmd := <-commands:
			switch cmd.Action {
			case "recenter":
				ws.Pose.Recenter()
			default:
				if err := conn.WriteJSON(PoseMessage{Type: "error", Error: "unknown action: " + cmd.Action}); err != nil {
					return
				}
			}
		case <-ticker.C():
			p := ws.Pose.Current()
			msg := PoseMessage{
				Type:   "pose",
				Pose:   &p,
				Yaw:    tracking.Yaw(p.Orientation) * 180 / math.Pi,
				Status: p.Status.String(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
