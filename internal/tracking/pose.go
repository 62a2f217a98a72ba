// Package tracking integrates calibrated gyro samples into a head
// orientation and predicts it forward to display time.
package tracking

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Status reports which parts of a pose are backed by live tracking.
type Status uint32

const (
	StatusOrientationTracked Status = 1 << iota
	StatusPositionTracked
	StatusHMDConnected
)

func (s Status) String() string {
	if s == 0 {
		return "untracked"
	}
	var parts []string
	if s&StatusOrientationTracked != 0 {
		parts = append(parts, "orientation")
	}
	if s&StatusPositionTracked != 0 {
		parts = append(parts, "position")
	}
	if s&StatusHMDConnected != 0 {
		parts = append(parts, "connected")
	}
	return strings.Join(parts, "|")
}

// PredictedPose is a head pose at Time (timebase seconds).
type PredictedPose struct {
	Orientation     quat.Number `json:"orientation"`
	Position        r3.Vec      `json:"position"`
	HasPosition     bool        `json:"has_position"`
	AngularVelocity r3.Vec      `json:"angular_velocity"`
	Time            float64     `json:"time"`
	Status          Status      `json:"status"`
}

// Identity is the rotation that leaves vectors unchanged.
var Identity = quat.Number{Real: 1}

// Rotate returns v rotated by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// Integrate advances q by angular velocity w (rad/s, body frame) over dt
// seconds and renormalises.
func Integrate(q quat.Number, w r3.Vec, dt float64) quat.Number {
	half := r3.Scale(dt/2, w)
	step := quat.Exp(quat.Number{Imag: half.X, Jmag: half.Y, Kmag: half.Z})
	return normalize(quat.Mul(q, step))
}

// Yaw returns the heading of q about +Y, the angle that takes -Z to the
// forward direction projected onto the horizontal plane.
func Yaw(q quat.Number) float64 {
	f := Rotate(q, r3.Vec{Z: -1})
	return math.Atan2(-f.X, -f.Z)
}

// RemoveYaw returns q with its heading rotated back to zero.
func RemoveYaw(q quat.Number) quat.Number {
	half := -Yaw(q) / 2
	undo := quat.Number{Real: math.Cos(half), Jmag: math.Sin(half)}
	return normalize(quat.Mul(undo, q))
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}
