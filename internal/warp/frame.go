// Package warp presents rendered eye buffers once per vsync, reprojecting
// the most recent frame to the freshest predicted head pose.
//
// The producer hands frames to a Session with Submit, which never blocks.
// The session's warp goroutine waits on the display's vsync, predicts the
// pose for the upcoming frame point, and draws the latest submission
// corrected for the head motion since that frame was rendered. When the
// producer falls behind, the previous frame is drawn again with a new pose.
package warp

import (
	"errors"

	"gonum.org/v1/gonum/num/quat"
)

var (
	// ErrSessionDestroyed is returned by operations on a destroyed session.
	ErrSessionDestroyed = errors.New("warp: session destroyed")
	// ErrContextLost is returned by a Display when the graphics context is
	// gone. It is fatal to the session.
	ErrContextLost = errors.New("warp: graphics context lost")
	// ErrInvalidTexture marks a submission whose texture cannot be drawn.
	ErrInvalidTexture = errors.New("warp: invalid texture")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("warp: session already started")
)

// TextureHandle names an eye buffer on the display. Zero is never valid.
type TextureHandle uint32

// Program selects the warp shader variant.
type Program int

const (
	ProgramSimple Program = iota
	ProgramMasked
	ProgramChromatic
)

func (p Program) String() string {
	switch p {
	case ProgramSimple:
		return "simple"
	case ProgramMasked:
		return "masked"
	case ProgramChromatic:
		return "chromatic"
	default:
		return "unknown"
	}
}

// EyeImage is one eye's rendered buffer and the texture matrix it was
// rendered with.
type EyeImage struct {
	Texture   TextureHandle
	TexMatrix [16]float64
}

// FrameSubmission is a completed stereo frame and the pose it was rendered
// for. ID is assigned by Session.Submit.
type FrameSubmission struct {
	ID         uint64
	Eyes       [2]EyeImage
	FovDegrees float64
	PoseTime   float64
	Pose       quat.Number
	Program    Program
}

// IdentityMatrix is the row-major 4x4 identity.
var IdentityMatrix = [16]float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// EyeDraw is the per-eye part of a DrawCommand.
type EyeDraw struct {
	Texture TextureHandle
	// Warp is the row-major texture-space transform: the eye's texture
	// matrix composed with the reprojection rotation.
	Warp [16]float64
}

// DrawCommand is everything the display needs for one vsync.
type DrawCommand struct {
	Tick    uint64
	FrameID uint64
	// Fallback draws solid black instead of eye buffers.
	Fallback bool
	Eyes     [2]EyeDraw
	Program  Program
}
