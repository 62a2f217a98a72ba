// Package sensor defines IMU samples and the devices that produce them.
package sensor

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNoDevice is returned when an operation needs an attached sensor.
var ErrNoDevice = errors.New("sensor: no device attached")

// Sample is one IMU reading. Time is in timebase seconds, Gyro in rad/s,
// Accel in m/s² and Temperature in °C. Samples are values and are never
// modified after capture.
type Sample struct {
	Time        float64 `json:"time"`
	Gyro        r3.Vec  `json:"gyro"`
	Accel       r3.Vec  `json:"accel"`
	Temperature float64 `json:"temperature"`
}

// Flags select what a device should start streaming.
type Flags uint32

const (
	FlagOrientation Flags = 1 << iota
	FlagYawCorrection
	FlagPosition
)

// Matrix3 is a row-major 3x3 matrix used for per-axis scale and
// cross-axis calibration of gyro and accelerometer readings.
type Matrix3 [3][3]float64

// Identity3 returns the identity matrix.
func Identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply returns m·v.
func (m Matrix3) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// FactoryCalibration holds the calibration burned in at manufacture.
// GyroTemperature is the die temperature at which GyroOffset was measured.
type FactoryCalibration struct {
	GyroOffset      r3.Vec  `json:"gyro_offset"`
	GyroTemperature float64 `json:"gyro_temperature"`
	GyroMatrix      Matrix3 `json:"gyro_matrix"`
	AccelOffset     r3.Vec  `json:"accel_offset"`
	AccelMatrix     Matrix3 `json:"accel_matrix"`
}

// IdentityCalibration is a calibration that leaves readings unchanged.
func IdentityCalibration() FactoryCalibration {
	return FactoryCalibration{GyroMatrix: Identity3(), AccelMatrix: Identity3()}
}

// Device is a sensor driver. A nil Device is valid wherever a Device is
// accepted and means no sensor is attached.
type Device interface {
	Start(flags Flags) error
	Stop() error
	// LatestSample returns the most recent sample; ok is false until the
	// first sample arrives.
	LatestSample() (s Sample, ok bool)
	FactoryCalibration() FactoryCalibration
	// Serial identifies the device for persisted calibration.
	Serial() string
}
