package db

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/sensor"
)

func init() {
	monitoring.SetLogger(nil)
}

func calibrationIdentity() sensor.FactoryCalibration {
	return sensor.IdentityCalibration()
}

func restSample(temp float64) sensor.Sample {
	return sensor.Sample{Gyro: r3.Vec{X: 0.004, Y: -0.002}, Temperature: temp}
}
