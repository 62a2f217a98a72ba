package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

// SyntheticConfig describes a simulated IMU.
type SyntheticConfig struct {
	Serial          string
	RateHz          int
	GyroBias        r3.Vec  // constant bias added to every gyro reading
	AngularVelocity r3.Vec  // true rotation rate of the simulated head
	GyroNoise       float64 // standard deviation, rad/s
	Temperature     float64
	// TemperatureDrift is added per second of runtime.
	TemperatureDrift float64
	Seed             int64
}

// DefaultSyntheticConfig returns a stationary 1 kHz device.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Serial:      "SYNTH0001",
		RateHz:      1000,
		GyroBias:    r3.Vec{X: 0.004, Y: -0.002, Z: 0.001},
		Temperature: 30,
		Seed:        1,
	}
}

// SyntheticDevice generates samples on a ticker. It is used in dev mode
// and in tests.
type SyntheticDevice struct {
	cfg      SyntheticConfig
	timebase *timeutil.Monotonic
	latest   latest.Value[Sample]

	mu      sync.Mutex
	rng     *rand.Rand
	start   float64
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
	logf    func(format string, v ...interface{})
}

// NewSyntheticDevice creates a stopped device on the given timebase.
func NewSyntheticDevice(cfg SyntheticConfig, timebase *timeutil.Monotonic) *SyntheticDevice {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 1000
	}
	return &SyntheticDevice{
		cfg:      cfg,
		timebase: timebase,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logf:     monitoring.Component("sensor"),
	}
}

// Start begins generating samples. Starting a running device is an error.
func (d *SyntheticDevice) Start(flags Flags) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("synthetic device %s already started", d.cfg.Serial)
	}
	d.running = true
	d.stop = make(chan struct{})
	d.start = d.timebase.Seconds()

	ticker := d.timebase.Clock().NewTicker(time.Second / time.Duration(d.cfg.RateHz))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C():
				d.latest.Store(d.Generate(d.timebase.Seconds()))
			}
		}
	}()
	d.logf("synthetic device %s started at %d Hz (flags=%#x)", d.cfg.Serial, d.cfg.RateHz, flags)
	return nil
}

// Stop halts generation and waits for the generator to exit.
func (d *SyntheticDevice) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stop)
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

// Generate returns the sample the device would produce at time t.
func (d *SyntheticDevice) Generate(t float64) Sample {
	d.mu.Lock()
	noise := r3.Vec{}
	if d.cfg.GyroNoise > 0 {
		noise = r3.Vec{
			X: d.rng.NormFloat64() * d.cfg.GyroNoise,
			Y: d.rng.NormFloat64() * d.cfg.GyroNoise,
			Z: d.rng.NormFloat64() * d.cfg.GyroNoise,
		}
	}
	elapsed := math.Max(0, t-d.start)
	d.mu.Unlock()

	return Sample{
		Time:        t,
		Gyro:        r3.Add(r3.Add(d.cfg.AngularVelocity, d.cfg.GyroBias), noise),
		Accel:       r3.Vec{Y: 9.80665},
		Temperature: d.cfg.Temperature + d.cfg.TemperatureDrift*elapsed,
	}
}

// LatestSample returns the most recent generated sample.
func (d *SyntheticDevice) LatestSample() (Sample, bool) {
	s, version := d.latest.Load()
	return s, version != 0
}

// FactoryCalibration returns the identity calibration.
func (d *SyntheticDevice) FactoryCalibration() FactoryCalibration {
	return IdentityCalibration()
}

// Serial returns the configured serial number.
func (d *SyntheticDevice) Serial() string { return d.cfg.Serial }
