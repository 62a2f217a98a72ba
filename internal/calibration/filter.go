// Package calibration removes temperature-dependent gyro bias from IMU
// samples.
//
// While the headset is at rest, smoothed gyro readings accumulate in a
// window whose mean is the live bias estimate. A full window of stillness
// is recorded into a table of per-temperature reports, which are persisted
// and interpolated to predict bias at temperatures not currently observed.
package calibration

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/sensor"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

var logf = monitoring.Component("calibration")

// Config holds the auto-calibration thresholds.
type Config struct {
	// WindowCapacity counts filtered samples, not sensor samples. The
	// tracker filters one sample per update, so the window spans
	// WindowCapacity tracking intervals (12 s at the default 2 ms).
	WindowCapacity int
	// Alpha weights the newest reading in the moving average.
	Alpha float64
	// MotionLimit in rad/s; larger smoothed rates reset the window.
	MotionLimit float64
	// NoiseLimit in rad/s; larger deviation from the window mean resets it.
	NoiseLimit               float64
	MinStoreDelay            time.Duration
	MaxDeltaTemperature      float64
	MinExtraDeltaTemperature float64
	// RetryInterval spaces out attempts to persist after a failed Save.
	RetryInterval time.Duration
	Targets       []float64
	SamplesPerBin int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		WindowCapacity:           6000,
		Alpha:                    0.4,
		MotionLimit:              1.25 * 0.349066,
		NoiseLimit:               0.0175,
		MinStoreDelay:            24 * time.Hour,
		MaxDeltaTemperature:      2.5,
		MinExtraDeltaTemperature: 0.5,
		RetryInterval:            time.Minute,
		Targets:                  DefaultTargets,
		SamplesPerBin:            DefaultSamplesPerBin,
	}
}

// ConfigFromTuning maps the calibration section of a tuning config.
func ConfigFromTuning(c *config.TuningConfig) Config {
	cfg := DefaultConfig()
	cfg.WindowCapacity = c.GetWindowCapacity()
	cfg.Alpha = c.GetSmoothingAlpha()
	cfg.MotionLimit = c.GetMotionLimit()
	cfg.NoiseLimit = c.GetNoiseLimit()
	cfg.MinStoreDelay = c.GetMinStoreDelay()
	cfg.MaxDeltaTemperature = c.GetMaxDeltaTemperature()
	cfg.MinExtraDeltaTemperature = c.GetMinExtraDeltaTemperature()
	return cfg
}

// Bias is the published live estimate.
type Bias struct {
	Offset      r3.Vec  `json:"offset"`
	Temperature float64 `json:"temperature"`
	// WindowFill is the number of at-rest readings currently in the window.
	WindowFill int `json:"window_fill"`
}

// Filter corrects raw samples. All methods are safe for concurrent use;
// Bias and Table never wait on the sample path.
type Filter struct {
	mu sync.Mutex

	cfg     Config
	factory sensor.FactoryCalibration
	serial  string
	store   Store
	clock   timeutil.Clock

	win        *window
	autoOffset r3.Vec
	autoTemp   float64
	table      Table
	interp     [3]*Interpolator

	dirty       bool
	lastAttempt time.Time

	bias      latest.Value[Bias]
	published latest.Value[Table]
}

// New creates a Filter for the device identified by serial, loading any
// reports previously saved in store. A nil store disables persistence.
// Load failures are logged and the filter starts with an empty table.
func New(cfg Config, factory sensor.FactoryCalibration, serial string, store Store, clock timeutil.Clock) *Filter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = DefaultTargets
	}
	if cfg.SamplesPerBin <= 0 {
		cfg.SamplesPerBin = DefaultSamplesPerBin
	}
	if factory.GyroMatrix == (sensor.Matrix3{}) {
		factory.GyroMatrix = sensor.Identity3()
	}
	if factory.AccelMatrix == (sensor.Matrix3{}) {
		factory.AccelMatrix = sensor.Identity3()
	}
	f := &Filter{
		cfg:        cfg,
		factory:    factory,
		serial:     serial,
		store:      store,
		clock:      clock,
		win:        newWindow(cfg.WindowCapacity),
		autoOffset: factory.GyroOffset,
		autoTemp:   factory.GyroTemperature,
	}
	if store != nil {
		reports, err := store.Load(serial)
		if err != nil {
			logf("load %s: %v", serial, err)
		}
		f.table = TableFromReports(reports)
	}
	if f.table == nil {
		f.table = NewTable(cfg.Targets, cfg.SamplesPerBin)
	}
	f.rebuild()
	f.bias.Store(Bias{Offset: f.autoOffset, Temperature: f.autoTemp})
	return f
}

func (f *Filter) rebuild() {
	for axis := range f.interp {
		f.interp[axis] = NewInterpolator(f.table, axis)
	}
	f.published.Store(f.table.Clone())
}

// Apply updates auto-calibration from raw and returns the corrected sample.
func (f *Filter) Apply(raw sensor.Sample) sensor.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autocalibrate(raw)

	offset := f.offsetAt(raw.Temperature)
	out := raw
	out.Gyro = f.factory.GyroMatrix.Apply(r3.Sub(raw.Gyro, offset))
	out.Accel = f.factory.AccelMatrix.Apply(r3.Sub(raw.Accel, f.factory.AccelOffset))
	return out
}

// OffsetAt predicts the gyro bias at temperature °C.
func (f *Filter) OffsetAt(temperature float64) r3.Vec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsetAt(temperature)
}

func (f *Filter) offsetAt(temperature float64) r3.Vec {
	return r3.Vec{
		X: f.interp[0].Offset(temperature, f.autoTemp, f.autoOffset.X),
		Y: f.interp[1].Offset(temperature, f.autoTemp, f.autoOffset.Y),
		Z: f.interp[2].Offset(temperature, f.autoTemp, f.autoOffset.Z),
	}
}

func (f *Filter) autocalibrate(raw sensor.Sample) {
	avg := raw.Gyro
	if !f.win.Empty() {
		avg = r3.Add(r3.Scale(f.cfg.Alpha, raw.Gyro), r3.Scale(1-f.cfg.Alpha, f.win.Back()))
	}
	if r3.Norm(avg) >= f.cfg.MotionLimit || r3.Norm(r3.Sub(avg, f.win.Mean())) >= f.cfg.NoiseLimit {
		f.win.Clear()
	}
	f.win.Append(avg)

	if f.win.Len() > f.win.Cap()/2 {
		f.autoOffset = f.win.Mean()
		f.autoTemp = raw.Temperature
		f.bias.Store(Bias{Offset: f.autoOffset, Temperature: f.autoTemp, WindowFill: f.win.Len()})
		if f.win.Full() {
			f.storeAutoOffset(f.clock.Now())
		}
	}
}

// StoreAutoOffset records the live estimate into the table if it improves
// on what the nearest temperature bin holds, and reports whether it did.
//
// A bin whose newest report is older than MinStoreDelay takes the live value
// into its oldest slot, provided the temperature is within
// MaxDeltaTemperature of the bin target. Otherwise the newest report is
// refined in place when the live temperature is closer to the target by at
// least MinExtraDeltaTemperature. Bins holding reports from a newer format
// are never touched.
func (f *Filter) StoreAutoOffset(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storeAutoOffset(now)
}

func (f *Filter) storeAutoOffset(now time.Time) bool {
	if f.dirty && now.Sub(f.lastAttempt) >= f.cfg.RetryInterval {
		f.persist(now)
	}

	bin := f.table[f.table.closestBin(f.autoTemp)]
	newest, oldest := 0, 0
	for i := range bin {
		if bin[i].Version > ReportVersion {
			return false
		}
		if bin[i].Time > bin[newest].Time {
			newest = i
		}
		if bin[i].Time < bin[oldest].Time {
			oldest = i
		}
	}

	nowSec := uint32(now.Unix())
	wrote := false
	if int64(nowSec)-int64(bin[newest].Time) > int64(f.cfg.MinStoreDelay/time.Second) {
		r := &bin[oldest]
		if absf(f.autoTemp-r.TargetTemperature) < f.cfg.MaxDeltaTemperature {
			r.Time = nowSec
			r.ActualTemperature = f.autoTemp
			r.Offset = f.autoOffset
			r.Version = ReportVersion
			wrote = true
		}
	} else {
		r := &bin[newest]
		if absf(f.autoTemp-r.TargetTemperature)+f.cfg.MinExtraDeltaTemperature < absf(r.ActualTemperature-r.TargetTemperature) {
			r.ActualTemperature = f.autoTemp
			r.Offset = f.autoOffset
			r.Version = ReportVersion
			wrote = true
		}
	}
	if !wrote {
		return false
	}
	logf("stored offset (%.5f, %.5f, %.5f) at %.2f°C", f.autoOffset.X, f.autoOffset.Y, f.autoOffset.Z, f.autoTemp)
	f.rebuild()
	f.persist(now)
	return true
}

func (f *Filter) persist(now time.Time) {
	if f.store == nil {
		return
	}
	f.lastAttempt = now
	if err := f.store.Save(f.serial, f.table.Reports()); err != nil {
		logf("save %s: %v", f.serial, err)
		f.dirty = true
		return
	}
	f.dirty = false
}

// Bias returns the latest live estimate.
func (f *Filter) Bias() Bias { return f.bias.Get() }

// Table returns a snapshot of the report table as of the last write.
func (f *Filter) Table() Table { return f.published.Get() }

// Serial is the sensor serial the filter persists under.
func (f *Filter) Serial() string { return f.serial }
