package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root runtime configuration. Every field is optional;
// the Get* accessors supply defaults for anything the file leaves out, so
// partial configs are safe.
type TuningConfig struct {
	Vsync       VsyncConfig       `json:"vsync,omitempty" yaml:"vsync,omitempty"`
	Warp        WarpConfig        `json:"warp,omitempty" yaml:"warp,omitempty"`
	Calibration CalibrationConfig `json:"calibration,omitempty" yaml:"calibration,omitempty"`
	Tracking    TrackingConfig    `json:"tracking,omitempty" yaml:"tracking,omitempty"`
	Scroll      ScrollConfig      `json:"scroll,omitempty" yaml:"scroll,omitempty"`
	Power       PowerConfig       `json:"power,omitempty" yaml:"power,omitempty"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// VsyncConfig controls display timing.
type VsyncConfig struct {
	RefreshRateHz *float64 `json:"refresh_rate_hz,omitempty" yaml:"refresh_rate_hz,omitempty"`
	MinVsyncs     *int     `json:"min_vsyncs,omitempty" yaml:"min_vsyncs,omitempty"`
	PipelineDepth *int     `json:"pipeline_depth,omitempty" yaml:"pipeline_depth,omitempty"`
}

// WarpConfig controls the warp session.
type WarpConfig struct {
	EyeBuffers       *int    `json:"eye_buffers,omitempty" yaml:"eye_buffers,omitempty"`
	ErrorLogInterval *string `json:"error_log_interval,omitempty" yaml:"error_log_interval,omitempty"` // duration string like "1s"
	StatsInterval    *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"`
}

// CalibrationConfig controls gyro auto-calibration.
type CalibrationConfig struct {
	WindowCapacity      *int     `json:"window_capacity,omitempty" yaml:"window_capacity,omitempty"`
	SmoothingAlpha      *float64 `json:"smoothing_alpha,omitempty" yaml:"smoothing_alpha,omitempty"`
	MotionLimit         *float64 `json:"motion_limit,omitempty" yaml:"motion_limit,omitempty"`
	NoiseLimit          *float64 `json:"noise_limit,omitempty" yaml:"noise_limit,omitempty"`
	MinStoreDelay       *string  `json:"min_store_delay,omitempty" yaml:"min_store_delay,omitempty"`
	MaxDeltaTemperature *float64 `json:"max_delta_temperature,omitempty" yaml:"max_delta_temperature,omitempty"`
	MinExtraDeltaTemp   *float64 `json:"min_extra_delta_temperature,omitempty" yaml:"min_extra_delta_temperature,omitempty"`
	StorePath           *string  `json:"store_path,omitempty" yaml:"store_path,omitempty"`
	UseSQLiteStore      *bool    `json:"use_sqlite_store,omitempty" yaml:"use_sqlite_store,omitempty"`
}

// TrackingConfig controls sensor fusion and prediction.
type TrackingConfig struct {
	UpdateInterval       *string  `json:"update_interval,omitempty" yaml:"update_interval,omitempty"`
	MaxPredictionSeconds *float64 `json:"max_prediction_seconds,omitempty" yaml:"max_prediction_seconds,omitempty"`
}

// ScrollConfig controls the scroll kinematics shared by all scrollable regions.
type ScrollConfig struct {
	TouchSensitivity      *float64 `json:"touch_sensitivity,omitempty" yaml:"touch_sensitivity,omitempty"`
	Damping               *float64 `json:"damping,omitempty" yaml:"damping,omitempty"`
	VelocitySmoothing     *float64 `json:"velocity_smoothing,omitempty" yaml:"velocity_smoothing,omitempty"`
	RestVelocity          *float64 `json:"rest_velocity,omitempty" yaml:"rest_velocity,omitempty"`
	ControllerImpulse     *float64 `json:"controller_impulse,omitempty" yaml:"controller_impulse,omitempty"`
	ControllerRepeatTime  *float64 `json:"controller_repeat_time,omitempty" yaml:"controller_repeat_time,omitempty"`
	WrapAroundOffset      *float64 `json:"wrap_around_offset,omitempty" yaml:"wrap_around_offset,omitempty"`
	WrapAroundHoldTime    *float64 `json:"wrap_around_hold_time,omitempty" yaml:"wrap_around_hold_time,omitempty"`
	SnapToInteger         *bool    `json:"snap_to_integer,omitempty" yaml:"snap_to_integer,omitempty"`
	DirectionDecidingDist *float64 `json:"direction_deciding_distance,omitempty" yaml:"direction_deciding_distance,omitempty"`
	ControllerCoolDown    *float64 `json:"controller_cool_down,omitempty" yaml:"controller_cool_down,omitempty"`
	HintVisibilityToggle  *float64 `json:"hint_visibility_toggle,omitempty" yaml:"hint_visibility_toggle,omitempty"`
}

// PowerConfig controls the power level policy.
type PowerConfig struct {
	AllowPowerSave *bool   `json:"allow_power_save,omitempty" yaml:"allow_power_save,omitempty"`
	CheckInterval  *string `json:"check_interval,omitempty" yaml:"check_interval,omitempty"`
	MountDelay     *string `json:"mount_delay,omitempty" yaml:"mount_delay,omitempty"`
}

// TelemetryConfig controls the frame stats stream and debug server.
type TelemetryConfig struct {
	GRPCListen  *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`
	DebugListen *string `json:"debug_listen,omitempty" yaml:"debug_listen,omitempty"`
	MQTTBroker  *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated with its
// default. Writing it out produces a complete, editable defaults file.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		Vsync: VsyncConfig{
			RefreshRateHz: ptrFloat64(e.GetRefreshRateHz()),
			MinVsyncs:     ptrInt(e.GetMinVsyncs()),
			PipelineDepth: ptrInt(e.GetPipelineDepth()),
		},
		Warp: WarpConfig{
			EyeBuffers:       ptrInt(e.GetEyeBuffers()),
			ErrorLogInterval: ptrString(e.GetErrorLogInterval().String()),
			StatsInterval:    ptrString(e.GetStatsInterval().String()),
		},
		Calibration: CalibrationConfig{
			WindowCapacity:      ptrInt(e.GetWindowCapacity()),
			SmoothingAlpha:      ptrFloat64(e.GetSmoothingAlpha()),
			MotionLimit:         ptrFloat64(e.GetMotionLimit()),
			NoiseLimit:          ptrFloat64(e.GetNoiseLimit()),
			MinStoreDelay:       ptrString(e.GetMinStoreDelay().String()),
			MaxDeltaTemperature: ptrFloat64(e.GetMaxDeltaTemperature()),
			MinExtraDeltaTemp:   ptrFloat64(e.GetMinExtraDeltaTemperature()),
			StorePath:           ptrString(e.GetCalibrationStorePath()),
			UseSQLiteStore:      ptrBool(e.GetUseSQLiteStore()),
		},
		Tracking: TrackingConfig{
			UpdateInterval:       ptrString(e.GetTrackingUpdateInterval().String()),
			MaxPredictionSeconds: ptrFloat64(e.GetMaxPredictionSeconds()),
		},
		Scroll: ScrollConfig{
			TouchSensitivity:      ptrFloat64(e.GetTouchSensitivity()),
			Damping:               ptrFloat64(e.GetScrollDamping()),
			VelocitySmoothing:     ptrFloat64(e.GetVelocitySmoothing()),
			RestVelocity:          ptrFloat64(e.GetRestVelocity()),
			ControllerImpulse:     ptrFloat64(e.GetControllerImpulse()),
			ControllerRepeatTime:  ptrFloat64(e.GetControllerRepeatTime()),
			WrapAroundOffset:      ptrFloat64(e.GetWrapAroundOffset()),
			WrapAroundHoldTime:    ptrFloat64(e.GetWrapAroundHoldTime()),
			SnapToInteger:         ptrBool(e.GetSnapToInteger()),
			DirectionDecidingDist: ptrFloat64(e.GetDirectionDecidingDistance()),
			ControllerCoolDown:    ptrFloat64(e.GetControllerCoolDown()),
			HintVisibilityToggle:  ptrFloat64(e.GetHintVisibilityToggle()),
		},
		Power: PowerConfig{
			AllowPowerSave: ptrBool(e.GetAllowPowerSave()),
			CheckInterval:  ptrString(e.GetPowerCheckInterval().String()),
			MountDelay:     ptrString(e.GetMountDelay().String()),
		},
		Telemetry: TelemetryConfig{
			GRPCListen:  ptrString(e.GetGRPCListen()),
			DebugListen: ptrString(e.GetDebugListen()),
			MQTTBroker:  ptrString(e.GetMQTTBroker()),
		},
	}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file.
// The file must be under 1MB. Fields omitted from the file keep their
// defaults through the Get* accessors.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if v := c.Vsync.RefreshRateHz; v != nil && (*v <= 0 || math.IsNaN(*v) || *v > 1000) {
		return fmt.Errorf("vsync.refresh_rate_hz must be in (0, 1000], got %f", *v)
	}
	if v := c.Vsync.MinVsyncs; v != nil && *v < 1 {
		return fmt.Errorf("vsync.min_vsyncs must be at least 1, got %d", *v)
	}
	if v := c.Vsync.PipelineDepth; v != nil && *v < 0 {
		return fmt.Errorf("vsync.pipeline_depth must be non-negative, got %d", *v)
	}
	if v := c.Warp.EyeBuffers; v != nil && *v < 3 {
		return fmt.Errorf("warp.eye_buffers must be at least 3, got %d", *v)
	}
	if v := c.Calibration.WindowCapacity; v != nil && *v < 2 {
		return fmt.Errorf("calibration.window_capacity must be at least 2, got %d", *v)
	}
	if v := c.Calibration.SmoothingAlpha; v != nil && (*v <= 0 || *v > 1) {
		return fmt.Errorf("calibration.smoothing_alpha must be in (0, 1], got %f", *v)
	}
	if v := c.Scroll.Damping; v != nil && (*v <= 0 || *v >= 1) {
		return fmt.Errorf("scroll.damping must be in (0, 1), got %f", *v)
	}
	if v := c.Scroll.VelocitySmoothing; v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("scroll.velocity_smoothing must be in [0, 1], got %f", *v)
	}
	if v := c.Scroll.WrapAroundHoldTime; v != nil && *v < 0 {
		return fmt.Errorf("scroll.wrap_around_hold_time must be non-negative, got %f", *v)
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"warp.error_log_interval", c.Warp.ErrorLogInterval},
		{"warp.stats_interval", c.Warp.StatsInterval},
		{"calibration.min_store_delay", c.Calibration.MinStoreDelay},
		{"tracking.update_interval", c.Tracking.UpdateInterval},
		{"power.check_interval", c.Power.CheckInterval},
		{"power.mount_delay", c.Power.MountDelay},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(*d.value); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
	}
	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func (c *TuningConfig) GetRefreshRateHz() float64 { return floatOr(c.Vsync.RefreshRateHz, 60) }
func (c *TuningConfig) GetMinVsyncs() int         { return intOr(c.Vsync.MinVsyncs, 1) }
func (c *TuningConfig) GetPipelineDepth() int     { return intOr(c.Vsync.PipelineDepth, 1) }

// GetVsyncPeriod returns the display refresh period in seconds.
func (c *TuningConfig) GetVsyncPeriod() float64 { return 1 / c.GetRefreshRateHz() }

func (c *TuningConfig) GetEyeBuffers() int { return intOr(c.Warp.EyeBuffers, 3) }
func (c *TuningConfig) GetErrorLogInterval() time.Duration {
	return durationOr(c.Warp.ErrorLogInterval, time.Second)
}
func (c *TuningConfig) GetStatsInterval() time.Duration {
	return durationOr(c.Warp.StatsInterval, 10*time.Second)
}

func (c *TuningConfig) GetWindowCapacity() int        { return intOr(c.Calibration.WindowCapacity, 6000) }
func (c *TuningConfig) GetSmoothingAlpha() float64    { return floatOr(c.Calibration.SmoothingAlpha, 0.4) }
func (c *TuningConfig) GetMotionLimit() float64       { return floatOr(c.Calibration.MotionLimit, 0.4363325) } // 1.25 * 20 deg/s
func (c *TuningConfig) GetNoiseLimit() float64        { return floatOr(c.Calibration.NoiseLimit, 0.0175) }
func (c *TuningConfig) GetMaxDeltaTemperature() float64 {
	return floatOr(c.Calibration.MaxDeltaTemperature, 2.5)
}
func (c *TuningConfig) GetMinExtraDeltaTemperature() float64 {
	return floatOr(c.Calibration.MinExtraDeltaTemp, 0.5)
}
func (c *TuningConfig) GetMinStoreDelay() time.Duration {
	return durationOr(c.Calibration.MinStoreDelay, 24*time.Hour)
}
func (c *TuningConfig) GetCalibrationStorePath() string {
	return stringOr(c.Calibration.StorePath, "calibration.db")
}
func (c *TuningConfig) GetUseSQLiteStore() bool { return boolOr(c.Calibration.UseSQLiteStore, true) }

func (c *TuningConfig) GetTrackingUpdateInterval() time.Duration {
	return durationOr(c.Tracking.UpdateInterval, 2*time.Millisecond)
}
func (c *TuningConfig) GetMaxPredictionSeconds() float64 {
	return floatOr(c.Tracking.MaxPredictionSeconds, 0.1)
}

func (c *TuningConfig) GetTouchSensitivity() float64  { return floatOr(c.Scroll.TouchSensitivity, 0.02) }
func (c *TuningConfig) GetScrollDamping() float64     { return floatOr(c.Scroll.Damping, 0.02) }
func (c *TuningConfig) GetVelocitySmoothing() float64 { return floatOr(c.Scroll.VelocitySmoothing, 0.5) }
func (c *TuningConfig) GetRestVelocity() float64      { return floatOr(c.Scroll.RestVelocity, 0.01) }
func (c *TuningConfig) GetControllerImpulse() float64 { return floatOr(c.Scroll.ControllerImpulse, 5.5) }
func (c *TuningConfig) GetControllerRepeatTime() float64 {
	return floatOr(c.Scroll.ControllerRepeatTime, 0.5)
}
func (c *TuningConfig) GetWrapAroundOffset() float64   { return floatOr(c.Scroll.WrapAroundOffset, 0.5) }
func (c *TuningConfig) GetWrapAroundHoldTime() float64 { return floatOr(c.Scroll.WrapAroundHoldTime, 1.0) }
func (c *TuningConfig) GetSnapToInteger() bool         { return boolOr(c.Scroll.SnapToInteger, true) }
func (c *TuningConfig) GetDirectionDecidingDistance() float64 {
	return floatOr(c.Scroll.DirectionDecidingDist, 10)
}
func (c *TuningConfig) GetControllerCoolDown() float64 {
	return floatOr(c.Scroll.ControllerCoolDown, 0.2)
}
func (c *TuningConfig) GetHintVisibilityToggle() float64 {
	return floatOr(c.Scroll.HintVisibilityToggle, 5.0)
}

func (c *TuningConfig) GetAllowPowerSave() bool { return boolOr(c.Power.AllowPowerSave, true) }
func (c *TuningConfig) GetPowerCheckInterval() time.Duration {
	return durationOr(c.Power.CheckInterval, time.Second)
}
func (c *TuningConfig) GetMountDelay() time.Duration {
	return durationOr(c.Power.MountDelay, 5*time.Second)
}

func (c *TuningConfig) GetGRPCListen() string  { return stringOr(c.Telemetry.GRPCListen, "localhost:50061") }
func (c *TuningConfig) GetDebugListen() string { return stringOr(c.Telemetry.DebugListen, "localhost:8090") }
func (c *TuningConfig) GetMQTTBroker() string  { return stringOr(c.Telemetry.MQTTBroker, "") }
