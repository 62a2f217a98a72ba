package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.Equal(t, 60.0, cfg.GetRefreshRateHz())
	assert.InDelta(t, 1.0/60, cfg.GetVsyncPeriod(), 1e-12)
	assert.Equal(t, 1, cfg.GetMinVsyncs())
	assert.Equal(t, 3, cfg.GetEyeBuffers())
	assert.Equal(t, 6000, cfg.GetWindowCapacity())
	assert.Equal(t, 0.4, cfg.GetSmoothingAlpha())
	assert.InDelta(t, 0.4363325, cfg.GetMotionLimit(), 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.GetMinStoreDelay())
	assert.Equal(t, 10.0, cfg.GetDirectionDecidingDistance())
	assert.Equal(t, 0.2, cfg.GetControllerCoolDown())
	assert.Equal(t, 5*time.Second, cfg.GetMountDelay())
	assert.Equal(t, 5.0, cfg.GetHintVisibilityToggle())
}

func TestDefaultTuningConfigMatchesGetters(t *testing.T) {
	cfg := DefaultTuningConfig()
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Scroll.TouchSensitivity)
	assert.Equal(t, 0.02, *cfg.Scroll.TouchSensitivity)
	require.NotNil(t, cfg.Warp.ErrorLogInterval)
	assert.Equal(t, "1s", *cfg.Warp.ErrorLogInterval)
	assert.Equal(t, EmptyTuningConfig().GetStatsInterval(), cfg.GetStatsInterval())
}

// The checked-in defaults file must agree with the compiled defaults.
func TestDefaultsFileMatchesDefaultTuningConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultTuningConfig(), cfg); diff != "" {
		t.Errorf("defaults file mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTuningConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	body := `{
  "vsync": {"refresh_rate_hz": 72, "min_vsyncs": 2},
  "scroll": {"damping": 0.1, "snap_to_integer": false},
  "power": {"mount_delay": "3s"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 72.0, cfg.GetRefreshRateHz())
	assert.Equal(t, 2, cfg.GetMinVsyncs())
	assert.Equal(t, 0.1, cfg.GetScrollDamping())
	assert.False(t, cfg.GetSnapToInteger())
	assert.Equal(t, 3*time.Second, cfg.GetMountDelay())
	// untouched sections keep defaults
	assert.Equal(t, 6000, cfg.GetWindowCapacity())
}

func TestLoadTuningConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
calibration:
  window_capacity: 1200
  store_path: /var/lib/vrcore/cal.bin
  use_sqlite_store: false
tracking:
  update_interval: 5ms
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.GetWindowCapacity())
	assert.Equal(t, "/var/lib/vrcore/cal.bin", cfg.GetCalibrationStorePath())
	assert.False(t, cfg.GetUseSQLiteStore())
	assert.Equal(t, 5*time.Millisecond, cfg.GetTrackingUpdateInterval())
}

func TestLoadTuningConfigErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"bad extension", "tuning.txt", "{}", "extension"},
		{"bad json", "bad.json", "{", "parse config JSON"},
		{"bad yaml", "bad.yaml", "vsync: [", "parse config YAML"},
		{"invalid damping", "damp.json", `{"scroll": {"damping": 1.5}}`, "scroll.damping"},
		{"invalid duration", "dur.json", `{"power": {"check_interval": "soon"}}`, "power.check_interval"},
		{"too few buffers", "buf.json", `{"warp": {"eye_buffers": 2}}`, "warp.eye_buffers"},
		{"zero refresh", "hz.json", `{"vsync": {"refresh_rate_hz": 0}}`, "refresh_rate_hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := LoadTuningConfig(path)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024*1024+1), 0644))
	_, err := LoadTuningConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestGettersFallBackOnBadDuration(t *testing.T) {
	bad := "not-a-duration"
	cfg := &TuningConfig{Warp: WarpConfig{StatsInterval: &bad}}
	assert.Equal(t, 10*time.Second, cfg.GetStatsInterval())
}
