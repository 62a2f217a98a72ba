package serialmux

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/banshee-data/vrcore/internal/monitoring"
)

var logf = monitoring.Component("serialmux")

// NewRealSerialMux opens the IMU serial device at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
		}
	}
	logf("opened %s at %s", path, opts)
	return NewSerialMux[serial.Port](port), nil
}
