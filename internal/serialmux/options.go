package serialmux

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// PortOptions are the line settings of an IMU serial link. Zero fields take
// the IMU defaults of 115200 8N1.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
	// ReadTimeout bounds each read so Monitor notices cancellation on a
	// silent link. Zero blocks.
	ReadTimeout time.Duration `json:"read_timeout"`
}

var parities = map[string]serial.Parity{
	"N": serial.NoParity, "NONE": serial.NoParity,
	"E": serial.EvenParity, "EVEN": serial.EvenParity,
	"O": serial.OddParity, "ODD": serial.OddParity,
}

// Normalize fills defaults and canonicalises Parity to N, E or O.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	p := strings.ToUpper(strings.TrimSpace(o.Parity))
	if p == "" {
		p = "N"
	}
	if _, ok := parities[p]; !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	o.Parity = p[:1]
	return o, nil
}

// Equal reports whether both options open the link identically.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	return errA == nil && errB == nil && a == b
}

func (o PortOptions) String() string {
	n, err := o.Normalize()
	if err != nil {
		return "invalid: " + err.Error()
	}
	return fmt.Sprintf("%d %d%s%d", n.BaudRate, n.DataBits, n.Parity, n.StopBits)
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	stop := serial.OneStopBit
	if n.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: stop,
		Parity:   parities[n.Parity],
	}, nil
}
