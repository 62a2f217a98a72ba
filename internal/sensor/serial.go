package sensor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

// Link is the line-oriented transport to a serial IMU.
// *serialmux.SerialMux satisfies it.
type Link interface {
	Subscribe(buffer int) (string, <-chan string)
	Unsubscribe(id string)
	Initialize(rateHz int) error
	SendCommand(command string) error
	Monitor(ctx context.Context) error
}

// SerialDevice reads CSV samples from an IMU over a serial link.
//
// Sample lines are "t,gx,gy,gz,ax,ay,az,temp". A line
// "OFFSET,gx,gy,gz" reports the factory gyro offset. Lines starting with '#'
// are device status and are ignored.
type SerialDevice struct {
	link     Link
	serial   string
	rateHz   int
	timebase *timeutil.Monotonic
	latest   latest.Value[Sample]
	factory  latest.Value[FactoryCalibration]

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	logf    func(format string, v ...interface{})
}

// NewSerialDevice creates a stopped device reading from link.
func NewSerialDevice(link Link, serial string, rateHz int, timebase *timeutil.Monotonic) *SerialDevice {
	d := &SerialDevice{
		link:     link,
		serial:   serial,
		rateHz:   rateHz,
		timebase: timebase,
		logf:     monitoring.Component("sensor"),
	}
	d.factory.Store(IdentityCalibration())
	return d
}

// Start configures the IMU and begins reading samples.
func (d *SerialDevice) Start(flags Flags) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("serial device %s already started", d.serial)
	}
	if err := d.link.Initialize(d.rateHz); err != nil {
		return fmt.Errorf("failed to initialize IMU %s: %w", d.serial, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	id, lines := d.link.Subscribe(256)
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logf("IMU %s link failed: %v", d.serial, err)
		}
	}()
	go func() {
		defer d.wg.Done()
		defer d.link.Unsubscribe(id)
		d.consume(ctx, lines)
	}()
	d.logf("serial device %s started at %d Hz (flags=%#x)", d.serial, d.rateHz, flags)
	return nil
}

func (d *SerialDevice) consume(ctx context.Context, lines <-chan string) {
	var bad int
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := d.handleLine(line); err != nil {
				bad++
				if bad == 1 || bad%1000 == 0 {
					d.logf("IMU %s: %v (%d bad lines)", d.serial, err, bad)
				}
			}
		}
	}
}

func (d *SerialDevice) handleLine(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return nil
	case strings.HasPrefix(line, "OFFSET,"):
		v, err := parseFloats(strings.TrimPrefix(line, "OFFSET,"), 3)
		if err != nil {
			return fmt.Errorf("bad offset line %q: %w", line, err)
		}
		cal := d.factory.Get()
		cal.GyroOffset = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
		d.factory.Store(cal)
		return nil
	}
	s, err := ParseSampleLine(line)
	if err != nil {
		return err
	}
	// device clocks are not synchronised with ours; stamp on receipt
	s.Time = d.timebase.Seconds()
	d.latest.Store(s)
	return nil
}

// ParseSampleLine parses "t,gx,gy,gz,ax,ay,az,temp".
func ParseSampleLine(line string) (Sample, error) {
	v, err := parseFloats(line, 8)
	if err != nil {
		return Sample{}, fmt.Errorf("bad sample line %q: %w", line, err)
	}
	return Sample{
		Time:        v[0],
		Gyro:        r3.Vec{X: v[1], Y: v[2], Z: v[3]},
		Accel:       r3.Vec{X: v[4], Y: v[5], Z: v[6]},
		Temperature: v[7],
	}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Stop stops streaming and waits for the reader goroutines.
func (d *SerialDevice) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	err := d.link.SendCommand("STREAM=OFF")
	d.wg.Wait()
	return err
}

func (d *SerialDevice) LatestSample() (Sample, bool) {
	s, version := d.latest.Load()
	return s, version != 0
}

func (d *SerialDevice) FactoryCalibration() FactoryCalibration { return d.factory.Get() }

func (d *SerialDevice) Serial() string { return d.serial }
