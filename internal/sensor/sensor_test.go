package sensor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestMatrix3Apply(t *testing.T) {
	m := Matrix3{{2, 0, 0}, {0, 1, 1}, {0, 0, -1}}
	got := m.Apply(r3.Vec{X: 1, Y: 2, Z: 3})
	assert.Equal(t, r3.Vec{X: 2, Y: 5, Z: -3}, got)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, Identity3().Apply(r3.Vec{X: 1, Y: 2, Z: 3}))
}

func TestPacketRoundTrip(t *testing.T) {
	in := Packet{Seq: 42, Sample: Sample{
		Time:        12.5,
		Gyro:        r3.Vec{X: 0.5, Y: -0.25, Z: 0.125},
		Accel:       r3.Vec{X: 0, Y: 9.75, Z: 0.5},
		Temperature: 31.5,
	}}
	b := EncodePacket(in)
	require.Len(t, b, PacketSize)

	out, err := DecodePacket(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePacketErrors(t *testing.T) {
	_, err := DecodePacket(make([]byte, 10))
	assert.ErrorIs(t, err, ErrBadPacket)

	b := EncodePacket(Packet{})
	copy(b, "NOPE")
	_, err = DecodePacket(b)
	assert.ErrorIs(t, err, ErrBadPacket)
}

func TestParseSampleLine(t *testing.T) {
	s, err := ParseSampleLine("1.5, 0.1,0.2,0.3, 0,9.8,0, 29.5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, s.Time)
	assert.Equal(t, r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}, s.Gyro)
	assert.Equal(t, 29.5, s.Temperature)

	_, err = ParseSampleLine("1,2,3")
	assert.Error(t, err)
	_, err = ParseSampleLine("1,2,3,4,5,6,7,x")
	assert.Error(t, err)
}

func TestSyntheticDeviceGenerate(t *testing.T) {
	mock := timeutil.NewMockClock(time.Unix(0, 0))
	cfg := DefaultSyntheticConfig()
	cfg.AngularVelocity = r3.Vec{Z: 1}
	cfg.TemperatureDrift = 0.5
	d := NewSyntheticDevice(cfg, timeutil.NewMonotonic(mock))

	s := d.Generate(4)
	assert.Equal(t, 4.0, s.Time)
	assert.InDelta(t, 1+cfg.GyroBias.Z, s.Gyro.Z, 1e-12)
	assert.InDelta(t, 32.0, s.Temperature, 1e-12)
	assert.Equal(t, "SYNTH0001", d.Serial())
	assert.Equal(t, IdentityCalibration(), d.FactoryCalibration())
}

func TestSyntheticDeviceStreams(t *testing.T) {
	mock := timeutil.NewMockClock(time.Unix(0, 0))
	d := NewSyntheticDevice(DefaultSyntheticConfig(), timeutil.NewMonotonic(mock))

	_, ok := d.LatestSample()
	assert.False(t, ok)

	require.NoError(t, d.Start(FlagOrientation))
	assert.Error(t, d.Start(FlagOrientation))

	assert.Eventually(t, func() bool {
		mock.Advance(time.Millisecond)
		_, ok := d.LatestSample()
		return ok
	}, time.Second, time.Millisecond)

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
}

// fakeLink is an in-memory Link.
type fakeLink struct {
	mu       sync.Mutex
	lines    chan string
	commands []string
	initRate int
}

func newFakeLink() *fakeLink { return &fakeLink{lines: make(chan string, 16)} }

func (l *fakeLink) Subscribe(int) (string, <-chan string) { return "sub", l.lines }
func (l *fakeLink) Unsubscribe(string)                    {}
func (l *fakeLink) Initialize(rate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initRate = rate
	return nil
}
func (l *fakeLink) SendCommand(c string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, c)
	return nil
}
func (l *fakeLink) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSerialDevice(t *testing.T) {
	mock := timeutil.NewMockClock(time.Unix(0, 0))
	tb := timeutil.NewMonotonic(mock)
	link := newFakeLink()
	d := NewSerialDevice(link, "IMU-7", 500, tb)

	require.NoError(t, d.Start(FlagOrientation))
	assert.Equal(t, 500, link.initRate)

	mock.Advance(2 * time.Second)
	link.lines <- "# boot ok"
	link.lines <- "garbage"
	link.lines <- "OFFSET,0.01,0.02,0.03"
	link.lines <- "99.0,0.1,0.2,0.3,0,9.8,0,30.5"

	require.Eventually(t, func() bool {
		_, ok := d.LatestSample()
		return ok
	}, time.Second, time.Millisecond)

	s, _ := d.LatestSample()
	assert.Equal(t, 2.0, s.Time, "samples are stamped on the local timebase")
	assert.Equal(t, r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}, s.Gyro)
	assert.Equal(t, r3.Vec{X: 0.01, Y: 0.02, Z: 0.03}, d.FactoryCalibration().GyroOffset)
	assert.Equal(t, "IMU-7", d.Serial())

	require.NoError(t, d.Stop())
	assert.Equal(t, []string{"STREAM=OFF"}, link.commands)
}

func testCapture(t *testing.T, n int, port int) []CapturedPacket {
	t.Helper()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	packets := make([]CapturedPacket, n)
	for i := range packets {
		packets[i] = CapturedPacket{
			CaptureTime: base.Add(time.Duration(i) * time.Millisecond),
			Packet: Packet{Seq: uint32(i), Sample: Sample{
				Time:        float64(i) / 1000,
				Gyro:        r3.Vec{X: 0.25, Y: 0, Z: float64(i)},
				Accel:       r3.Vec{Y: 9.75},
				Temperature: 30,
			}},
		}
	}
	return packets
}

func TestCaptureRoundTrip(t *testing.T) {
	in := testCapture(t, 5, 7400)
	var buf bytes.Buffer
	require.NoError(t, WriteCapture(&buf, in, 7400))

	out, err := ReadCapture(bytes.NewReader(buf.Bytes()), 7400)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.True(t, in[i].CaptureTime.Equal(out[i].CaptureTime))
		assert.Equal(t, in[i].Packet, out[i].Packet)
	}

	other, err := ReadCapture(bytes.NewReader(buf.Bytes()), 9999)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReplayDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imu.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteCapture(f, testCapture(t, 20, 7400), 7400))
	require.NoError(t, f.Close())

	d := NewReplayDevice(ReplayConfig{Path: path, UDPPort: 7400, Speed: 100}, timeutil.NewMonotonic(timeutil.RealClock{}))
	require.NoError(t, d.Start(FlagOrientation))

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
	s, ok := d.LatestSample()
	require.True(t, ok)
	assert.Equal(t, 19.0, s.Gyro.Z)
	require.NoError(t, d.Stop())
}

func TestReplayDeviceErrors(t *testing.T) {
	tb := timeutil.NewMonotonic(timeutil.RealClock{})
	d := NewReplayDevice(ReplayConfig{Path: filepath.Join(t.TempDir(), "missing.pcap")}, tb)
	assert.Error(t, d.Start(FlagOrientation))

	path := filepath.Join(t.TempDir(), "empty.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteCapture(f, nil, 7400))
	require.NoError(t, f.Close())
	d = NewReplayDevice(ReplayConfig{Path: path, UDPPort: 7400}, tb)
	assert.Error(t, d.Start(FlagOrientation))
}
