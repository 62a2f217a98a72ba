package sensor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/vrcore/internal/latest"
	"github.com/banshee-data/vrcore/internal/monitoring"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

// CapturedPacket is an IMU packet with its capture timestamp.
type CapturedPacket struct {
	CaptureTime time.Time
	Packet      Packet
}

// ReadCapture extracts every IMU packet sent to udpPort from a pcap stream.
// Non-UDP frames, other ports and malformed payloads are skipped.
func ReadCapture(r io.Reader, udpPort int) ([]CapturedPacket, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}

	var out []CapturedPacket
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to read packet %d: %w", len(out), err)
		}
		p, ok := decodeFrame(data, reader.LinkType(), udpPort)
		if !ok {
			continue
		}
		out = append(out, CapturedPacket{CaptureTime: ci.Timestamp, Packet: p})
	}
}

func decodeFrame(data []byte, link layers.LinkType, udpPort int) (Packet, bool) {
	packet := gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return Packet{}, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok || (udpPort != 0 && int(udp.DstPort) != udpPort) {
		return Packet{}, false
	}
	p, err := DecodePacket(udp.Payload)
	if err != nil {
		return Packet{}, false
	}
	return p, true
}

// ReplayConfig configures a ReplayDevice.
type ReplayConfig struct {
	Path    string
	UDPPort int
	// Speed scales capture timing: 1.0 is real time, 2.0 twice as fast.
	Speed  float64
	Serial string
}

// ReplayDevice plays back a pcap capture of UDP IMU packets, respecting the
// original packet timing. Samples are re-stamped on the live timebase.
type ReplayDevice struct {
	cfg      ReplayConfig
	timebase *timeutil.Monotonic
	latest   latest.Value[Sample]

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
	logf    func(format string, v ...interface{})
}

// NewReplayDevice creates a stopped replay device.
func NewReplayDevice(cfg ReplayConfig, timebase *timeutil.Monotonic) *ReplayDevice {
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.Serial == "" {
		cfg.Serial = "REPLAY"
	}
	return &ReplayDevice{cfg: cfg, timebase: timebase, logf: monitoring.Component("sensor")}
}

// Start loads the capture and begins playback.
func (d *ReplayDevice) Start(flags Flags) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("replay of %s already started", d.cfg.Path)
	}

	f, err := os.Open(d.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", d.cfg.Path, err)
	}
	packets, err := ReadCapture(f, d.cfg.UDPPort)
	f.Close()
	if err != nil {
		return err
	}
	if len(packets) == 0 {
		return fmt.Errorf("capture %s has no IMU packets on udp port %d", d.cfg.Path, d.cfg.UDPPort)
	}

	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.play(packets, d.stop, d.done)
	d.logf("replaying %d packets from %s at %.1fx (flags=%#x)", len(packets), d.cfg.Path, d.cfg.Speed, flags)
	return nil
}

func (d *ReplayDevice) play(packets []CapturedPacket, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	clock := d.timebase.Clock()
	last := packets[0].CaptureTime
	for _, cp := range packets {
		delay := time.Duration(float64(cp.CaptureTime.Sub(last)) / d.cfg.Speed)
		last = cp.CaptureTime
		if delay > 0 {
			select {
			case <-stop:
				return
			case <-clock.After(delay):
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		s := cp.Packet.Sample
		s.Time = d.timebase.Seconds()
		d.latest.Store(s)
	}
	d.logf("replay of %s complete", d.cfg.Path)
}

// Done is closed when playback reaches the end of the capture or is stopped.
func (d *ReplayDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Stop halts playback and waits for it to exit.
func (d *ReplayDevice) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stop)
	done := d.done
	d.mu.Unlock()
	<-done
	return nil
}

func (d *ReplayDevice) LatestSample() (Sample, bool) {
	s, version := d.latest.Load()
	return s, version != 0
}

func (d *ReplayDevice) FactoryCalibration() FactoryCalibration { return IdentityCalibration() }

func (d *ReplayDevice) Serial() string { return d.cfg.Serial }

// WriteCapture writes packets as Ethernet/IPv4/UDP frames to a pcap stream,
// addressed to udpPort on localhost.
func WriteCapture(w io.Writer, packets []CapturedPacket, udpPort int) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	for i, cp := range packets {
		eth := &layers.Ethernet{
			SrcMAC:       []byte{0x02, 0, 0, 0, 0, 1},
			DstMAC:       []byte{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    []byte{127, 0, 0, 1},
			DstIP:    []byte{127, 0, 0, 1},
		}
		udp := &layers.UDP{SrcPort: layers.UDPPort(udpPort + 1), DstPort: layers.UDPPort(udpPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(EncodePacket(cp.Packet))); err != nil {
			return fmt.Errorf("failed to serialize packet %d: %w", i, err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: cp.CaptureTime, CaptureLength: len(data), Length: len(data)}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return nil
}
