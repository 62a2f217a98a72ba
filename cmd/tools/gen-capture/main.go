// Command gen-capture writes a synthetic IMU pcap capture for -sensor=replay.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrcore/internal/security"
	"github.com/banshee-data/vrcore/internal/sensor"
	"github.com/banshee-data/vrcore/internal/timeutil"
)

func main() {
	output := flag.String("o", "imu.pcap", "output path")
	seconds := flag.Float64("d", 10, "capture duration in seconds")
	rate := flag.Int("rate", 1000, "sample rate in Hz")
	port := flag.Int("udp-port", 5555, "destination UDP port")
	yawRate := flag.Float64("yaw", 0.5, "head yaw rate in rad/s")
	flag.Parse()

	if err := security.ValidateOutputPath(*output); err != nil {
		log.Fatalf("invalid output: %v", err)
	}

	cfg := sensor.DefaultSyntheticConfig()
	cfg.RateHz = *rate
	cfg.AngularVelocity = r3.Vec{Y: *yawRate}
	dev := sensor.NewSyntheticDevice(cfg, timeutil.NewMonotonic(nil))

	start := time.Now()
	n := int(*seconds * float64(*rate))
	packets := make([]sensor.CapturedPacket, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(*rate)
		packets = append(packets, sensor.CapturedPacket{
			CaptureTime: start.Add(time.Duration(t * float64(time.Second))),
			Packet:      sensor.Packet{Seq: uint32(i), Sample: dev.Generate(t)},
		})
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	if err := sensor.WriteCapture(f, packets, *port); err != nil {
		f.Close()
		log.Fatalf("failed to write capture: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to close %s: %v", *output, err)
	}
	log.Printf("wrote %d packets to %s", len(packets), *output)
}
