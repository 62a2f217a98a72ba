package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/vrcore/internal/calibration"
	"github.com/banshee-data/vrcore/internal/config"
	"github.com/banshee-data/vrcore/internal/db"
	"github.com/banshee-data/vrcore/internal/devicestate"
	"github.com/banshee-data/vrcore/internal/host"
	"github.com/banshee-data/vrcore/internal/monitor"
	"github.com/banshee-data/vrcore/internal/scroll"
	"github.com/banshee-data/vrcore/internal/sensor"
	"github.com/banshee-data/vrcore/internal/serialmux"
	"github.com/banshee-data/vrcore/internal/telemetry"
	"github.com/banshee-data/vrcore/internal/timeutil"
	"github.com/banshee-data/vrcore/internal/tracking"
	"github.com/banshee-data/vrcore/internal/ui"
	"github.com/banshee-data/vrcore/internal/version"
	"github.com/banshee-data/vrcore/internal/vsync"
	"github.com/banshee-data/vrcore/internal/warp"
)

var (
	configPath  = flag.String("config", "", "Path to a tuning config file (JSON or YAML); empty uses built-in defaults")
	dbPath      = flag.String("db-path", "vrcore.db", "Path to the SQLite database")
	sensorMode  = flag.String("sensor", "synthetic", "IMU source: synthetic, serial, replay or none")
	port        = flag.String("port", "/dev/ttyACM0", "Serial port of the IMU (sensor=serial)")
	baudRate    = flag.Int("baud", 115200, "Serial baud rate (sensor=serial)")
	replayFile  = flag.String("replay", "", "pcap capture to replay (sensor=replay)")
	replayPort  = flag.Int("replay-udp-port", 5555, "UDP port of IMU packets in the capture")
	replaySpeed = flag.Float64("replay-speed", 1.0, "Replay speed multiplier")
	listen      = flag.String("listen", "", "Debug HTTP listen address; overrides the config")
	grpcListen  = flag.String("grpc-listen", "", "Telemetry gRPC listen address; overrides the config")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker URL for host commands; overrides the config")
	frameRate   = flag.Float64("produce-hz", 0, "Synthetic producer frame rate; 0 renders at the display rate")
	noPacing    = flag.Bool("disable-pacing-log", false, "Do not record frame pacing to the database")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	tuning, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	overrideTuning(tuning)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, tuning); err != nil {
		log.Fatalf("vrcore: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// overrideTuning applies command line addresses on top of the config file.
func overrideTuning(c *config.TuningConfig) {
	if *listen != "" {
		c.Telemetry.DebugListen = listen
	}
	if *grpcListen != "" {
		c.Telemetry.GRPCListen = grpcListen
	}
	if *mqttBroker != "" {
		c.Telemetry.MQTTBroker = mqttBroker
	}
}

func powerConfig(c *config.TuningConfig) devicestate.PowerPolicyConfig {
	return devicestate.PowerPolicyConfig{
		AllowPowerSave: c.GetAllowPowerSave(),
		CheckInterval:  c.GetPowerCheckInterval(),
		MountDelay:     c.GetMountDelay(),
	}
}

// openSensor builds the IMU for mode. The returned closer releases any
// transport the device does not own; it is never nil.
func openSensor(mode string, timebase *timeutil.Monotonic, rateHz int) (sensor.Device, *serialmux.SerialMux[serial.Port], func(), error) {
	noop := func() {}
	switch mode {
	case "none":
		return nil, nil, noop, nil
	case "synthetic":
		cfg := sensor.DefaultSyntheticConfig()
		cfg.RateHz = rateHz
		return sensor.NewSyntheticDevice(cfg, timebase), nil, noop, nil
	case "serial":
		mux, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to open IMU port %s: %w", *port, err)
		}
		closer := func() {
			if err := mux.Close(); err != nil {
				log.Printf("failed to close IMU port: %v", err)
			}
		}
		return sensor.NewSerialDevice(mux, *port, rateHz, timebase), mux, closer, nil
	case "replay":
		if *replayFile == "" {
			return nil, nil, noop, errors.New("sensor=replay requires -replay")
		}
		dev := sensor.NewReplayDevice(sensor.ReplayConfig{
			Path:    *replayFile,
			UDPPort: *replayPort,
			Speed:   *replaySpeed,
			Serial:  "replay",
		}, timebase)
		return dev, nil, noop, nil
	default:
		return nil, nil, noop, fmt.Errorf("unknown sensor mode %q", mode)
	}
}

func run(ctx context.Context, tuning *config.TuningConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := timeutil.RealClock{}
	timebase := timeutil.NewMonotonic(clock)

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	var store calibration.Store
	if tuning.GetUseSQLiteStore() {
		store = db.NewCalibrationStore(database)
	} else {
		store = calibration.NewFileStore(tuning.GetCalibrationStorePath())
	}

	device, imuMux, closeSensor, err := openSensor(*sensorMode, timebase, 1000)
	if err != nil {
		return err
	}
	defer closeSensor()

	var filter *calibration.Filter
	var corrector tracking.Corrector
	if device != nil {
		if err := device.Start(sensor.FlagOrientation); err != nil {
			return fmt.Errorf("failed to start IMU: %w", err)
		}
		defer device.Stop()
		filter = calibration.New(calibration.ConfigFromTuning(tuning), device.FactoryCalibration(), device.Serial(), store, clock)
		corrector = filter
	}
	tracker := tracking.New(tracking.ConfigFromTuning(tuning), device, corrector, timebase)

	state := devicestate.New()
	bridge := host.NewBridge(state, tracker, clock)
	bridge.Policy = devicestate.NewPowerPolicy(powerConfig(tuning), state, bridge, clock)

	period := time.Duration(tuning.GetVsyncPeriod() * float64(time.Second))
	vclock := vsync.New(timebase, period, state)

	display := warp.NewHeadlessDisplay(period, timebase, 0)
	defer display.Close()
	pool, textures := newEyeBuffers(tuning.GetEyeBuffers())
	display.Register(textures...)

	publisher := telemetry.NewPublisher(telemetry.Config{
		ListenAddr:   tuning.GetGRPCListen(),
		MaxClients:   telemetry.DefaultConfig().MaxClients,
		ClientBuffer: telemetry.DefaultConfig().ClientBuffer,
	})

	var recorder *db.PacingRecorder
	if !*noPacing {
		recorder = db.NewPacingRecorder(database, clock)
	}

	wcfg := warp.ConfigFromTuning(tuning)
	wcfg.Pool = pool
	wcfg.OnFrame = frameSink(recorder, publisher, clock)
	session := warp.New(wcfg, display, tracker, vclock)
	publisher.StatsFunc = func() map[string]any {
		st := session.Stats()
		return map[string]any{
			"ticks":     float64(st.Ticks),
			"presented": float64(st.Presented),
			"rewarped":  float64(st.Rewarped),
			"fallback":  float64(st.Fallback),
			"submitted": float64(st.Submitted),
		}
	}
	if err := publisher.Start(nil); err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}
	defer publisher.Stop()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start warp session: %w", err)
	}
	defer session.Destroy()

	events := make(chan ui.Event, 64)
	dispatcher, _ := newLauncher(tuning)

	var wg sync.WaitGroup

	// stop everything if the warp session is lost
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watchSession(ctx, session, cancel); err != nil {
			log.Printf("warp session lost, shutting down: %v", err)
		}
	}()

	// run the tracker integration loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("tracking stopped: %v", err)
		}
		log.Print("tracking routine terminated")
	}()

	if filter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runCalibrationStore(ctx, filter, clock, tuning.GetMinStoreDelay())
		}()
	}

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx)
			log.Printf("pacing recorder stopped (%d dropped)", recorder.Dropped())
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("host bridge stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		handleHostEvents(ctx, bridge.Events())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ui dispatcher stopped: %v", err)
		}
	}()

	if broker := tuning.GetMQTTBroker(); broker != "" {
		client, err := host.Connect(broker, "vrcore-"+session.ID()[:8])
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			mb := host.NewMQTTBridge(client, bridge, host.DefaultTopics())
			if err := mb.Start(); err != nil {
				log.Printf("MQTT subscribe failed: %v", err)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer mb.Stop()
				if err := mb.RunPublisher(ctx, tuning.GetStatsInterval(), clock); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("MQTT publisher stopped: %v", err)
				}
			}()
		}
	}

	prod := &producer{
		Session:       session,
		Pool:          pool,
		Clock:         vclock,
		Poses:         tracker,
		Events:        events,
		Rate:          *frameRate,
		Timebase:      timebase,
		MinVsyncs:     tuning.GetMinVsyncs(),
		PipelineDepth: tuning.GetPipelineDepth(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := prod.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("frame producer stopped: %v", err)
		}
		log.Printf("producer routine terminated after %d frames", prod.Submitted())
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		ws := monitor.NewWebServer()
		ws.Pacing = database
		ws.Pose = tracker
		ws.State = state
		ws.Warp = session.Stats
		ws.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)
		if imuMux != nil {
			imuMux.AttachAdminRoutes(mux)
		}
		mux.HandleFunc("/host/command", hostCommandHandler(bridge))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprintf(w, "ok %s\n", session.State())
		})

		server := &http.Server{
			Addr:    tuning.GetDebugListen(),
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if filter != nil && filter.StoreAutoOffset(clock.Now()) {
		log.Printf("stored calibration for %s on shutdown", filter.Serial())
	}
	st := session.Stats()
	log.Printf("session %s: %d ticks, %d presented, %d rewarped, %d fallback",
		session.ID(), st.Ticks, st.Presented, st.Rewarped, st.Fallback)
	if err := session.Err(); err != nil {
		return fmt.Errorf("warp session %s: %w", session.ID(), err)
	}
	return nil
}

// watchSession waits for the warp session to end. A session ended by a
// fatal display error cancels the service and returns the cause.
func watchSession(ctx context.Context, session *warp.Session, cancel context.CancelFunc) error {
	select {
	case <-ctx.Done():
		return nil
	case <-session.Done():
	}
	err := session.Err()
	if err != nil {
		cancel()
	}
	return err
}

// runCalibrationStore periodically persists the auto-calibrated offset.
// The filter enforces its own minimum delay between writes.
func runCalibrationStore(ctx context.Context, filter *calibration.Filter, clock timeutil.Clock, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			filter.StoreAutoOffset(now)
		}
	}
}

// newLauncher builds the launcher UI: a vertical list of items driven by
// the dispatcher.
func newLauncher(tuning *config.TuningConfig) (*ui.Dispatcher, *ui.ScrollWidget) {
	list := scroll.NewManager(scroll.Vertical, scroll.ConfigFromTuning(tuning))
	list.SetMaxPosition(launcherItems - 1)
	widget := ui.NewScrollWidget(scroll.ArbiterConfigFromTuning(tuning), tuning.GetHintVisibilityToggle(), nil, list)
	selected := -1
	widget.OnScroll = func(_, v float64) {
		if item := int(math.Round(v)); item != selected && !list.IsScrolling() {
			selected = item
			log.Printf("launcher item %d selected", item)
		}
	}
	d := ui.NewDispatcher()
	d.SetFocus(d.Add(widget))
	return d, widget
}
