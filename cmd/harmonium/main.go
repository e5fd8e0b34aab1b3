package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"harmonium/internal/audio"
	"harmonium/internal/config"
	"harmonium/internal/control"
	"harmonium/internal/evdev"
	"harmonium/internal/harmonium"
	"harmonium/internal/keys"
	"harmonium/internal/monitor"
	"harmonium/internal/relay"
	"harmonium/internal/sensor"
)

const version = "0.3.0"

const defaultConfigPath = "~/.config/harmonium/config.yaml"

func printVersion() {
	fmt.Printf("harmonium v%s\n", version)
	fmt.Println("Bellows-controlled sample player for a hinge or angle sensor")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  harmonium [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Config:")
	fmt.Printf("  Settings are read from %s when present (or -config).\n", defaultConfigPath)
	fmt.Println("  Flags override values from the config file.")
	fmt.Println()
	fmt.Println("Playing:")
	fmt.Println("  Letter keys play the notes of the key map while the bellows move.")
	fmt.Println("  In a terminal a key is released when its auto-repeat stops; configure")
	fmt.Println("  input.devices (evdev) for exact releases.")
	fmt.Println()
	fmt.Println("Keys:")
	fmt.Println("  up/down     select bellows parameter")
	fmt.Println("  left/right  adjust selected parameter")
	fmt.Println("  pgup/pgdn   master gain")
	fmt.Println("  ctrl+r      reset bellows calibration")
	fmt.Println("  ctrl+k      reload key map")
	fmt.Println("  ctrl+x      stop all notes")
	fmt.Println("  esc/ctrl+c  quit")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  harmonium -sensor serial -serial-port /dev/ttyUSB0")
	fmt.Println("  harmonium -sensor synthetic -monitor")
	fmt.Println("  harmonium -sensor midi -midi-port nanoKONTROL -midi-cc 7")
	fmt.Println()
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (default "+defaultConfigPath+" if it exists)")

		sensorSource   = flag.String("sensor", "", "Sensor source: serial|midi|iio|synthetic|none")
		sensorRate     = flag.Float64("sensor-rate-hz", 0, "Sensor sample rate in Hz")
		reconnectMS    = flag.Int("reconnect-ms", 0, "Reopen a failed sensor after this delay in milliseconds (0 disables)")
		noFallback     = flag.Bool("no-fallback", false, "Do not fall back to the synthetic bellows when the sensor fails")
		serialPort     = flag.String("serial-port", "", "Serial port of the angle sensor (e.g. /dev/ttyACM0)")
		serialBaud     = flag.Int("serial-baud", 0, "Serial baud rate")
		midiPort       = flag.String("midi-port", "", "MIDI input port name (substring match)")
		midiController = flag.Int("midi-cc", -1, "MIDI control change number carrying the bellows angle")
		iioDir         = flag.String("iio-dir", "", "IIO device directory of a hinge sensor")

		keymapPath = flag.String("keymap", "", "Key map file (JSON or YAML)")

		noAudio    = flag.Bool("no-audio", false, "Run without sound output")
		samplesDir = flag.String("samples", "", "Directory of <note>.{wav,mp3,ogg,flac} samples")
		masterGain = flag.Float64("gain", -1, "Master gain, 0 to 2")

		inputDevices = flag.String("input-devices", "", "Comma-separated evdev keyboards (e.g. /dev/input/event3)")

		fps = flag.Int("fps", 0, "UI frame rate")

		monitorOn   = flag.Bool("monitor", false, "Serve the websocket monitor")
		monitorAddr = flag.String("monitor-addr", "", "Websocket monitor listen address")

		socketPath = flag.String("socket", "", "Control socket path")
		noControl  = flag.Bool("no-control", false, "Do not open the control socket")

		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		logFile     = flag.String("log-file", "", "Log file path")

		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Only flags given on the command line override the file.
	var o config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sensor":
			o.SensorSource = sensorSource
		case "sensor-rate-hz":
			o.SensorRateHz = sensorRate
		case "reconnect-ms":
			o.SensorReconnectMS = reconnectMS
		case "no-fallback":
			fallback := !*noFallback
			o.SensorFallback = &fallback
		case "serial-port":
			o.SerialPort = serialPort
		case "serial-baud":
			o.SerialBaud = serialBaud
		case "midi-port":
			o.MIDIPort = midiPort
		case "midi-cc":
			o.MIDIController = midiController
		case "iio-dir":
			o.IIODir = iioDir
		case "keymap":
			o.KeymapPath = keymapPath
		case "no-audio":
			enabled := !*noAudio
			o.AudioEnabled = &enabled
		case "samples":
			o.AudioSamplesDir = samplesDir
		case "gain":
			o.MasterGain = masterGain
		case "input-devices":
			o.InputDevices = inputDevices
		case "fps":
			o.FPS = fps
		case "monitor":
			o.MonitorEnabled = monitorOn
		case "monitor-addr":
			o.MonitorAddr = monitorAddr
		case "socket":
			o.SocketPath = socketPath
		case "no-control":
			enabled := !*noControl
			o.ControlEnabled = &enabled
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-file":
			o.LogFile = logFile
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logOut, err := openLogFile(config.ExpandPath(cfg.Logging.File))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer logOut.Close()
	logger := setupLogger(logLevel, logOut)

	km, err := keys.Load(config.ExpandPath(cfg.Keymap.Path))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := run(cfg, km, logger); err != nil {
		logger.Error("harmonium stopped", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or the default config file when it exists, on top
// of the defaults.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadConfigFile(path)
	}
	if _, err := os.Stat(config.ExpandPath(defaultConfigPath)); err == nil {
		return config.LoadConfigFile(defaultConfigPath)
	}
	return config.DefaultConfig(), nil
}

// run wires the background workers to the foreground UI and blocks until the
// UI quits or the process is signaled.
func run(cfg config.Config, km *keys.KeyMap, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	logger.Info("starting harmonium", "version", version, "sensor", cfg.Sensor.Source, "keymap", cfg.Keymap.Path, "keys", km.Len())

	// Startup problems that leave the instrument degraded but playable.
	var notices []string

	// Sound output
	var sink audio.Sink = audio.NewNullSink()
	if cfg.Audio.Enabled {
		bs, err := audio.NewBeepSink(cfg.ToBeepConfig(), logger.With("component", "audio"))
		if err != nil {
			logger.Warn("audio unavailable, running silent", "error", err)
			notices = append(notices, err.Error()+" (running silent)")
		} else {
			sink = bs
		}
	} else {
		notices = append(notices, "Audio disabled")
	}
	defer sink.Close()

	// Sensor
	r := relay.New()
	primary, fallback := cfg.ToSensorSources()
	if primary != nil && primary.Name() != cfg.Sensor.Source {
		notices = append(notices, fmt.Sprintf("Using %s bellows", primary.Name()))
	}
	g.Go(func() error {
		// Sensor failures are shown in the UI; they never stop the instrument.
		if err := sensor.Run(gctx, primary, r, cfg.ToRunConfig(fallback), logger.With("component", "sensor")); err != nil {
			logger.Warn("sensor loop ended", "error", err)
		}
		return nil
	})

	// Monitor
	var broadcasts chan monitor.Broadcast
	if cfg.Monitor.Enabled {
		broadcasts = make(chan monitor.Broadcast, 256)
		mon := monitor.NewServer(logger.With("component", "monitor"), monitor.ServerConfig{})
		g.Go(func() error {
			mon.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			mon.RunBroadcaster(gctx, broadcasts)
			return nil
		})
		g.Go(func() error {
			if err := mon.Serve(gctx, cfg.Monitor.Addr); err != nil {
				logger.Error("monitor stopped", "error", err)
			}
			return nil
		})
	}

	// Control socket
	var requests chan control.Request
	if cfg.Control.Enabled {
		requests = make(chan control.Request, 16)
		g.Go(func() error {
			if err := control.Run(gctx, cfg.Control.SocketPath, requests, logger.With("component", "control")); err != nil {
				logger.Error("control socket stopped", "error", err)
			}
			return nil
		})
	}

	// Evdev keyboards
	var keyEvents chan evdev.KeyEvent
	if len(cfg.Input.Devices) > 0 {
		keyEvents = make(chan evdev.KeyEvent, 64)
		g.Go(func() error {
			defer close(keyEvents)
			if err := evdev.Run(gctx, cfg.ToEvdevConfig(), keyEvents, logger.With("component", "evdev")); err != nil {
				logger.Error("input reader stopped", "error", err, "tip", "run as root or add user to 'input' group")
			}
			return nil
		})
	}

	inst := harmonium.NewInstrument(cfg.ToInstrumentConfig(), relay.NewInbox(r), sink, km,
		config.ExpandPath(cfg.Keymap.Path), broadcasts, logger.With("component", "instrument"))

	m := newModel(inst, modelConfig{
		FPS:       cfg.UI.FPS,
		Requests:  requests,
		KeyEvents: keyEvents,
		Notices:   notices,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(gctx))
	_, uiErr := p.Run()

	inst.StopAll()
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("harmonium stopped")

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", uiErr)
	}
	return nil
}
