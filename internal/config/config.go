// Package config loads the harmonium's YAML configuration.
//
// Precedence is defaults, then the config file, then command-line flag
// overrides. Validate runs last so the rest of the code can assume a
// well-formed config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"harmonium/internal/audio"
	"harmonium/internal/bellows"
	"harmonium/internal/evdev"
	"harmonium/internal/harmonium"
	"harmonium/internal/keys"
	"harmonium/internal/sensor"
)

// Config is the top-level YAML configuration.
type Config struct {
	Sensor  SensorConfig   `yaml:"sensor"`
	Bellows bellows.Params `yaml:"bellows"`
	Keymap  KeymapConfig   `yaml:"keymap"`
	Audio   AudioConfig    `yaml:"audio"`
	Input   InputConfig    `yaml:"input"`
	UI      UIConfig       `yaml:"ui"`
	Monitor MonitorConfig  `yaml:"monitor"`
	Control ControlConfig  `yaml:"control"`
	Logging LoggingConfig  `yaml:"logging"`
}

// Sensor source names.
const (
	SourceSerial    = "serial"
	SourceMIDI      = "midi"
	SourceIIO       = "iio"
	SourceSynthetic = "synthetic"
	SourceNone      = "none"
)

type SensorConfig struct {
	Source      string  `yaml:"source"`
	RateHz      float64 `yaml:"rate_hz"`
	ReconnectMS int     `yaml:"reconnect_ms"`

	// FallbackSynthetic plays the synthetic bellows when the configured
	// sensor is missing or fails.
	FallbackSynthetic bool `yaml:"fallback_synthetic"`

	Serial    SerialConfig    `yaml:"serial"`
	MIDI      MIDIConfig      `yaml:"midi"`
	IIO       IIOConfig       `yaml:"iio"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type MIDIConfig struct {
	Port       string  `yaml:"port"`
	Controller int     `yaml:"controller"`
	Channel    int     `yaml:"channel"` // -1 for any
	MinDeg     float64 `yaml:"min_deg"`
	MaxDeg     float64 `yaml:"max_deg"`
}

type IIOConfig struct {
	Dir     string `yaml:"dir"`
	Channel string `yaml:"channel,omitempty"`
}

type SyntheticConfig struct {
	PeriodMS int     `yaml:"period_ms"`
	MinDeg   float64 `yaml:"min_deg"`
	MaxDeg   float64 `yaml:"max_deg"`
}

type KeymapConfig struct {
	Path string `yaml:"path"`
}

type AudioConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SamplesDir string  `yaml:"samples_dir"`
	SampleRate int     `yaml:"sample_rate"`
	BufferMS   int     `yaml:"buffer_ms"`
	MasterGain float64 `yaml:"master_gain"`
}

type InputConfig struct {
	// Devices are evdev keyboards read in addition to the terminal.
	Devices       []string `yaml:"devices,omitempty"`
	Grab          bool     `yaml:"grab"`
	HoldTimeoutMS int      `yaml:"hold_timeout_ms"`
}

type UIConfig struct {
	FPS int `yaml:"fps"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ControlConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Source:            SourceSerial,
			RateHz:            60,
			ReconnectMS:       0,
			FallbackSynthetic: true,
			Serial: SerialConfig{
				Port: "/dev/ttyACM0",
				Baud: 115200,
			},
			MIDI: MIDIConfig{
				Controller: 1,
				Channel:    -1,
				MinDeg:     0,
				MaxDeg:     120,
			},
			IIO: IIOConfig{
				Dir: "/sys/bus/iio/devices/iio:device0",
			},
			Synthetic: SyntheticConfig{
				PeriodMS: 4000,
				MinDeg:   20,
				MaxDeg:   120,
			},
		},
		Bellows: bellows.DefaultParams(),
		Keymap: KeymapConfig{
			Path: "keymap.json",
		},
		Audio: AudioConfig{
			Enabled:    true,
			SamplesDir: "harmonium-sounds",
			SampleRate: 44100,
			BufferMS:   50,
			MasterGain: audio.DefaultMasterGain,
		},
		Input: InputConfig{
			Grab:          false,
			HoldTimeoutMS: int(keys.DefaultHoldTimeout / time.Millisecond),
		},
		UI: UIConfig{
			FPS: 60,
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Addr:    "127.0.0.1:3002",
		},
		Control: ControlConfig{
			Enabled:    true,
			SocketPath: "/tmp/harmonium.sock",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.config/harmonium/harmonium.log",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds command-line overrides. Each non-nil pointer is
// applied, even when it points to a zero value.
type FlagOverrides struct {
	SensorSource      *string
	SensorRateHz      *float64
	SensorReconnectMS *int
	SensorFallback    *bool
	SerialPort        *string
	SerialBaud        *int
	MIDIPort          *string
	MIDIController    *int
	IIODir            *string

	KeymapPath *string

	AudioEnabled    *bool
	AudioSamplesDir *string
	MasterGain      *float64

	InputDevices *string // comma-separated

	FPS *int

	MonitorEnabled *bool
	MonitorAddr    *string

	ControlEnabled *bool
	SocketPath     *string

	LogLevel *string
	LogFile  *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.SensorSource != nil {
		cfg.Sensor.Source = *o.SensorSource
	}
	if o.SensorRateHz != nil {
		cfg.Sensor.RateHz = *o.SensorRateHz
	}
	if o.SensorReconnectMS != nil {
		cfg.Sensor.ReconnectMS = *o.SensorReconnectMS
	}
	if o.SensorFallback != nil {
		cfg.Sensor.FallbackSynthetic = *o.SensorFallback
	}
	if o.SerialPort != nil {
		cfg.Sensor.Serial.Port = *o.SerialPort
	}
	if o.SerialBaud != nil {
		cfg.Sensor.Serial.Baud = *o.SerialBaud
	}
	if o.MIDIPort != nil {
		cfg.Sensor.MIDI.Port = *o.MIDIPort
	}
	if o.MIDIController != nil {
		cfg.Sensor.MIDI.Controller = *o.MIDIController
	}
	if o.IIODir != nil {
		cfg.Sensor.IIO.Dir = *o.IIODir
	}

	if o.KeymapPath != nil {
		cfg.Keymap.Path = *o.KeymapPath
	}

	if o.AudioEnabled != nil {
		cfg.Audio.Enabled = *o.AudioEnabled
	}
	if o.AudioSamplesDir != nil {
		cfg.Audio.SamplesDir = *o.AudioSamplesDir
	}
	if o.MasterGain != nil {
		cfg.Audio.MasterGain = *o.MasterGain
	}

	if o.InputDevices != nil {
		cfg.Input.Devices = splitList(*o.InputDevices)
	}

	if o.FPS != nil {
		cfg.UI.FPS = *o.FPS
	}

	if o.MonitorEnabled != nil {
		cfg.Monitor.Enabled = *o.MonitorEnabled
	}
	if o.MonitorAddr != nil {
		cfg.Monitor.Addr = *o.MonitorAddr
	}

	if o.ControlEnabled != nil {
		cfg.Control.Enabled = *o.ControlEnabled
	}
	if o.SocketPath != nil {
		cfg.Control.SocketPath = *o.SocketPath
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Logging.File = *o.LogFile
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	// Sensor
	switch c.Sensor.Source {
	case SourceSerial:
		if c.Sensor.Serial.Port == "" {
			return errors.New("sensor.serial.port must not be empty")
		}
		if c.Sensor.Serial.Baud <= 0 {
			return errors.New("sensor.serial.baud must be > 0")
		}
	case SourceMIDI:
		if c.Sensor.MIDI.Controller < 0 || c.Sensor.MIDI.Controller > 127 {
			return errors.New("sensor.midi.controller must be between 0 and 127")
		}
		if c.Sensor.MIDI.Channel < -1 || c.Sensor.MIDI.Channel > 15 {
			return errors.New("sensor.midi.channel must be between 0 and 15, or -1 for any")
		}
		if c.Sensor.MIDI.MinDeg == c.Sensor.MIDI.MaxDeg {
			return errors.New("sensor.midi.min_deg and sensor.midi.max_deg must differ")
		}
	case SourceIIO:
		if c.Sensor.IIO.Dir == "" {
			return errors.New("sensor.iio.dir must not be empty")
		}
	case SourceSynthetic, SourceNone:
	default:
		return fmt.Errorf("sensor.source must be one of %q, %q, %q, %q or %q",
			SourceSerial, SourceMIDI, SourceIIO, SourceSynthetic, SourceNone)
	}
	if c.Sensor.RateHz <= 0 || c.Sensor.RateHz > 1000 {
		return errors.New("sensor.rate_hz must be between 1 and 1000")
	}
	if c.Sensor.ReconnectMS < 0 {
		return errors.New("sensor.reconnect_ms must be >= 0")
	}
	if c.Sensor.Synthetic.PeriodMS <= 0 {
		return errors.New("sensor.synthetic.period_ms must be > 0")
	}

	// Bellows: out-of-range values are tolerated by the engine, but negative
	// times and speeds are always typos.
	if c.Bellows.DeadzoneDegPerS < 0 || c.Bellows.MaxDegPerS < 0 {
		return errors.New("bellows speeds must be >= 0")
	}
	if c.Bellows.AttackMS < 0 || c.Bellows.ReleaseMS < 0 {
		return errors.New("bellows.attack_ms and bellows.release_ms must be >= 0")
	}
	if c.Bellows.EMAAlpha < 0 || c.Bellows.EMAAlpha > 1 {
		return errors.New("bellows.ema_alpha must be between 0 and 1")
	}

	// Keymap
	if c.Keymap.Path == "" {
		return errors.New("keymap.path must not be empty")
	}

	// Audio
	if c.Audio.Enabled && c.Audio.SamplesDir == "" {
		return errors.New("audio.samples_dir must not be empty")
	}
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be > 0")
	}
	if c.Audio.BufferMS <= 0 {
		return errors.New("audio.buffer_ms must be > 0")
	}
	if c.Audio.MasterGain < 0 || c.Audio.MasterGain > audio.MaxMasterGain {
		return fmt.Errorf("audio.master_gain must be between 0 and %g", audio.MaxMasterGain)
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.HoldTimeoutMS <= 0 {
		return errors.New("input.hold_timeout_ms must be > 0")
	}

	// UI
	if c.UI.FPS <= 0 || c.UI.FPS > 240 {
		return errors.New("ui.fps must be between 1 and 240")
	}

	// Monitor and control
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return errors.New("monitor.enabled is true but monitor.addr is empty")
	}
	if c.Control.Enabled && c.Control.SocketPath == "" {
		return errors.New("control.enabled is true but control.socket_path is empty")
	}

	// Logging
	switch c.Logging.Level {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("logging.level must be error, warn, info or debug (got %q)", c.Logging.Level)
	}

	return nil
}

// ToSensorSources returns the primary sensor source and the synthetic
// fallback. A primary of nil means no sensor is configured; with fallback
// enabled the synthetic source takes its place.
func (c *Config) ToSensorSources() (primary, fallback sensor.Source) {
	synthetic := sensor.SyntheticSource{
		Period: time.Duration(c.Sensor.Synthetic.PeriodMS) * time.Millisecond,
		MinDeg: c.Sensor.Synthetic.MinDeg,
		MaxDeg: c.Sensor.Synthetic.MaxDeg,
	}

	switch c.Sensor.Source {
	case SourceSerial:
		primary = sensor.SerialSource{
			Port: ExpandPath(c.Sensor.Serial.Port),
			Baud: c.Sensor.Serial.Baud,
		}
	case SourceMIDI:
		primary = sensor.MIDISource{
			Port:       c.Sensor.MIDI.Port,
			Controller: uint8(c.Sensor.MIDI.Controller),
			Channel:    c.Sensor.MIDI.Channel,
			MinDeg:     c.Sensor.MIDI.MinDeg,
			MaxDeg:     c.Sensor.MIDI.MaxDeg,
		}
	case SourceIIO:
		primary = sensor.IIOSource{Dir: c.Sensor.IIO.Dir, Channel: c.Sensor.IIO.Channel}
	case SourceSynthetic:
		return synthetic, nil
	}

	if !c.Sensor.FallbackSynthetic {
		return primary, nil
	}
	if primary == nil {
		return synthetic, nil
	}
	return primary, synthetic
}

// ToRunConfig converts the sensor section into the sensor loop settings.
func (c *Config) ToRunConfig(fallback sensor.Source) sensor.RunConfig {
	return sensor.RunConfig{
		Hz:             c.Sensor.RateHz,
		ReconnectDelay: time.Duration(c.Sensor.ReconnectMS) * time.Millisecond,
		Fallback:       fallback,
	}
}

// ToInstrumentConfig converts the bellows, audio and input sections into the
// instrument's starting settings.
func (c *Config) ToInstrumentConfig() harmonium.Config {
	return harmonium.Config{
		Params:      c.Bellows,
		MasterGain:  c.Audio.MasterGain,
		HoldTimeout: time.Duration(c.Input.HoldTimeoutMS) * time.Millisecond,
	}
}

// ToBeepConfig converts the audio section into sound output settings.
func (c *Config) ToBeepConfig() audio.BeepConfig {
	return audio.BeepConfig{
		SamplesDir: ExpandPath(c.Audio.SamplesDir),
		SampleRate: c.Audio.SampleRate,
		Buffer:     time.Duration(c.Audio.BufferMS) * time.Millisecond,
	}
}

// ToEvdevConfig converts the input section into keyboard reader settings.
func (c *Config) ToEvdevConfig() evdev.Config {
	devices := make([]string, len(c.Input.Devices))
	for i, d := range c.Input.Devices {
		devices[i] = ExpandPath(d)
	}
	return evdev.Config{Devices: devices, Grab: c.Input.Grab}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
