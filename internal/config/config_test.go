package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"harmonium/internal/sensor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harmonium.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Bellows.Gamma != 2 || cfg.Audio.MasterGain != 0.8 || cfg.Input.HoldTimeoutMS != 600 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
sensor:
  source: midi
  midi:
    port: nanoKONTROL
    controller: 7
bellows:
  gamma: 1.5
  attack_ms: 100
audio:
  master_gain: 1.2
input:
  devices: ["/dev/input/event3"]
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Sensor.Source != SourceMIDI || cfg.Sensor.MIDI.Controller != 7 || cfg.Sensor.MIDI.Channel != -1 {
		t.Errorf("sensor = %+v", cfg.Sensor)
	}
	if cfg.Bellows.Gamma != 1.5 || cfg.Bellows.AttackMS != 100 || cfg.Bellows.ReleaseMS != 400 {
		t.Errorf("bellows = %+v", cfg.Bellows)
	}
	if cfg.Audio.MasterGain != 1.2 || cfg.Audio.SampleRate != 44100 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if len(cfg.Input.Devices) != 1 || cfg.Input.Devices[0] != "/dev/input/event3" {
		t.Errorf("input = %+v", cfg.Input)
	}
}

func TestLoadConfigFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", "sensor:\n  sourse: midi\n", "sourse"},
		{"trailing document", "ui:\n  fps: 30\n---\nui:\n  fps: 20\n", "trailing document"},
		{"bad type", "ui:\n  fps: fast\n", "decode config yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := LoadConfigFile(""); err == nil {
		t.Errorf("empty path must fail")
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("missing file must fail")
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Sensor.Source = "camera" }},
		{"serial without port", func(c *Config) { c.Sensor.Serial.Port = "" }},
		{"midi controller", func(c *Config) { c.Sensor.Source = SourceMIDI; c.Sensor.MIDI.Controller = 128 }},
		{"midi channel", func(c *Config) { c.Sensor.Source = SourceMIDI; c.Sensor.MIDI.Channel = 16 }},
		{"iio without dir", func(c *Config) { c.Sensor.Source = SourceIIO; c.Sensor.IIO.Dir = "" }},
		{"rate", func(c *Config) { c.Sensor.RateHz = 0 }},
		{"negative reconnect", func(c *Config) { c.Sensor.ReconnectMS = -1 }},
		{"negative attack", func(c *Config) { c.Bellows.AttackMS = -5 }},
		{"alpha", func(c *Config) { c.Bellows.EMAAlpha = 1.5 }},
		{"keymap", func(c *Config) { c.Keymap.Path = "" }},
		{"master gain", func(c *Config) { c.Audio.MasterGain = 3 }},
		{"empty device", func(c *Config) { c.Input.Devices = []string{""} }},
		{"fps", func(c *Config) { c.UI.FPS = 0 }},
		{"monitor addr", func(c *Config) { c.Monitor.Enabled = true; c.Monitor.Addr = "" }},
		{"socket", func(c *Config) { c.Control.SocketPath = "" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	source := SourceSynthetic
	fallback := false
	gain := 0.0
	devices := " /dev/input/event1, ,/dev/input/event2"
	level := "debug"
	control := false

	FlagOverrides{
		SensorSource:   &source,
		SensorFallback: &fallback,
		MasterGain:     &gain,
		InputDevices:   &devices,
		LogLevel:       &level,
		ControlEnabled: &control,
	}.Apply(&cfg)

	if cfg.Sensor.Source != SourceSynthetic || cfg.Sensor.FallbackSynthetic {
		t.Errorf("sensor = %+v", cfg.Sensor)
	}
	if cfg.Audio.MasterGain != 0 {
		t.Errorf("zero override must apply, got %v", cfg.Audio.MasterGain)
	}
	if strings.Join(cfg.Input.Devices, "|") != "/dev/input/event1|/dev/input/event2" {
		t.Errorf("devices = %q", cfg.Input.Devices)
	}
	if cfg.Control.Enabled {
		t.Errorf("control socket should be disabled by override")
	}
	if cfg.Logging.Level != "debug" || cfg.Keymap.Path != "keymap.json" {
		t.Errorf("unexpected %+v", cfg)
	}

	FlagOverrides{}.Apply(nil)
}

func TestToSensorSources(t *testing.T) {
	tests := []struct {
		source       string
		fallback     bool
		wantPrimary  string
		wantFallback string
	}{
		{SourceSerial, true, "serial", "synthetic"},
		{SourceSerial, false, "serial", ""},
		{SourceMIDI, true, "midi", "synthetic"},
		{SourceIIO, false, "iio", ""},
		{SourceSynthetic, true, "synthetic", ""},
		{SourceNone, true, "synthetic", ""},
		{SourceNone, false, "", ""},
	}

	name := func(s sensor.Source) string {
		if s == nil {
			return ""
		}
		return s.Name()
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Sensor.Source = tt.source
		cfg.Sensor.FallbackSynthetic = tt.fallback

		primary, fallback := cfg.ToSensorSources()
		if name(primary) != tt.wantPrimary || name(fallback) != tt.wantFallback {
			t.Errorf("%s/%v: got %q, %q", tt.source, tt.fallback, name(primary), name(fallback))
		}
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensor.ReconnectMS = 1500
	cfg.Input.HoldTimeoutMS = 450

	rc := cfg.ToRunConfig(nil)
	if rc.ReconnectDelay != 1500*time.Millisecond || rc.Hz != 60 {
		t.Errorf("run config = %+v", rc)
	}

	ic := cfg.ToInstrumentConfig()
	if ic.HoldTimeout != 450*time.Millisecond || ic.MasterGain != 0.8 || ic.Params != cfg.Bellows {
		t.Errorf("instrument config = %+v", ic)
	}

	bc := cfg.ToBeepConfig()
	if bc.Buffer != 50*time.Millisecond || bc.SampleRate != 44100 || bc.SamplesDir != "harmonium-sounds" {
		t.Errorf("beep config = %+v", bc)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := map[string]string{
		"":              "",
		"/abs/path":     "/abs/path",
		"~":             home,
		"~/x/keymap.js": filepath.Join(home, "x/keymap.js"),
		"~user/x":       "~user/x",
	}
	for in, want := range tests {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}
