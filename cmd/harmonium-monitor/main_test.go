package main

import (
	"strings"
	"testing"
)

func TestPrinter_Format(t *testing.T) {
	p := &printer{step: 0.05, lastAmp: -1}

	got := p.format([]byte(`{"type":"state_init","data":{"volume":0.5,"notes":["C4","E4"],"sensor_status":"Connected. device_source=synthetic"}}`))
	if !strings.HasPrefix(got, "[STATE]") || !strings.Contains(got, "notes=[C4 E4]") || !strings.Contains(got, "sensor=Connected") {
		t.Errorf("state_init = %q", got)
	}

	if got := p.format([]byte(`{"type":"bellows","data":{"amp":0.5,"volume":0.5}}`)); !strings.Contains(got, "amp=0.500") {
		t.Errorf("bellows = %q", got)
	}
	if got := p.format([]byte(`{"type":"bellows","data":{"amp":0.52,"volume":0.52}}`)); got != "" {
		t.Errorf("small move should be skipped, got %q", got)
	}
	if got := p.format([]byte(`{"type":"bellows","data":{"amp":0}}`)); got == "" {
		t.Errorf("drop to zero should print")
	}
	if got := p.format([]byte(`{"type":"bellows","data":{"amp":0}}`)); got != "" {
		t.Errorf("repeated zero should be skipped, got %q", got)
	}

	if got := p.format([]byte(`{"type":"notes_changed","data":{"notes":[]}}`)); got != "[NOTES] -" {
		t.Errorf("notes = %q", got)
	}
	if got := p.format([]byte(`{"type":"sensor_error","data":{"text":"Sensor loop stopped: eof"}}`)); got != "[SENSOR ERROR] Sensor loop stopped: eof" {
		t.Errorf("sensor_error = %q", got)
	}
	if got := p.format([]byte(`not json`)); got != "[TEXT] not json" {
		t.Errorf("raw = %q", got)
	}
}

func TestBar(t *testing.T) {
	if got := bar(0.5, 10); got != "#####....." {
		t.Errorf("bar = %q", got)
	}
}
