package main

import (
	"testing"
	"time"

	"harmonium/internal/control"
)

func TestParseCommand(t *testing.T) {
	steps, err := parseCommand([]string{"tap", "a", "250"})
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 || steps[0].ev != (control.KeyDown{Key: "a"}) || steps[0].pause != 250*time.Millisecond ||
		steps[1].ev != (control.KeyUp{Key: "a"}) {
		t.Errorf("tap = %+v", steps)
	}

	steps, err = parseCommand([]string{"set", "gamma", "1.5"})
	if err != nil {
		t.Fatal(err)
	}
	sp, ok := steps[0].ev.(control.SetParams)
	if !ok || sp.Gamma == nil || *sp.Gamma != 1.5 || sp.AttackMS != nil {
		t.Errorf("set = %+v", steps[0].ev)
	}

	steps, err = parseCommand([]string{"reload", "/tmp/km.yaml"})
	if err != nil || steps[0].ev != (control.ReloadKeymap{Path: "/tmp/km.yaml"}) {
		t.Errorf("reload = %+v, %v", steps, err)
	}

	for _, args := range [][]string{
		{"press"},
		{"tap", "a", "-5"},
		{"set", "gamma"},
		{"set", "volume", "3"},
		{"gain", "loud"},
		{"dance"},
	} {
		if _, err := parseCommand(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}
