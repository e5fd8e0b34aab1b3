package sensor

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// MIDISource turns a continuous controller into an angle: a bellows pot or
// hinge encoder wired to a MIDI interface, or a mod wheel for testing.
// Values 0..127 map linearly onto [MinDeg, MaxDeg].
type MIDISource struct {
	Port       string // case-insensitive substring of the input port name; empty picks the first port
	Controller uint8
	Channel    int // 0-15, or -1 for any channel
	MinDeg     float64
	MaxDeg     float64
}

func (s MIDISource) Name() string { return "midi" }

func (s MIDISource) Open(ctx context.Context, hz float64) (Device, error) {
	in, err := findInPort(s.Port)
	if err != nil {
		return nil, &DeviceError{Source: "midi", Op: "open", Err: err}
	}
	if err := in.Open(); err != nil {
		return nil, &DeviceError{Source: "midi", Op: "open", Err: fmt.Errorf("open %q: %w", in.String(), err)}
	}
	return &midiDevice{
		feed: newFeed(Info{Source: "midi", Name: in.String()}),
		in:   in,
		src:  s,
	}, nil
}

func findInPort(pattern string) (drivers.In, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI input ports")
	}
	if pattern == "" {
		return ins[0], nil
	}
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(pattern)) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input matching %q", pattern)
}

type midiDevice struct {
	*feed
	in   drivers.In
	src  MIDISource
	stop func()
}

func (d *midiDevice) Subscribe(ctx context.Context) <-chan Reading {
	stop, err := midi.ListenTo(d.in, func(msg midi.Message, _ int32) {
		var ch, cc, val uint8
		if !msg.GetControlChange(&ch, &cc, &val) {
			return
		}
		if cc != d.src.Controller || (d.src.Channel >= 0 && int(ch) != d.src.Channel) {
			return
		}
		d.push(Reading{AngleDeg: ccToDegrees(val, d.src.MinDeg, d.src.MaxDeg)})
	}, midi.HandleError(func(listenErr error) {
		d.finish(&DeviceError{Source: "midi", Op: "read", Err: listenErr})
	}))
	if err != nil {
		d.finish(&DeviceError{Source: "midi", Op: "read", Err: fmt.Errorf("listen: %w", err)})
		return d.ch
	}
	d.stop = stop

	go func() {
		<-ctx.Done()
		d.finish(nil)
	}()
	return d.ch
}

func (d *midiDevice) Close() error {
	d.finish(nil)
	if d.stop != nil {
		d.stop()
	}
	return d.in.Close()
}

// ccToDegrees maps a 7-bit controller value onto [minDeg, maxDeg].
func ccToDegrees(val uint8, minDeg, maxDeg float64) float64 {
	if val > 127 {
		val = 127
	}
	return minDeg + float64(val)/127*(maxDeg-minDeg)
}
