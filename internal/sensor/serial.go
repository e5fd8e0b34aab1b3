package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// SerialSource reads an angle sensor that prints one reading per line, e.g.
// from a microcontroller:
//
//	87.25
//	87.31 hinge
//	87.40,lid
//
// The first field is degrees; an optional second field tags the reading.
// Blank lines, comments (#) and unparseable lines are skipped.
type SerialSource struct {
	Port string
	Baud int
}

func (s SerialSource) Name() string { return "serial" }

func (s SerialSource) Open(ctx context.Context, hz float64) (Device, error) {
	if s.Port == "" {
		return nil, &DeviceError{Source: "serial", Op: "open", Err: errors.New("no port configured")}
	}
	baud := s.Baud
	if baud <= 0 {
		baud = 115200
	}

	p, err := serial.Open(s.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, &DeviceError{Source: "serial", Op: "open", Err: fmt.Errorf("%s at %d baud: %w", s.Port, baud, err)}
	}
	return newLineDevice(Info{Source: "serial", Name: s.Port}, p), nil
}

// lineDevice streams readings parsed from a line-oriented byte stream.
type lineDevice struct {
	*feed
	rc io.ReadCloser
}

func newLineDevice(info Info, rc io.ReadCloser) *lineDevice {
	return &lineDevice{feed: newFeed(info), rc: rc}
}

func (d *lineDevice) Subscribe(ctx context.Context) <-chan Reading {
	done := make(chan struct{})

	// Closing the port is the only way to interrupt a blocked read.
	go func() {
		select {
		case <-ctx.Done():
			d.rc.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(done)
		br := bufio.NewReader(d.rc)
		for {
			line, err := br.ReadString('\n')
			if r, ok := parseLine(line); ok {
				if !d.push(r) {
					return
				}
			}
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					d.finish(nil)
				} else {
					d.finish(&DeviceError{Source: d.info.Source, Op: "read", Err: err})
				}
				return
			}
		}
	}()

	return d.ch
}

func (d *lineDevice) Close() error {
	d.finish(nil)
	return d.rc.Close()
}

// parseLine extracts a reading from one line of sensor output.
func parseLine(line string) (Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Reading{}, false
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return Reading{}, false
	}

	deg, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return Reading{}, false
	}
	r := Reading{AngleDeg: deg}
	if len(fields) > 1 {
		r.Source = fields[1]
	}
	return r, true
}
