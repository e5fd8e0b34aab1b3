package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IIOSource polls a Linux Industrial I/O angle channel, as exposed by laptop
// lid/hinge sensors under /sys/bus/iio/devices/iio:deviceN.
//
// The angle is (raw + offset) * scale, where offset and scale come from the
// channel's (or the device's shared) _offset and _scale attributes when
// present.
type IIOSource struct {
	Dir     string // device directory
	Channel string // e.g. "in_angl0"; empty picks the first in_angl*_raw
}

const defaultPollHz = 60

func (s IIOSource) Name() string { return "iio" }

func (s IIOSource) Open(ctx context.Context, hz float64) (Device, error) {
	ch, err := resolveIIOChannel(s.Dir, s.Channel)
	if err != nil {
		return nil, &DeviceError{Source: "iio", Op: "open", Err: err}
	}

	scale, err := readIIOAttr(s.Dir, ch, "scale", 1)
	if err != nil {
		return nil, &DeviceError{Source: "iio", Op: "open", Err: err}
	}
	offset, err := readIIOAttr(s.Dir, ch, "offset", 0)
	if err != nil {
		return nil, &DeviceError{Source: "iio", Op: "open", Err: err}
	}

	if hz <= 0 {
		hz = defaultPollHz
	}
	d := &iioDevice{
		feed:    newFeed(Info{Source: "iio", Name: filepath.Join(s.Dir, ch), RateHz: hz}),
		rawPath: filepath.Join(s.Dir, ch+"_raw"),
		scale:   scale,
		offset:  offset,
		period:  time.Duration(float64(time.Second) / hz),
	}

	// Fail at open rather than on the first tick if the channel is unreadable.
	if _, err := d.read(); err != nil {
		return nil, &DeviceError{Source: "iio", Op: "open", Err: err}
	}
	return d, nil
}

func resolveIIOChannel(dir, channel string) (string, error) {
	if channel != "" {
		return channel, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "in_angl*_raw"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no in_angl*_raw channel in %s", dir)
	}
	sort.Strings(matches)
	return strings.TrimSuffix(filepath.Base(matches[0]), "_raw"), nil
}

// readIIOAttr reads <channel>_<attr>, then the shared in_angl_<attr>, and
// falls back to def when neither exists.
func readIIOAttr(dir, channel, attr string, def float64) (float64, error) {
	for _, name := range []string{channel + "_" + attr, "in_angl_" + attr} {
		v, err := readFloatFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return v, err
	}
	return def, nil
}

func readFloatFile(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

type iioDevice struct {
	*feed
	rawPath string
	scale   float64
	offset  float64
	period  time.Duration
}

func (d *iioDevice) read() (float64, error) {
	raw, err := readFloatFile(d.rawPath)
	if err != nil {
		return 0, err
	}
	return (raw + d.offset) * d.scale, nil
}

func (d *iioDevice) Subscribe(ctx context.Context) <-chan Reading {
	go func() {
		ticker := time.NewTicker(d.period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				d.finish(nil)
				return
			case <-ticker.C:
				deg, err := d.read()
				if err != nil {
					d.finish(&DeviceError{Source: "iio", Op: "read", Err: err})
					return
				}
				if !d.push(Reading{AngleDeg: deg}) {
					return
				}
			}
		}
	}()
	return d.ch
}

func (d *iioDevice) Close() error {
	d.finish(nil)
	return nil
}
