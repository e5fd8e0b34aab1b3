// Package sensor produces timestamped bellows angle samples from an external
// device and hands them to the frame loop through a relay.
//
// A Source opens a Device; a Device streams Readings until it fails, its
// context is canceled, or it is closed. Run owns one device at a time, stamps
// each reading with its arrival time, and reports connection status and
// failures as text on the relay.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"harmonium/internal/relay"
)

// ============================================================================
// Device model
// ============================================================================

// Info describes an open device.
type Info struct {
	Source string  // "serial", "midi", "iio", "synthetic"
	Name   string  // port, device path, or descriptive name
	RateHz float64 // requested sample rate; 0 when the device sets its own pace
}

// Reading is one raw angle value as produced by a device.
type Reading struct {
	AngleDeg float64
	Source   string // optional per-reading tag, e.g. "hinge" or "lid"
}

// Device is an open sensor stream.
type Device interface {
	Info() Info
	// Subscribe starts the stream. The returned channel is closed when the
	// stream ends; Err then reports why (nil for cancellation or a clean end).
	// Subscribe must be called at most once.
	Subscribe(ctx context.Context) <-chan Reading
	Err() error
	Close() error
}

// Source opens devices. Opening may be retried after a failure.
type Source interface {
	Name() string
	Open(ctx context.Context, hz float64) (Device, error)
}

// DeviceError reports a sensor that could not be opened or stopped streaming.
type DeviceError struct {
	Source string
	Op     string // "open", "read"
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s sensor %s: %v", e.Source, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// readingBuffer bounds a device's channel. Only the newest angle matters, so
// a full buffer drops its oldest reading instead of stalling the device.
const readingBuffer = 64

// feed is the channel plumbing shared by all devices.
type feed struct {
	info Info

	mu     sync.Mutex
	ch     chan Reading
	closed bool
	err    error
}

func newFeed(info Info) *feed {
	return &feed{
		info: info,
		ch:   make(chan Reading, readingBuffer),
	}
}

func (f *feed) Info() Info { return f.info }

func (f *feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// push delivers r without blocking. It returns false once the feed is done.
func (f *feed) push(r Reading) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- r:
	default:
		select {
		case <-f.ch:
		default:
		}
		f.ch <- r
	}
	return true
}

// finish ends the stream with err (nil for a clean end). Only the first call
// has an effect.
func (f *feed) finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.ch)
}

// ============================================================================
// Runner
// ============================================================================

// RunConfig controls Run.
type RunConfig struct {
	Hz float64

	// ReconnectDelay > 0 reopens the source after it fails or ends.
	ReconnectDelay time.Duration

	// Fallback, when set and reconnect is disabled, replaces the primary
	// source after it fails. It is tried once.
	Fallback Source

	// Now stamps samples; defaults to time.Now.
	Now func() time.Time
}

// errStreamEnded is reported when a device closes its stream without error.
var errStreamEnded = errors.New("stream ended")

// Run streams src into r until ctx is canceled or the source fails for good.
// r is closed on return, so the consumer observes the end of the stream.
//
// Device failures are not returned as fatal errors: they are reported on the
// relay as "Sensor loop stopped: ..." and Run returns the last failure so
// callers can log it. Cancellation returns nil.
func Run(ctx context.Context, src Source, r *relay.Relay, cfg RunConfig, logger *slog.Logger) error {
	defer r.Close()

	if src == nil {
		r.Send(relay.Error("Sensor loop stopped: no sensor source configured"))
		return errors.New("no sensor source configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	usedFallback := false
	for {
		err := runOnce(ctx, src, r, cfg, logger)
		if ctx.Err() != nil {
			logger.Info("sensor stopping (context canceled)", "source", src.Name())
			return nil
		}
		if err == nil {
			err = &DeviceError{Source: src.Name(), Op: "read", Err: errStreamEnded}
		}

		logger.Warn("sensor loop stopped", "source", src.Name(), "error", err)
		if sendErr := r.Send(relay.Error("Sensor loop stopped: %v", err)); sendErr != nil {
			return err
		}

		switch {
		case cfg.ReconnectDelay > 0:
			r.Send(relay.Status("Reconnecting in %s", cfg.ReconnectDelay))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cfg.ReconnectDelay):
			}

		case cfg.Fallback != nil && !usedFallback:
			usedFallback = true
			logger.Info("switching to fallback sensor", "from", src.Name(), "to", cfg.Fallback.Name())
			r.Send(relay.Status("Falling back to %s sensor", cfg.Fallback.Name()))
			src = cfg.Fallback

		default:
			return err
		}
	}
}

func runOnce(ctx context.Context, src Source, r *relay.Relay, cfg RunConfig, logger *slog.Logger) error {
	dev, err := src.Open(ctx, cfg.Hz)
	if err != nil {
		var de *DeviceError
		if !errors.As(err, &de) {
			err = &DeviceError{Source: src.Name(), Op: "open", Err: err}
		}
		return err
	}
	defer dev.Close()

	info := dev.Info()
	logger.Info("sensor connected", "source", info.Source, "device", info.Name, "hz", info.RateHz)
	if err := r.Send(relay.Status("Connected. device_source=%s", info.Source)); err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for reading := range dev.Subscribe(streamCtx) {
		source := reading.Source
		if source == "" {
			source = info.Source
		}
		s := relay.Sample{AngleDeg: reading.AngleDeg, At: cfg.Now(), Source: source}
		if err := r.Send(relay.SampleMsg{Sample: s}); err != nil {
			// Consumer is gone; nothing left to feed.
			return err
		}
	}
	return dev.Err()
}
