package sensor

import (
	"context"
	"math"
	"time"
)

// SyntheticSource pumps an imaginary bellows back and forth between MinDeg
// and MaxDeg at a constant angular speed. It is used when no hardware is
// present and for demos.
type SyntheticSource struct {
	Period time.Duration // one full open-close cycle
	MinDeg float64
	MaxDeg float64
}

// DefaultSynthetic opens and closes over 100 degrees every 4 seconds, which
// is 50 deg/s: right at the default full-loudness speed.
func DefaultSynthetic() SyntheticSource {
	return SyntheticSource{Period: 4 * time.Second, MinDeg: 20, MaxDeg: 120}
}

func (s SyntheticSource) Name() string { return "synthetic" }

func (s SyntheticSource) Open(ctx context.Context, hz float64) (Device, error) {
	if hz <= 0 {
		hz = defaultPollHz
	}
	if s.Period <= 0 {
		s.Period = DefaultSynthetic().Period
	}
	return &syntheticDevice{
		feed:   newFeed(Info{Source: "synthetic", Name: "triangle", RateHz: hz}),
		src:    s,
		period: time.Duration(float64(time.Second) / hz),
	}, nil
}

type syntheticDevice struct {
	*feed
	src    SyntheticSource
	period time.Duration
}

func (d *syntheticDevice) Subscribe(ctx context.Context) <-chan Reading {
	go func() {
		ticker := time.NewTicker(d.period)
		defer ticker.Stop()
		start := time.Now()

		for {
			select {
			case <-ctx.Done():
				d.finish(nil)
				return
			case now := <-ticker.C:
				phase := now.Sub(start).Seconds() / d.src.Period.Seconds()
				deg := d.src.MinDeg + triangle(phase)*(d.src.MaxDeg-d.src.MinDeg)
				if !d.push(Reading{AngleDeg: deg}) {
					return
				}
			}
		}
	}()
	return d.ch
}

func (d *syntheticDevice) Close() error {
	d.finish(nil)
	return nil
}

// triangle maps a phase in cycles to [0,1]: rising over the first half,
// falling over the second.
func triangle(phase float64) float64 {
	frac := phase - math.Floor(phase)
	if frac < 0.5 {
		return frac * 2
	}
	return 2 - frac*2
}
