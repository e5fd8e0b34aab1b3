// Package bellows converts a stream of hinge angles into a bounded loudness
// signal.
//
// The pipeline is:
//
//	angle -> velocity -> |speed| -> EMA -> deadzone/normalize -> gamma curve -> attack/release envelope
//
// Nothing in this package performs I/O or fails; Step is a pure function and
// Engine is a thin single-owner wrapper that keeps the state between frames.
package bellows

import (
	"math"
	"time"
)

// minDt guards the velocity divide. Frames closer together than this carry
// no usable motion information.
const minDt = 1e-6

// Output is a diagnostic snapshot of one update. It is recomputed on every
// call and has no identity of its own.
type Output struct {
	Dt              float64 `json:"dt"`                 // seconds since previous sample
	AngleDeg        float64 `json:"angle_deg"`          // input angle
	VelocityDegPerS float64 `json:"velocity_deg_per_s"` // signed angular velocity
	SpeedRaw        float64 `json:"speed_raw"`          // |velocity|
	SpeedSmooth     float64 `json:"speed_smooth"`       // after EMA
	TargetAmp       float64 `json:"target_amp"`         // after deadzone, normalize and curve
	Amp             float64 `json:"amp"`                // after attack/release envelope
}

// Phase is the two-state machine over the previous-sample memory.
type Phase int

const (
	// Uninitialized: no previous sample; velocity cannot be computed yet.
	Uninitialized Phase = iota
	// Tracking: a previous sample exists.
	Tracking
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Tracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// State is the filter memory carried between updates.
// The zero value is a freshly constructed (cold) state.
type State struct {
	Phase     Phase
	PrevAngle float64   // valid in Tracking
	PrevAt    time.Time // valid in Tracking

	SpeedSmooth float64
	Amp         float64
}

// coldOutput is returned when no velocity can be computed: it carries the
// input angle and the last known amplitude, never a reset amplitude.
func (s State) coldOutput(angle float64) Output {
	return Output{
		AngleDeg:    angle,
		SpeedSmooth: s.SpeedSmooth,
		Amp:         s.Amp,
	}
}

// Step advances the pipeline by one sample. It is pure: the returned State
// replaces s.
func Step(s State, p Params, angle float64, at time.Time) (State, Output) {
	if s.Phase == Uninitialized {
		next := s
		next.Phase = Tracking
		next.PrevAngle = angle
		next.PrevAt = at
		return next, s.coldOutput(angle)
	}

	dt := at.Sub(s.PrevAt).Seconds()
	if dt <= minDt {
		// Too close to divide by; wait for the next valid sample.
		return s, s.coldOutput(angle)
	}

	rp := p.resolved()

	velocity := (angle - s.PrevAngle) / dt
	speedRaw := math.Abs(velocity)

	next := s
	next.SpeedSmooth = ema(s.SpeedSmooth, speedRaw, rp.alpha)

	x := normalize(next.SpeedSmooth, rp.deadzone, rp.maxSpeed)
	target := math.Pow(x, rp.gamma)

	next.Amp = envelopeFollow(s.Amp, target, dt, rp.attackS, rp.releaseS)
	next.PrevAngle = angle
	next.PrevAt = at

	return next, Output{
		Dt:              dt,
		AngleDeg:        angle,
		VelocityDegPerS: velocity,
		SpeedRaw:        speedRaw,
		SpeedSmooth:     next.SpeedSmooth,
		TargetAmp:       target,
		Amp:             next.Amp,
	}
}

// Engine owns a State and a Params snapshot.
//
// Engine is not safe for concurrent use; it belongs to the frame loop.
type Engine struct {
	params Params
	state  State
}

// NewEngine returns a cold engine using p.
func NewEngine(p Params) *Engine {
	return &Engine{params: p}
}

// Update feeds one angle sample taken at time at.
func (e *Engine) Update(angle float64, at time.Time) Output {
	var out Output
	e.state, out = Step(e.state, e.params, angle, at)
	return out
}

// Reset clears the previous sample and the filter memory. The next Update
// behaves exactly like the first Update of a new engine.
func (e *Engine) Reset() {
	e.state = State{}
}

// SetParams swaps the parameter snapshot. Filter memory is kept.
func (e *Engine) SetParams(p Params) {
	e.params = p
}

// Params returns the current parameter snapshot.
func (e *Engine) Params() Params {
	return e.params
}

// State returns a copy of the filter memory.
func (e *Engine) State() State {
	return e.state
}

// Amp returns the last computed amplitude.
func (e *Engine) Amp() float64 {
	return e.state.Amp
}

func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}

// ema is an exponential moving average: prev + alpha*(input-prev).
func ema(prev, input, alpha float64) float64 {
	return prev + alpha*(input-prev)
}

// normalize maps speed into [0,1]: 0 at or below deadzone, 1 at or above
// maxSpeed, linear between. maxSpeed must exceed deadzone.
func normalize(speed, deadzone, maxSpeed float64) float64 {
	return clamp01((speed - deadzone) / (maxSpeed - deadzone))
}

// envelopeFollow moves current toward target with a one-pole filter whose
// time constant depends on direction:
//
//	step = 1 - exp(-dt/tau)
//	current += (target-current)*step
//
// A non-positive time constant jumps straight to target.
func envelopeFollow(current, target, dt, attackS, releaseS float64) float64 {
	tau := releaseS
	if target > current {
		tau = attackS
	}
	if tau <= 0 {
		return target
	}
	step := 1 - math.Exp(-dt/tau)
	return current + (target-current)*step
}
