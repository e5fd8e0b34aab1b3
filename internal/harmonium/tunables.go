package harmonium

import (
	"math"

	"harmonium/internal/bellows"
)

// Tunable is one live-adjustable bellows parameter.
type Tunable struct {
	Name string
	Unit string
	Step float64
	Min  float64
	Max  float64 // zero means unbounded

	get func(bellows.Params) float64
	set func(*bellows.Params, float64)
}

// Get reads the parameter from p.
func (t Tunable) Get(p bellows.Params) float64 { return t.get(p) }

// Nudge moves the parameter by steps increments, kept within [Min, Max].
func (t Tunable) Nudge(p bellows.Params, steps int) bellows.Params {
	v := t.get(p) + float64(steps)*t.Step
	v = math.Max(v, t.Min)
	if t.Max > 0 {
		v = math.Min(v, t.Max)
	}
	// Keep decimal steps from drifting (0.1+0.2 and friends).
	v = math.Round(v*1e6) / 1e6
	t.set(&p, v)
	return p
}

// Tunables lists the parameters in display order.
var Tunables = []Tunable{
	{
		Name: "deadzone", Unit: "deg/s", Step: 1, Min: 0,
		get: func(p bellows.Params) float64 { return p.DeadzoneDegPerS },
		set: func(p *bellows.Params, v float64) { p.DeadzoneDegPerS = v },
	},
	{
		Name: "max speed", Unit: "deg/s", Step: 5, Min: 1,
		get: func(p bellows.Params) float64 { return p.MaxDegPerS },
		set: func(p *bellows.Params, v float64) { p.MaxDegPerS = v },
	},
	{
		Name: "gamma", Step: 0.1, Min: 0.1, Max: 5,
		get: func(p bellows.Params) float64 { return p.Gamma },
		set: func(p *bellows.Params, v float64) { p.Gamma = v },
	},
	{
		Name: "ema alpha", Step: 0.01, Min: 0.01, Max: 1,
		get: func(p bellows.Params) float64 { return p.EMAAlpha },
		set: func(p *bellows.Params, v float64) { p.EMAAlpha = v },
	},
	{
		Name: "attack", Unit: "ms", Step: 10, Min: 0,
		get: func(p bellows.Params) float64 { return p.AttackMS },
		set: func(p *bellows.Params, v float64) { p.AttackMS = v },
	},
	{
		Name: "release", Unit: "ms", Step: 10, Min: 0,
		get: func(p bellows.Params) float64 { return p.ReleaseMS },
		set: func(p *bellows.Params, v float64) { p.ReleaseMS = v },
	},
}

// masterGainStep is the increment used by NudgeMasterGain.
const masterGainStep = 0.05

// NudgeParam moves Tunables[i] by steps increments.
func (in *Instrument) NudgeParam(i, steps int) {
	if i < 0 || i >= len(Tunables) {
		return
	}
	in.SetParams(Tunables[i].Nudge(in.Params(), steps))
}

// NudgeMasterGain moves the master gain by steps increments.
func (in *Instrument) NudgeMasterGain(steps int) {
	g := in.masterGain + float64(steps)*masterGainStep
	in.SetMasterGain(math.Round(g*1e6) / 1e6)
}
