package bellows

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

const eps = 1e-9

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEngine_FirstUpdateIsColdStart(t *testing.T) {
	e := NewEngine(DefaultParams())
	t0 := time.Unix(100, 0)

	out := e.Update(42, t0)

	if out.VelocityDegPerS != 0 || out.SpeedRaw != 0 {
		t.Fatalf("expected zero velocity/speed on first update, got velocity=%f speed=%f", out.VelocityDegPerS, out.SpeedRaw)
	}
	if out.Amp != 0 {
		t.Errorf("expected amp=0 on fresh engine, got %f", out.Amp)
	}
	if out.AngleDeg != 42 {
		t.Errorf("expected angle=42, got %f", out.AngleDeg)
	}
	if e.State().Phase != Tracking {
		t.Errorf("expected phase tracking after first update, got %s", e.State().Phase)
	}
}

func TestEngine_ColdStartKeepsLastAmplitude(t *testing.T) {
	s := State{Amp: 0.7, SpeedSmooth: 12}
	next, out := Step(s, DefaultParams(), 10, time.Unix(0, 0))

	if out.Amp != 0.7 {
		t.Errorf("expected cold-start output to carry amp=0.7, got %f", out.Amp)
	}
	if out.SpeedSmooth != 12 {
		t.Errorf("expected cold-start output to carry speed_smooth=12, got %f", out.SpeedSmooth)
	}
	if next.Amp != 0.7 || next.Phase != Tracking {
		t.Errorf("unexpected next state %+v", next)
	}
}

func TestEngine_TinyDtDoesNotDivide(t *testing.T) {
	e := NewEngine(DefaultParams())
	t0 := time.Unix(0, 0)
	e.Update(0, t0)
	before := e.State()

	out := e.Update(90, t0) // dt = 0

	if out.VelocityDegPerS != 0 || math.IsInf(out.SpeedRaw, 0) || math.IsNaN(out.SpeedRaw) {
		t.Fatalf("expected guarded output for dt=0, got %+v", out)
	}
	if e.State() != before {
		t.Errorf("expected state untouched by tiny dt, got %+v want %+v", e.State(), before)
	}

	// The stored previous sample is still the first one.
	out = e.Update(10, t0.Add(100*time.Millisecond))
	if !approxEqual(out.VelocityDegPerS, 100, 1e-6) {
		t.Errorf("expected velocity 100 deg/s relative to first sample, got %f", out.VelocityDegPerS)
	}
}

func TestEngine_VelocitySignAndSpeed(t *testing.T) {
	e := NewEngine(DefaultParams())
	t0 := time.Unix(0, 0)
	e.Update(50, t0)
	out := e.Update(40, t0.Add(500*time.Millisecond))

	if !approxEqual(out.VelocityDegPerS, -20, 1e-9) {
		t.Errorf("expected velocity -20, got %f", out.VelocityDegPerS)
	}
	if !approxEqual(out.SpeedRaw, 20, 1e-9) {
		t.Errorf("expected speed 20, got %f", out.SpeedRaw)
	}
	if !approxEqual(out.Dt, 0.5, 1e-9) {
		t.Errorf("expected dt 0.5, got %f", out.Dt)
	}
	// EMA from 0 with alpha 0.12.
	if !approxEqual(out.SpeedSmooth, 0.12*20, 1e-9) {
		t.Errorf("expected smoothed speed %f, got %f", 0.12*20, out.SpeedSmooth)
	}
}

func TestEngine_ResetMatchesFreshEngine(t *testing.T) {
	p := DefaultParams()
	e := NewEngine(p)
	t0 := time.Unix(10, 0)
	for i := 0; i < 50; i++ {
		e.Update(float64(i*3), t0.Add(time.Duration(i)*16*time.Millisecond))
	}
	if e.Amp() == 0 {
		t.Fatalf("expected some amplitude after pumping")
	}

	e.Reset()
	at := t0.Add(time.Hour)
	got := e.Update(33, at)
	want := NewEngine(p).Update(33, at)

	if got != want {
		t.Errorf("reset engine output %+v != fresh engine output %+v", got, want)
	}
	if e.State() != NewEngine(p).stateAfter(33, at) {
		t.Errorf("reset engine state differs from fresh engine state")
	}
}

// stateAfter is a test helper returning the state after a single update.
func (e *Engine) stateAfter(angle float64, at time.Time) State {
	e.Update(angle, at)
	return e.State()
}

func TestNormalize_WorkedExample(t *testing.T) {
	rp := Params{DeadzoneDegPerS: 8, MaxDegPerS: 50, Gamma: 2}.resolved()

	x := normalize(29, rp.deadzone, rp.maxSpeed)
	if !approxEqual(x, 0.5, eps) {
		t.Fatalf("expected normalized 0.5, got %f", x)
	}
	if target := math.Pow(x, rp.gamma); !approxEqual(target, 0.25, eps) {
		t.Errorf("expected target 0.25, got %f", target)
	}
}

func TestNormalize_Monotonic(t *testing.T) {
	prev := -1.0
	for speed := 0.0; speed <= 100; speed += 0.5 {
		x := normalize(speed, 8, 50)
		if x < prev {
			t.Fatalf("normalize not monotonic at speed %f: %f < %f", speed, x, prev)
		}
		if x < 0 || x > 1 {
			t.Fatalf("normalize out of range at speed %f: %f", speed, x)
		}
		prev = x
	}
	if normalize(8, 8, 50) != 0 {
		t.Errorf("expected 0 at deadzone")
	}
	if normalize(50, 8, 50) != 1 {
		t.Errorf("expected 1 at max speed")
	}
}

// 16 ms against a 250 ms attack moves about 6.2% of the way to the target.
func TestEnvelopeFollow_AttackStep(t *testing.T) {
	got := envelopeFollow(0, 1, 0.016, 0.25, 0.4)
	want := 1 - math.Exp(-0.016/0.25)

	if !approxEqual(got, want, eps) {
		t.Fatalf("expected step %f, got %f", want, got)
	}
	if !approxEqual(got, 0.0620, 1e-4) {
		t.Errorf("expected ~0.0620, got %f", got)
	}
}

func TestEnvelopeFollow_ReleaseUsesReleaseTime(t *testing.T) {
	got := envelopeFollow(1, 0, 0.016, 0.25, 0.4)
	want := 1 - (1 - math.Exp(-0.016/0.4))

	if !approxEqual(got, want, eps) {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestEnvelopeFollow_NonPositiveTauJumps(t *testing.T) {
	if got := envelopeFollow(0.2, 0.9, 0.016, 0, 0.4); got != 0.9 {
		t.Errorf("expected jump to 0.9 with zero attack, got %f", got)
	}
	if got := envelopeFollow(0.9, 0.2, 0.016, 0.25, -5); got != 0.2 {
		t.Errorf("expected jump to 0.2 with negative release, got %f", got)
	}
}

func TestParams_ResolvedInvariants(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want resolvedParams
	}{
		{
			name: "defaults",
			in:   DefaultParams(),
			want: resolvedParams{deadzone: 8, maxSpeed: 50, gamma: 2, alpha: 0.12, attackS: 0.25, releaseS: 0.4},
		},
		{
			name: "gamma zero treated as one, alpha clamped high",
			in:   Params{DeadzoneDegPerS: 1, MaxDegPerS: 2, Gamma: 0, EMAAlpha: 3},
			want: resolvedParams{deadzone: 1, maxSpeed: 2, gamma: 1, alpha: 1},
		},
		{
			name: "negative gamma and alpha",
			in:   Params{MaxDegPerS: 10, Gamma: -2, EMAAlpha: -0.5},
			want: resolvedParams{deadzone: 0, maxSpeed: 10, gamma: 1, alpha: 0},
		},
		{
			name: "max below deadzone floored",
			in:   Params{DeadzoneDegPerS: 20, MaxDegPerS: 5, Gamma: 1, EMAAlpha: 0.5},
			want: resolvedParams{deadzone: 20, maxSpeed: 20 + minSpeedSpan, gamma: 1, alpha: 0.5},
		},
	}

	for _, tt := range tests {
		got := tt.in.resolved()
		if got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestEngine_DegenerateMaxStaysFinite(t *testing.T) {
	e := NewEngine(Params{DeadzoneDegPerS: 10, MaxDegPerS: 10, Gamma: 1, EMAAlpha: 1})
	t0 := time.Unix(0, 0)
	e.Update(0, t0)
	out := e.Update(100, t0.Add(time.Second))

	if math.IsNaN(out.TargetAmp) || math.IsInf(out.TargetAmp, 0) {
		t.Fatalf("expected finite target, got %f", out.TargetAmp)
	}
	if out.TargetAmp != 1 {
		t.Errorf("expected target 1 above a degenerate range, got %f", out.TargetAmp)
	}
}

func TestEngine_AmplitudeBoundedForRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 20; run++ {
		e := NewEngine(DefaultParams())
		at := time.Unix(0, 0)
		for i := 0; i < 2000; i++ {
			angle := rng.Float64()*360 - 180
			if rng.Intn(10) == 0 {
				angle *= 100 // violent jumps
			}
			at = at.Add(time.Duration(1+rng.Intn(40_000)) * time.Microsecond)

			out := e.Update(angle, at)
			if out.Amp < 0 || out.Amp > 1 || math.IsNaN(out.Amp) {
				t.Fatalf("run %d step %d: amplitude out of range: %f", run, i, out.Amp)
			}
			if out.TargetAmp < 0 || out.TargetAmp > 1 {
				t.Fatalf("run %d step %d: target out of range: %f", run, i, out.TargetAmp)
			}
		}
	}
}

func TestEngine_PumpingRaisesAndStillnessReleases(t *testing.T) {
	e := NewEngine(DefaultParams())
	at := time.Unix(0, 0)
	angle := 0.0
	dir := 1.0

	// Pump at 120 deg/s for two seconds at 60 fps.
	for i := 0; i < 120; i++ {
		at = at.Add(16 * time.Millisecond)
		angle += dir * 120 * 0.016
		if angle > 60 || angle < 0 {
			dir = -dir
		}
		e.Update(angle, at)
	}
	peak := e.Amp()
	if peak < 0.5 {
		t.Fatalf("expected substantial amplitude while pumping, got %f", peak)
	}

	// Hold still for two seconds.
	for i := 0; i < 120; i++ {
		at = at.Add(16 * time.Millisecond)
		e.Update(angle, at)
	}
	if e.Amp() >= peak {
		t.Errorf("expected amplitude to fall when still, peak=%f now=%f", peak, e.Amp())
	}
}

func TestEngine_SetParamsKeepsMemory(t *testing.T) {
	e := NewEngine(DefaultParams())
	t0 := time.Unix(0, 0)
	e.Update(0, t0)
	e.Update(10, t0.Add(100*time.Millisecond))
	before := e.State()

	p := DefaultParams()
	p.Gamma = 1
	e.SetParams(p)

	if e.State() != before {
		t.Errorf("expected SetParams to keep filter memory")
	}
	if e.Params().Gamma != 1 {
		t.Errorf("expected gamma 1 after SetParams, got %f", e.Params().Gamma)
	}
}
