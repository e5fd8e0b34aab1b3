package bellows

// Params holds the tunable knobs of the bellows pipeline.
//
// Params is a plain value: the engine keeps its own copy, so a caller editing
// a Params live must hand the new snapshot over with Engine.SetParams.
// Out-of-range values are tolerated here and resolved at the point of use
// (see resolved).
type Params struct {
	// Ignore motion slower than this (deg/s). Removes sensor jitter.
	DeadzoneDegPerS float64 `yaml:"deadzone_deg_per_s" json:"deadzone_deg_per_s"`

	// Smoothed speed (deg/s) that counts as "full pumping".
	MaxDegPerS float64 `yaml:"max_deg_per_s" json:"max_deg_per_s"`

	// Curve shaping exponent. >1 makes soft playing easier.
	Gamma float64 `yaml:"gamma" json:"gamma"`

	// EMA factor for speed smoothing, 0..1. Smaller = smoother but slower.
	EMAAlpha float64 `yaml:"ema_alpha" json:"ema_alpha"`

	// Rise time constant of the amplitude envelope (milliseconds).
	AttackMS float64 `yaml:"attack_ms" json:"attack_ms"`

	// Fall time constant of the amplitude envelope (milliseconds).
	ReleaseMS float64 `yaml:"release_ms" json:"release_ms"`
}

const (
	defaultDeadzoneDegPerS = 8.0
	defaultMaxDegPerS      = 50.0
	defaultGamma           = 2.0
	defaultEMAAlpha        = 0.12
	defaultAttackMS        = 250.0
	defaultReleaseMS       = 400.0

	// Minimum span between deadzone and max speed; keeps normalization finite.
	minSpeedSpan = 0.0001
)

// DefaultParams returns the parameters the instrument ships with.
func DefaultParams() Params {
	return Params{
		DeadzoneDegPerS: defaultDeadzoneDegPerS,
		MaxDegPerS:      defaultMaxDegPerS,
		Gamma:           defaultGamma,
		EMAAlpha:        defaultEMAAlpha,
		AttackMS:        defaultAttackMS,
		ReleaseMS:       defaultReleaseMS,
	}
}

// resolvedParams is Params after the point-of-use invariants are applied.
type resolvedParams struct {
	deadzone float64
	maxSpeed float64
	gamma    float64
	alpha    float64
	attackS  float64
	releaseS float64
}

func (p Params) resolved() resolvedParams {
	dead := max(p.DeadzoneDegPerS, 0)
	gamma := p.Gamma
	if gamma <= 0 {
		gamma = 1
	}
	return resolvedParams{
		deadzone: dead,
		maxSpeed: max(p.MaxDegPerS, dead+minSpeedSpan),
		gamma:    gamma,
		alpha:    clamp01(p.EMAAlpha),
		attackS:  p.AttackMS / 1000,
		releaseS: p.ReleaseMS / 1000,
	}
}
