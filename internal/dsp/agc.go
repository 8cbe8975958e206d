package dsp

const (
	// DefaultAGCTarget is the desired RMS level (linear, ~-14 dBFS).
	DefaultAGCTarget = 0.20

	agcMinGain  = 0.1
	agcMaxGain  = 10.0
	agcAttack   = 0.80
	agcRelease  = 0.02
	agcMinInRMS = 0.001
)

// AGC is a single-channel automatic gain control processor: it monitors the
// short-term RMS of each frame and adjusts a multiplicative gain toward a
// target level using independent attack/release time constants, clamped to
// [agcMinGain, agcMaxGain]. Zero value is not usable; use NewAGC.
type AGC struct {
	target float64
	gain   float64
}

// NewAGC returns an AGC with DefaultAGCTarget and unity gain.
func NewAGC() *AGC { return &AGC{target: DefaultAGCTarget, gain: 1.0} }

// SetTarget sets the desired RMS level from a [0,100] level, mapped to
// [0.01, 0.50].
func (a *AGC) SetTarget(level int) {
	a.target = 0.01 + float64(clampLevel(level))/100.0*0.49
}

// Process applies the current gain to frame in-place and updates the gain
// estimate for next time, returning frame for chaining.
func (a *AGC) Process(frame []float32) []float32 {
	if len(frame) == 0 {
		return frame
	}

	rms := float64(RMS(frame))

	for i, s := range frame {
		v := s * float32(a.gain)
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		frame[i] = v
	}

	if rms < agcMinInRMS {
		return frame
	}

	desired := a.target / rms
	if desired < agcMinGain {
		desired = agcMinGain
	} else if desired > agcMaxGain {
		desired = agcMaxGain
	}

	var coeff float64
	if desired < a.gain {
		coeff = agcAttack
	} else {
		coeff = agcRelease
	}
	a.gain += coeff * (desired - a.gain)

	return frame
}

// Gain returns the current linear gain multiplier (informational, surfaced
// via node stats/telemetry).
func (a *AGC) Gain() float64 { return a.gain }

// Reset resets the gain to unity without changing the target.
func (a *AGC) Reset() { a.gain = 1.0 }
