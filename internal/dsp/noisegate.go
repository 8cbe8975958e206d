package dsp

const (
	// DefaultGateThreshold is the RMS level below which audio is gated
	// (~-40 dBFS).
	DefaultGateThreshold = float32(0.01)

	// DefaultGateHold is the number of frames to keep the gate open after the
	// signal drops below threshold (200 ms at 20 ms/frame).
	DefaultGateHold = 10
)

// Gate is a hard noise gate that zeroes frames below an RMS threshold, with
// a hold period to avoid chopping speech during brief pauses. It runs
// independently of VAD: it cleans the signal before a VAD decides whether to
// transmit. Zero value is not usable; use NewGate.
type Gate struct {
	threshold float32
	hold      int
	remaining int
	enabled   bool
	open      bool
}

// NewGate returns a Gate with DefaultGateThreshold and DefaultGateHold,
// enabled by default.
func NewGate() *Gate {
	return &Gate{threshold: DefaultGateThreshold, hold: DefaultGateHold, enabled: true}
}

// SetEnabled enables or disables the gate; disabled, Process is a no-op.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled = enabled
	if !enabled {
		g.remaining = 0
		g.open = false
	}
}

// Enabled reports whether the gate is currently enabled.
func (g *Gate) Enabled() bool { return g.enabled }

// SetThreshold sets the RMS gate threshold from a [0,100] level, mapped to
// [0.001, 0.10].
func (g *Gate) SetThreshold(level int) {
	g.threshold = 0.001 + float32(clampLevel(level))/100.0*0.099
}

// Threshold returns the current RMS threshold (linear amplitude).
func (g *Gate) Threshold() float32 { return g.threshold }

// IsOpen reports whether the gate is currently passing audio.
func (g *Gate) IsOpen() bool { return g.open }

// Process applies the gate to frame in-place, zeroing it if its RMS is below
// threshold and the hold period has expired. Returns the frame's RMS before
// gating, useful for level meters.
func (g *Gate) Process(frame []float32) float32 {
	rms := RMS(frame)

	if !g.enabled {
		g.open = true
		return rms
	}

	if rms >= g.threshold {
		g.remaining = g.hold
		g.open = true
		return rms
	}

	if g.remaining > 0 {
		g.remaining--
		g.open = true
		return rms
	}

	for i := range frame {
		frame[i] = 0
	}
	g.open = false
	return rms
}

// Reset clears the hold counter without changing settings.
func (g *Gate) Reset() {
	g.remaining = 0
	g.open = false
}
