// Package dsp collects the generic digital-signal-processing building
// blocks shared by several audio node implementations: voice activity
// detection, automatic gain control, a noise gate, and a per-sender jitter
// buffer. Each type is a standalone mono float32 PCM processor a node wraps
// and drives frame-by-frame; none of them know about packets, pins, or the
// engine.
package dsp

import "math"

const (
	// DefaultVADThreshold is the RMS level below which a frame is treated as
	// silence (~-46 dBFS). Low enough to pass quiet speech, high enough to
	// suppress background hum and open-mic noise.
	DefaultVADThreshold = float32(0.005)

	// DefaultHangover is the number of silent frames to keep sending after
	// speech ends (~400 ms at 20 ms/frame). Prevents clipping word endings.
	DefaultHangover = 20
)

// VAD is a single-channel energy-based voice activity detector operating on
// 20 ms frames. A configurable hangover counter keeps it in the active
// (send) state for a fixed number of frames after the last speech frame.
// Zero value is not usable; use NewVAD.
type VAD struct {
	threshold float32
	hangover  int
	remaining int
	enabled   bool
}

// NewVAD returns a VAD with DefaultVADThreshold and DefaultHangover, enabled
// by default.
func NewVAD() *VAD {
	return &VAD{threshold: DefaultVADThreshold, hangover: DefaultHangover, enabled: true}
}

// SetEnabled enables or disables the VAD; disabled, ShouldSend always
// returns true (pass-through).
func (v *VAD) SetEnabled(enabled bool) {
	v.enabled = enabled
	if !enabled {
		v.remaining = 0
	}
}

// Enabled reports whether the VAD is currently enabled.
func (v *VAD) Enabled() bool { return v.enabled }

// SetThreshold sets the RMS silence threshold from a [0,100] sensitivity
// level, mapped to an RMS range of [0.001, 0.05].
func (v *VAD) SetThreshold(level int) {
	v.threshold = 0.001 + float32(clampLevel(level))/100.0*0.049
}

// ShouldSend reports whether a frame with the given RMS energy should be
// transmitted, updating internal hangover state.
func (v *VAD) ShouldSend(rms float32) bool {
	if !v.enabled {
		return true
	}
	if rms > v.threshold {
		v.remaining = v.hangover
		return true
	}
	if v.remaining > 0 {
		v.remaining--
		return true
	}
	return false
}

// ShouldSendProb is like ShouldSend but takes a voice probability (0.0-1.0)
// from an ML-based VAD signal; probability above 0.5 is treated as speech.
func (v *VAD) ShouldSendProb(prob float32) bool {
	if !v.enabled {
		return true
	}
	if prob > 0.5 {
		v.remaining = v.hangover
		return true
	}
	if v.remaining > 0 {
		v.remaining--
		return true
	}
	return false
}

// Reset clears the hangover counter without changing other settings.
func (v *VAD) Reset() { v.remaining = 0 }

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// RMS returns the root-mean-square of a float32 PCM frame.
func RMS(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(frame))))
}
