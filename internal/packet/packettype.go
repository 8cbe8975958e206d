package packet

// SampleFormat describes the in-memory encoding of raw audio samples.
type SampleFormat int

const (
	SampleFormatF32 SampleFormat = iota
	SampleFormatS16LE
)

// AudioFormat describes a raw audio stream's shape. A zero value in
// SampleRate or Channels acts as a wildcard during compatibility checks
// SampleFormat has no wildcard and must match exactly.
type AudioFormat struct {
	SampleRate   uint32
	Channels     uint16
	SampleFormat SampleFormat
}

// TypeKind identifies which PacketType variant a value holds.
type TypeKind int

const (
	TypeRawAudio TypeKind = iota
	TypeOpusAudio
	TypeText
	TypeTranscription
	TypeBinary
	TypeAny
	TypePassthrough
	TypeCustom
)

// PacketType is the connection-time/compile-time descriptor used for
// pre-flight validation and runtime connect checks.
type PacketType struct {
	Kind     TypeKind
	RawAudio AudioFormat // meaningful iff Kind == TypeRawAudio
	CustomID string      // meaningful iff Kind == TypeCustom
}

// Any matches any other PacketType during compatibility checks.
func Any() PacketType { return PacketType{Kind: TypeAny} }

// Passthrough is a placeholder type resolved to a concrete type before or
// during connection, inheriting the concrete type of the node's input.
func Passthrough() PacketType { return PacketType{Kind: TypePassthrough} }

// RawAudioType builds a RawAudio descriptor; a zero SampleRate or Channels
// acts as a wildcard.
func RawAudioType(sampleRate uint32, channels uint16, format SampleFormat) PacketType {
	return PacketType{Kind: TypeRawAudio, RawAudio: AudioFormat{SampleRate: sampleRate, Channels: channels, SampleFormat: format}}
}

// OpusAudioType is the compressed-Opus packet descriptor.
func OpusAudioType() PacketType { return PacketType{Kind: TypeOpusAudio} }

// TextType is the plain-text packet descriptor.
func TextType() PacketType { return PacketType{Kind: TypeText} }

// TranscriptionType is the structured transcription packet descriptor.
func TranscriptionType() PacketType { return PacketType{Kind: TypeTranscription} }

// BinaryType is the generic binary packet descriptor.
func BinaryType() PacketType { return PacketType{Kind: TypeBinary} }

// CustomType builds a namespaced custom-event descriptor.
func CustomType(typeID string) PacketType { return PacketType{Kind: TypeCustom, CustomID: typeID} }

// Compatible is the single function every connection request runs through,
// at both pipeline-compile time (oneshot) and connect time (dynamic engine).
// It is deterministic and pure. Passthrough must be resolved by the
// caller before invoking Compatible in contexts where it matters (the
// dynamic engine instead accepts Passthrough optimistically — see
// AcceptsAtConnectTime).
func Compatible(out, in PacketType) bool {
	if out.Kind == TypeAny || in.Kind == TypeAny {
		return true
	}
	if out.Kind != in.Kind {
		return false
	}
	switch out.Kind {
	case TypeRawAudio:
		return audioFormatCompatible(out.RawAudio, in.RawAudio)
	case TypeCustom:
		return out.CustomID == in.CustomID
	default:
		// OpusAudio, Text, Transcription, Binary, Passthrough: reflexive,
		// no further fields to compare.
		return true
	}
}

func audioFormatCompatible(a, b AudioFormat) bool {
	if a.SampleFormat != b.SampleFormat {
		return false
	}
	if !wildcardMatchU32(a.SampleRate, b.SampleRate) {
		return false
	}
	if !wildcardMatchU16(a.Channels, b.Channels) {
		return false
	}
	return true
}

func wildcardMatchU32(a, b uint32) bool {
	return a == 0 || b == 0 || a == b
}

func wildcardMatchU16(a, b uint16) bool {
	return a == 0 || b == 0 || a == b
}

// AcceptsAtConnectTime reports whether a connection from out to in may be
// accepted at dynamic-engine connect time, before any packet has flowed.
// Passthrough on either side is accepted unconditionally: the dynamic
// engine resolves it only once data flows. All other pairs fall through to
// Compatible.
func AcceptsAtConnectTime(out, in PacketType) bool {
	if out.Kind == TypePassthrough || in.Kind == TypePassthrough {
		return true
	}
	return Compatible(out, in)
}
