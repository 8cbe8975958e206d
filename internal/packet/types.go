package packet

import "encoding/json"

// Kind identifies which variant of Packet a value holds.
type Kind int

const (
	KindAudio Kind = iota
	KindText
	KindTranscription
	KindBinary
	KindCustom
)

// TranscriptionSegment is a single timed segment of transcribed text.
type TranscriptionSegment struct {
	Text        string
	StartTimeMs uint64
	EndTimeMs   uint64
	Confidence  *float32
}

// TranscriptionData is structured transcription output with timing.
type TranscriptionData struct {
	Text     string
	Segments []TranscriptionSegment
	Language *string
	Metadata *PacketMetadata
}

// CustomEncoding is the encoding used for a Packet's Custom payload.
type CustomEncoding int

const (
	// EncodingJSON is presently the only supported encoding.
	EncodingJSON CustomEncoding = iota
)

// CustomPacketData is an extensible, structured payload used for
// non-media events (VAD markers, telemetry envelopes, plugin output).
type CustomPacketData struct {
	TypeID   string
	Encoding CustomEncoding
	Data     json.RawMessage
	Metadata *PacketMetadata
}

// Packet is the unit of data in flight between node pins. Exactly one of
// the accessor methods for Kind() is meaningful at a time. A Packet is
// always cheap to copy by value: heavy payloads live behind shared-ownership
// handles (AudioFrame's refcounted samples; pointers for Text/Transcription/
// Custom/Binary).
type Packet struct {
	kind Kind

	audio         AudioFrame
	text          *string
	transcription *TranscriptionData
	custom        *CustomPacketData

	binaryData        []byte
	binaryContentType *string
	binaryMetadata    *PacketMetadata
}

// Kind reports which variant this packet holds.
func (p Packet) Kind() Kind { return p.kind }

// Clone returns a packet safe to hand to a second, independent consumer.
// For Audio packets this bumps the underlying sample storage's refcount
// (a packet must stay cheap to clone); every other variant is already behind
// a plain pointer or immutable value, so a struct copy is enough — Go's
// garbage collector, unlike the pool-backed AudioFrame, needs no manual
// refcount for those. Callers fanning a packet out to more than one
// destination must call Clone for each extra destination, not just copy
// the struct, or the pool will reclaim shared audio storage too early.
func (p Packet) Clone() Packet {
	if p.kind == KindAudio {
		p.audio = p.audio.Clone()
	}
	return p
}

// NewAudioPacket wraps an AudioFrame.
func NewAudioPacket(frame AudioFrame) Packet {
	return Packet{kind: KindAudio, audio: frame}
}

// Audio returns the wrapped AudioFrame and whether the packet holds one.
func (p Packet) Audio() (AudioFrame, bool) {
	return p.audio, p.kind == KindAudio
}

// NewTextPacket wraps a shared, immutable string.
func NewTextPacket(text string) Packet {
	return Packet{kind: KindText, text: &text}
}

// Text returns the wrapped string and whether the packet holds one.
func (p Packet) Text() (string, bool) {
	if p.kind != KindText || p.text == nil {
		return "", false
	}
	return *p.text, true
}

// NewTranscriptionPacket wraps transcription data behind a shared pointer.
func NewTranscriptionPacket(data *TranscriptionData) Packet {
	return Packet{kind: KindTranscription, transcription: data}
}

// Transcription returns the wrapped transcription data and whether present.
func (p Packet) Transcription() (*TranscriptionData, bool) {
	return p.transcription, p.kind == KindTranscription
}

// NewBinaryPacket wraps an opaque byte run with optional content type and
// timing metadata.
func NewBinaryPacket(data []byte, contentType *string, metadata *PacketMetadata) Packet {
	return Packet{kind: KindBinary, binaryData: data, binaryContentType: contentType, binaryMetadata: metadata}
}

// Binary returns the wrapped byte run, content type, and metadata.
func (p Packet) Binary() ([]byte, *string, *PacketMetadata, bool) {
	return p.binaryData, p.binaryContentType, p.binaryMetadata, p.kind == KindBinary
}

// NewCustomPacket wraps a structured, namespaced event behind a shared
// pointer (VAD markers, telemetry envelopes, plugin output).
func NewCustomPacket(data *CustomPacketData) Packet {
	return Packet{kind: KindCustom, custom: data}
}

// Custom returns the wrapped structured payload and whether present.
func (p Packet) Custom() (*CustomPacketData, bool) {
	return p.custom, p.kind == KindCustom
}
