package packet

import "testing"

func TestCompatibleAnyIsSymmetricWithEverything(t *testing.T) {
	types := []PacketType{
		RawAudioType(48000, 1, SampleFormatF32),
		OpusAudioType(),
		TextType(),
		TranscriptionType(),
		BinaryType(),
		CustomType("vad.marker"),
		Passthrough(),
	}
	for _, ty := range types {
		if !Compatible(Any(), ty) {
			t.Fatalf("Any() should be compatible with %+v", ty)
		}
		if !Compatible(ty, Any()) {
			t.Fatalf("%+v should be compatible with Any()", ty)
		}
	}
	if !Compatible(Any(), Any()) {
		t.Fatalf("Any() should be compatible with itself")
	}
}

func TestCompatibleReflexiveForConcreteTypes(t *testing.T) {
	types := []PacketType{
		OpusAudioType(),
		TextType(),
		TranscriptionType(),
		BinaryType(),
	}
	for _, ty := range types {
		if !Compatible(ty, ty) {
			t.Fatalf("%+v should be compatible with itself", ty)
		}
	}
}

func TestCompatibleRawAudioWildcards(t *testing.T) {
	wildcardRate := RawAudioType(0, 1, SampleFormatF32)
	concrete := RawAudioType(48000, 1, SampleFormatF32)
	if !Compatible(wildcardRate, concrete) {
		t.Fatalf("wildcard sample rate should match any concrete rate")
	}
	if !Compatible(concrete, wildcardRate) {
		t.Fatalf("wildcard match should be symmetric")
	}

	mismatched := RawAudioType(44100, 1, SampleFormatF32)
	if Compatible(concrete, mismatched) {
		t.Fatalf("distinct concrete sample rates should not be compatible")
	}

	wrongFormat := RawAudioType(48000, 1, SampleFormatS16LE)
	if Compatible(concrete, wrongFormat) {
		t.Fatalf("sample format has no wildcard and must match exactly")
	}

	wildcardChannels := RawAudioType(48000, 0, SampleFormatF32)
	if !Compatible(wildcardChannels, concrete) {
		t.Fatalf("wildcard channel count should match any concrete channel count")
	}
}

func TestCompatibleCustomTypesMatchByID(t *testing.T) {
	a := CustomType("vad.marker")
	b := CustomType("vad.marker")
	c := CustomType("telemetry.health")

	if !Compatible(a, b) {
		t.Fatalf("custom types with the same id should be compatible")
	}
	if Compatible(a, c) {
		t.Fatalf("custom types with different ids should not be compatible")
	}
}

func TestCompatibleKindMismatchIsIncompatible(t *testing.T) {
	if Compatible(TextType(), BinaryType()) {
		t.Fatalf("different kinds should not be compatible")
	}
	if Compatible(OpusAudioType(), RawAudioType(48000, 1, SampleFormatF32)) {
		t.Fatalf("OpusAudio and RawAudio should not be compatible")
	}
}

func TestAcceptsAtConnectTimeAllowsPassthroughUnconditionally(t *testing.T) {
	if !AcceptsAtConnectTime(Passthrough(), BinaryType()) {
		t.Fatalf("Passthrough output should be accepted at connect time regardless of input type")
	}
	if !AcceptsAtConnectTime(TextType(), Passthrough()) {
		t.Fatalf("Passthrough input should be accepted at connect time regardless of output type")
	}
	if AcceptsAtConnectTime(TextType(), BinaryType()) {
		t.Fatalf("non-passthrough incompatible types should still be rejected at connect time")
	}
}
