package pin

import (
	"testing"

	"streamkit/internal/packet"
)

func TestInputPinAcceptsTypeViaAny(t *testing.T) {
	p := InputPin{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: One()}
	if !p.AcceptsType(packet.TextType()) {
		t.Fatalf("pin accepting Any should accept any concrete output type")
	}
}

func TestInputPinAcceptsTypeExactMatch(t *testing.T) {
	p := InputPin{Name: "in", AcceptsTypes: []packet.PacketType{packet.TextType()}, Cardinality: One()}
	if !p.AcceptsType(packet.TextType()) {
		t.Fatalf("pin should accept its own declared type")
	}
	if p.AcceptsType(packet.BinaryType()) {
		t.Fatalf("pin should reject an incompatible type")
	}
}

func TestDynamicCardinalityNameMatching(t *testing.T) {
	c := Dynamic("track")
	if !c.MatchesDynamicName("track_1") {
		t.Fatalf("track_1 should match prefix track")
	}
	if c.MatchesDynamicName("track") {
		t.Fatalf("bare prefix with no separator should not match")
	}
	if c.MatchesDynamicName("other_1") {
		t.Fatalf("unrelated prefix should not match")
	}
}

func TestResolveDynamicInputPinPrefersExactMatch(t *testing.T) {
	pins := []InputPin{
		{Name: "track_1", Cardinality: One()},
		{Name: "track", Cardinality: Dynamic("track")},
	}
	got, ok := ResolveDynamicInputPin(pins, "track_1")
	if !ok || got.Name != "track_1" {
		t.Fatalf("expected exact match on track_1, got %+v ok=%v", got, ok)
	}

	got, ok = ResolveDynamicInputPin(pins, "track_2")
	if !ok || got.Name != "track" {
		t.Fatalf("expected dynamic family match on track, got %+v ok=%v", got, ok)
	}

	if _, ok := ResolveDynamicInputPin(pins, "unrelated"); ok {
		t.Fatalf("unrelated wire name should not resolve to any declared pin")
	}
}
