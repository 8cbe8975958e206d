package pin

import (
	"testing"

	"streamkit/internal/packet"
)

func TestResolvePassthroughSingleHop(t *testing.T) {
	g := GraphTypes{
		Outputs: map[string]map[string]packet.PacketType{
			"mic":   {"out": packet.RawAudioType(48000, 1, packet.SampleFormatF32)},
			"pacer": {"out": packet.Passthrough()},
		},
		PrimaryInput: map[string]string{"pacer": "in"},
	}
	edges := []Edge{{FromNode: "mic", FromPin: "out", ToNode: "pacer", ToPin: "in"}}

	unresolved := ResolvePassthrough(g, edges)
	if len(unresolved) != 0 {
		t.Fatalf("expected full resolution, got unresolved=%v", unresolved)
	}
	got := g.Outputs["pacer"]["out"]
	if got.Kind != packet.TypeRawAudio || got.RawAudio.SampleRate != 48000 {
		t.Fatalf("pacer.out = %+v, want RawAudio(48000,...)", got)
	}
}

func TestResolvePassthroughChainsThroughMultipleNodes(t *testing.T) {
	g := GraphTypes{
		Outputs: map[string]map[string]packet.PacketType{
			"mic":    {"out": packet.TextType()},
			"pacer1": {"out": packet.Passthrough()},
			"pacer2": {"out": packet.Passthrough()},
		},
		PrimaryInput: map[string]string{"pacer1": "in", "pacer2": "in"},
	}
	edges := []Edge{
		{FromNode: "mic", FromPin: "out", ToNode: "pacer1", ToPin: "in"},
		{FromNode: "pacer1", FromPin: "out", ToNode: "pacer2", ToPin: "in"},
	}

	unresolved := ResolvePassthrough(g, edges)
	if len(unresolved) != 0 {
		t.Fatalf("expected full resolution, got unresolved=%v", unresolved)
	}
	if g.Outputs["pacer2"]["out"].Kind != packet.TypeText {
		t.Fatalf("pacer2.out = %+v, want Text", g.Outputs["pacer2"]["out"])
	}
}

func TestResolvePassthroughReportsUnresolvedWhenSourceMissing(t *testing.T) {
	g := GraphTypes{
		Outputs: map[string]map[string]packet.PacketType{
			"pacer": {"out": packet.Passthrough()},
		},
		PrimaryInput: map[string]string{"pacer": "in"},
	}

	unresolved := ResolvePassthrough(g, nil)
	if len(unresolved) != 1 || unresolved[0].Node != "pacer" || unresolved[0].Pin != "out" {
		t.Fatalf("expected pacer.out unresolved, got %v", unresolved)
	}
}
