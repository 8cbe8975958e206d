package audio

import (
	"context"
	"testing"

	"streamkit/internal/node"
	"streamkit/internal/packet"
)

func newAudioRunContext(in chan packet.Packet, out chan packet.Packet) *node.Context {
	return &node.Context{
		Inputs: map[string]chan packet.Packet{"in": in},
		Output: node.NewOutputSender("n", node.OutputRouting{Direct: map[string]chan packet.Packet{"out": out}}),
	}
}

func loudFrame(n int) packet.AudioFrame {
	samples := make([]float32, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.9
		} else {
			samples[i] = -0.9
		}
	}
	return packet.NewAudioFrame(48000, 1, samples)
}

func silentFrame(n int) packet.AudioFrame {
	return packet.NewAudioFrame(48000, 1, make([]float32, n))
}

func TestVADForwardsSpeech(t *testing.T) {
	in := make(chan packet.Packet, 2)
	out := make(chan packet.Packet, 2)
	nctx := newAudioRunContext(in, out)

	n, err := NewVAD(nil)
	if err != nil {
		t.Fatalf("NewVAD: %v", err)
	}

	in <- packet.NewAudioPacket(loudFrame(960))
	close(in)

	if err := n.Run(context.Background(), nctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-out:
	default:
		t.Fatalf("expected loud frame to be forwarded")
	}
}

func TestVADDropsSilentOnlyStream(t *testing.T) {
	in := make(chan packet.Packet, 1)
	out := make(chan packet.Packet, 1)
	nctx := newAudioRunContext(in, out)

	n, err := NewVAD(nil)
	if err != nil {
		t.Fatalf("NewVAD: %v", err)
	}

	in <- packet.NewAudioPacket(silentFrame(960))
	close(in)

	if err := n.Run(context.Background(), nctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case got := <-out:
		t.Fatalf("expected silent frame to be dropped, got %+v", got)
	default:
	}
}

func TestAGCAdjustsGainTowardTarget(t *testing.T) {
	in := make(chan packet.Packet, 2)
	out := make(chan packet.Packet, 2)
	nctx := newAudioRunContext(in, out)

	n, err := NewAGC(nil)
	if err != nil {
		t.Fatalf("NewAGC: %v", err)
	}

	quiet := func() packet.Packet {
		return packet.NewAudioPacket(packet.NewAudioFrame(48000, 1, []float32{0.01, -0.01, 0.01, -0.01}))
	}
	in <- quiet()
	in <- quiet()
	close(in)

	if err := n.Run(context.Background(), nctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := <-out
	second := <-out
	firstFrame, _ := first.Audio()
	secondFrame, _ := second.Audio()
	if secondFrame.Samples()[0] <= firstFrame.Samples()[0] {
		t.Fatalf("expected AGC gain to grow across frames: first=%v second=%v",
			firstFrame.Samples()[0], secondFrame.Samples()[0])
	}
}

func TestNoiseGateZeroesQuietFrame(t *testing.T) {
	in := make(chan packet.Packet, 1)
	out := make(chan packet.Packet, 1)
	nctx := newAudioRunContext(in, out)

	n, err := NewNoiseGate(nil)
	if err != nil {
		t.Fatalf("NewNoiseGate: %v", err)
	}

	in <- packet.NewAudioPacket(silentFrame(960))
	close(in)

	if err := n.Run(context.Background(), nctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := <-out
	frame, _ := got.Audio()
	for _, s := range frame.Samples() {
		if s != 0 {
			t.Fatalf("expected gated frame to be all zero")
		}
	}
}

func TestF32Int16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1.0, -1.0}
	pcm := f32ToInt16(in)
	back := int16ToF32(pcm)
	for i := range in {
		diff := in[i] - back[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Fatalf("sample %d: got %v, want ~%v", i, back[i], in[i])
		}
	}
}
