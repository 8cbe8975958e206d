package core

import (
	"testing"
	"time"

	"streamkit/internal/packet"
)

func TestPacerDefaultsSpeedToOne(t *testing.T) {
	n, err := NewPacer(nil)
	if err != nil {
		t.Fatalf("NewPacer(nil): %v", err)
	}
	p := n.(*Pacer)
	if p.cfg.Speed != 1.0 {
		t.Fatalf("default speed = %v, want 1.0", p.cfg.Speed)
	}
}

func TestPacerRejectsNonPositiveSpeed(t *testing.T) {
	if _, err := NewPacer([]byte(`{"speed": 0}`)); err == nil {
		t.Fatalf("expected error for speed=0")
	}
	if _, err := NewPacer([]byte(`{"speed": -1}`)); err == nil {
		t.Fatalf("expected error for negative speed")
	}
}

func TestPacerForwardsAtScaledRate(t *testing.T) {
	in := make(chan packet.Packet, 2)
	out := make(chan packet.Packet, 2)
	nctx, ctx, cancel := newRunContext(in, out)
	defer cancel()

	n, err := NewPacer([]byte(`{"speed": 1000}`))
	if err != nil {
		t.Fatalf("NewPacer: %v", err)
	}

	frame := packet.NewAudioFrame(48000, 1, make([]float32, 4800)) // 100ms @ 48kHz, paced to ~0.1ms
	in <- packet.NewAudioPacket(frame)
	close(in)

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, nctx) }()

	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for paced output")
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPacerStopsOnCancellation(t *testing.T) {
	in := make(chan packet.Packet, 1)
	out := make(chan packet.Packet, 1)
	nctx, ctx, cancel := newRunContext(in, out)

	n, err := NewPacer([]byte(`{"speed": 0.001}`))
	if err != nil {
		t.Fatalf("NewPacer: %v", err)
	}

	frame := packet.NewAudioFrame(48000, 1, make([]float32, 48000*10)) // 10s paced to 10000s
	in <- packet.NewAudioPacket(frame)

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, nctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
}

func TestPacerInvalidParamsError(t *testing.T) {
	if _, err := NewPacer([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid params")
	}
}
