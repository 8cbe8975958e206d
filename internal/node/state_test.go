package node

import "testing"

func TestEmitStateDropsWhenFull(t *testing.T) {
	ch := make(chan StateUpdate, 1)
	EmitState(ch, "mic", Running())
	EmitState(ch, "mic", Failed("boom")) // channel full: must not block or panic

	update := <-ch
	if update.State.Kind != StateRunning {
		t.Fatalf("expected the first update to have been kept, got %+v", update.State)
	}
}

func TestEmitStateNilChannelIsNoOp(t *testing.T) {
	EmitState(nil, "mic", Running()) // must not panic
}

func TestStopReasonString(t *testing.T) {
	cases := map[StopReason]string{
		StopCompleted:    "completed",
		StopInputClosed:  "input_closed",
		StopOutputClosed: "output_closed",
		StopShutdown:     "shutdown",
		StopNoInputs:     "no_inputs",
		StopUnknown:      "unknown",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Fatalf("StopReason(%d).String() = %q, want %q", reason, got, want)
		}
	}
}
