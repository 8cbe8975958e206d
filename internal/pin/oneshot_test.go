package pin

import "testing"

func TestCheckSingleOutboundEdge(t *testing.T) {
	if err := CheckSingleOutboundEdge("mic", "out", 0); err != nil {
		t.Fatalf("zero outbound edges should be fine, got %v", err)
	}
	if err := CheckSingleOutboundEdge("mic", "out", 1); err != nil {
		t.Fatalf("a single outbound edge should be fine, got %v", err)
	}
	if err := CheckSingleOutboundEdge("mic", "out", 2); err == nil {
		t.Fatalf("two outbound edges should fail fast for the oneshot runner")
	}
}
