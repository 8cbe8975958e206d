package transport

import "testing"

func TestNewMoQPushRequiresURL(t *testing.T) {
	if _, err := NewMoQPush(nil); err == nil {
		t.Fatalf("expected error for missing url")
	}
}

func TestNewMoQPushAcceptsURL(t *testing.T) {
	n, err := NewMoQPush([]byte(`{"url":"https://relay.example:4433/moq"}`))
	if err != nil {
		t.Fatalf("NewMoQPush: %v", err)
	}
	if len(n.OutputPins()) != 0 {
		t.Fatalf("expected moq_push to be terminal")
	}
}

func TestNewRTCEgressRequiresOfferSDP(t *testing.T) {
	if _, err := NewRTCEgress(nil); err == nil {
		t.Fatalf("expected error for missing offer_sdp")
	}
}

func TestNewRTCEgressDefaultsLabel(t *testing.T) {
	got, err := NewRTCEgress([]byte(`{"offer_sdp":"v=0..."}`))
	if err != nil {
		t.Fatalf("NewRTCEgress: %v", err)
	}
	egress := got.(*RTCEgress)
	if egress.cfg.Label != "streamkit" {
		t.Fatalf("expected default label 'streamkit', got %q", egress.cfg.Label)
	}
	if len(egress.OutputPins()) != 0 {
		t.Fatalf("expected rtc_egress to be terminal")
	}
}

// sendHealth threshold/probe cadence, pinned so transport tuning does not
// drift silently.
func TestSendHealthOpensAfterThresholdFailures(t *testing.T) {
	var h sendHealth
	for i := uint32(0); i < circuitBreakerThreshold; i++ {
		h.recordFailure()
	}
	if !h.shouldSkip() {
		t.Fatalf("expected breaker to be open after %d failures", circuitBreakerThreshold)
	}
}

func TestSendHealthProbesPeriodically(t *testing.T) {
	var h sendHealth
	for i := uint32(0); i < circuitBreakerThreshold; i++ {
		h.recordFailure()
	}
	allowed := 0
	for i := uint32(0); i < circuitBreakerProbeInterval; i++ {
		if !h.shouldSkip() {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("expected exactly 1 probe per %d skips, got %d", circuitBreakerProbeInterval, allowed)
	}
}

func TestSendHealthRecordSuccessResetsBreaker(t *testing.T) {
	var h sendHealth
	for i := uint32(0); i < circuitBreakerThreshold; i++ {
		h.recordFailure()
	}
	if wasTripped := h.recordSuccess(); !wasTripped {
		t.Fatalf("expected recordSuccess to report the breaker was tripped")
	}
	if h.shouldSkip() {
		t.Fatalf("expected breaker to be closed after recordSuccess")
	}
}
