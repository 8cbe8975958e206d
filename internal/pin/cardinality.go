package pin

import "fmt"

// CheckInboundCardinality validates whether a new inbound edge may attach to
// an input pin with the given cardinality, given how many inbound edges it
// already carries. It never inspects output-side cardinality: Broadcast is
// meaningless on an input pin and is rejected unconditionally.
func CheckInboundCardinality(pinName string, card Cardinality, existingInbound int) error {
	switch {
	case card.IsBroadcast():
		return fmt.Errorf("input pin %q incorrectly declares Broadcast cardinality (valid for outputs only)", pinName)
	case card.IsOne():
		if existingInbound >= 1 {
			return fmt.Errorf("input pin %q (cardinality One) already has a connection", pinName)
		}
		return nil
	default: // Dynamic
		return nil
	}
}

// ResolveDynamicInputPin finds which declared input pin a concrete wire name
// belongs to, matching static pins by exact name and Dynamic{prefix} pins by
// prefix membership. Returns false if no declared pin covers the name.
func ResolveDynamicInputPin(pins []InputPin, wireName string) (InputPin, bool) {
	for _, p := range pins {
		if p.Name == wireName {
			return p, true
		}
	}
	for _, p := range pins {
		if p.Cardinality.MatchesDynamicName(wireName) {
			return p, true
		}
	}
	return InputPin{}, false
}
