package pin

import "fmt"

// CheckSingleOutboundEdge enforces the oneshot runner's fail-fast rule: since
// the stateless runner wires pins directly with no distributor, an output
// pin may have at most one outbound edge regardless of its declared
// cardinality.
func CheckSingleOutboundEdge(nodeName, pinName string, outboundCount int) error {
	if outboundCount > 1 {
		return fmt.Errorf("output pin %q on node %q has %d outbound edges; the oneshot runner requires at most one (no distributor is instantiated)", pinName, nodeName, outboundCount)
	}
	return nil
}
