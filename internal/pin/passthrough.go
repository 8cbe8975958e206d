package pin

import "streamkit/internal/packet"

// maxPassthroughIterations caps the fix-point resolution pass so a
// misconfigured or cyclic graph cannot hang pipeline compilation.
const maxPassthroughIterations = 100

// Edge is the minimal shape passthrough resolution needs from a Connection:
// which node/pin produces a packet and which node/pin consumes it.
type Edge struct {
	FromNode string
	FromPin  string
	ToNode   string
	ToPin    string
}

// GraphTypes is a mutable view of every node's output pin types, keyed by
// node name then pin name, used during passthrough resolution. Callers
// build this from their own node/pipeline representation and read back the
// mutated Outputs map once ResolvePassthrough returns.
type GraphTypes struct {
	// Outputs holds each node's output pin types. Entries with a
	// packet.TypePassthrough Kind are resolution candidates; all others are
	// left untouched.
	Outputs map[string]map[string]packet.PacketType
	// PrimaryInput names, for each node, which of its input pins supplies
	// the concrete type a Passthrough output should inherit — the node's
	// first declared input pin, by convention.
	PrimaryInput map[string]string
}

// Unresolved describes a Passthrough output pin still unresolved once
// ResolvePassthrough's iteration budget is exhausted.
type Unresolved struct {
	Node string
	Pin  string
}

// ResolvePassthrough iterates the graph to a fix point, replacing every
// output pin declared Passthrough with the concrete type reachable by
// tracing that node's primary input pin back to its source — itself
// possibly another node's now-resolved Passthrough output. It mutates
// g.Outputs in place and reports any pins left unresolved once the
// iteration cap is hit; the caller should warn rather than fail.
func ResolvePassthrough(g GraphTypes, edges []Edge) []Unresolved {
	inbound := make(map[string]map[string]Edge) // toNode -> toPin -> edge
	for _, e := range edges {
		if inbound[e.ToNode] == nil {
			inbound[e.ToNode] = make(map[string]Edge)
		}
		inbound[e.ToNode][e.ToPin] = e
	}

	for iter := 0; iter < maxPassthroughIterations; iter++ {
		changed := false
		for node, pins := range g.Outputs {
			for pinName, ty := range pins {
				if ty.Kind != packet.TypePassthrough {
					continue
				}
				primaryIn, ok := g.PrimaryInput[node]
				if !ok {
					continue
				}
				edge, ok := inbound[node][primaryIn]
				if !ok {
					continue
				}
				sourceType, ok := g.Outputs[edge.FromNode][edge.FromPin]
				if !ok || sourceType.Kind == packet.TypePassthrough {
					continue
				}
				g.Outputs[node][pinName] = sourceType
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var unresolved []Unresolved
	for node, pins := range g.Outputs {
		for pinName, ty := range pins {
			if ty.Kind == packet.TypePassthrough {
				unresolved = append(unresolved, Unresolved{Node: node, Pin: pinName})
			}
		}
	}
	return unresolved
}
