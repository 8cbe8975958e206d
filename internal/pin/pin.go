// Package pin defines the typed input/output pin model and the connection
// tuple that links them: cardinality rules, connection modes, and the
// fix-point resolution of Passthrough output types.
package pin

import "streamkit/internal/packet"

// Cardinality constrains how many edges a pin may participate in.
type Cardinality struct {
	kind   cardinalityKind
	prefix string // meaningful iff kind == cardinalityDynamic
}

type cardinalityKind int

const (
	// cardinalityOne permits exactly one edge; valid for input pins only.
	cardinalityOne cardinalityKind = iota
	// cardinalityBroadcast permits any number (including zero) of outbound
	// edges on an output pin.
	cardinalityBroadcast
	// cardinalityDynamic is a pin family: concrete pin names of the form
	// "<prefix>_<id>" may be created at connect time.
	cardinalityDynamic
)

// One is the cardinality for an input pin that accepts exactly one edge.
func One() Cardinality { return Cardinality{kind: cardinalityOne} }

// Broadcast is the cardinality for an output pin with unrestricted fan-out.
func Broadcast() Cardinality { return Cardinality{kind: cardinalityBroadcast} }

// Dynamic is the cardinality for a pin family whose concrete members share
// the given name prefix.
func Dynamic(prefix string) Cardinality { return Cardinality{kind: cardinalityDynamic, prefix: prefix} }

// IsOne reports whether this is the single-edge cardinality.
func (c Cardinality) IsOne() bool { return c.kind == cardinalityOne }

// IsBroadcast reports whether this is the unrestricted-fan-out cardinality.
func (c Cardinality) IsBroadcast() bool { return c.kind == cardinalityBroadcast }

// IsDynamic reports whether this is a pin-family cardinality, and if so its prefix.
func (c Cardinality) IsDynamic() (string, bool) { return c.prefix, c.kind == cardinalityDynamic }

// MatchesDynamicName reports whether candidateName belongs to this pin
// family, i.e. starts with "<prefix>_".
func (c Cardinality) MatchesDynamicName(candidateName string) bool {
	if c.kind != cardinalityDynamic {
		return false
	}
	want := c.prefix + "_"
	return len(candidateName) > len(want) && candidateName[:len(want)] == want
}

// InputPin is a named, typed sink on a node.
type InputPin struct {
	Name         string
	AcceptsTypes []packet.PacketType
	Cardinality  Cardinality
}

// AcceptsType reports whether any of this pin's accepted types is compatible
// with a candidate output type.
func (p InputPin) AcceptsType(out packet.PacketType) bool {
	for _, accepted := range p.AcceptsTypes {
		if packet.Compatible(out, accepted) {
			return true
		}
	}
	return false
}

// OutputPin is a named, typed source on a node.
type OutputPin struct {
	Name         string
	ProducesType packet.PacketType
	Cardinality  Cardinality
}
