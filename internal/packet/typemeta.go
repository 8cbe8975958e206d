package packet

// CompatibilityStrategy names how a packet type participates in the
// Compatible check, so external UIs can explain a rejected connection
// without reimplementing the check client-side.
type CompatibilityStrategy string

const (
	// StrategyExact requires identical kinds (and CustomID, when present).
	StrategyExact CompatibilityStrategy = "exact"
	// StrategyFieldWildcard compares declared fields, with zero acting as a
	// field-level wildcard.
	StrategyFieldWildcard CompatibilityStrategy = "field_wildcard"
	// StrategyMatchesAny matches every other type.
	StrategyMatchesAny CompatibilityStrategy = "matches_any"
	// StrategyInherited resolves to the concrete type of the node's input
	// before any comparison happens.
	StrategyInherited CompatibilityStrategy = "inherited"
)

// TypeDescriptor is UI-facing metadata for one packet type variant: a stable
// id, a human label, a suggested pin color, and a display template whose
// {placeholders} a UI fills from the concrete type's fields.
type TypeDescriptor struct {
	ID              string                `json:"id"`
	Label           string                `json:"label"`
	Color           string                `json:"color"`
	DisplayTemplate string                `json:"display_template"`
	Strategy        CompatibilityStrategy `json:"compatibility_strategy"`
}

// DescribeTypes enumerates every packet type variant with its metadata.
func DescribeTypes() []TypeDescriptor {
	return []TypeDescriptor{
		{ID: "raw_audio", Label: "Raw Audio", Color: "#4fc3f7", DisplayTemplate: "PCM {sample_rate}Hz {channels}ch {sample_format}", Strategy: StrategyFieldWildcard},
		{ID: "opus_audio", Label: "Opus Audio", Color: "#9575cd", DisplayTemplate: "Opus", Strategy: StrategyExact},
		{ID: "text", Label: "Text", Color: "#aed581", DisplayTemplate: "Text", Strategy: StrategyExact},
		{ID: "transcription", Label: "Transcription", Color: "#ffb74d", DisplayTemplate: "Transcription", Strategy: StrategyExact},
		{ID: "binary", Label: "Binary", Color: "#90a4ae", DisplayTemplate: "Binary {content_type}", Strategy: StrategyExact},
		{ID: "any", Label: "Any", Color: "#e0e0e0", DisplayTemplate: "Any", Strategy: StrategyMatchesAny},
		{ID: "passthrough", Label: "Passthrough", Color: "#f06292", DisplayTemplate: "Passthrough", Strategy: StrategyInherited},
		{ID: "custom", Label: "Custom", Color: "#4db6ac", DisplayTemplate: "{type_id}", Strategy: StrategyFieldWildcard},
	}
}

// TypeID returns the stable descriptor id for a TypeKind.
func (k TypeKind) TypeID() string {
	switch k {
	case TypeRawAudio:
		return "raw_audio"
	case TypeOpusAudio:
		return "opus_audio"
	case TypeText:
		return "text"
	case TypeTranscription:
		return "transcription"
	case TypeBinary:
		return "binary"
	case TypeAny:
		return "any"
	case TypePassthrough:
		return "passthrough"
	case TypeCustom:
		return "custom"
	default:
		return "unknown"
	}
}
