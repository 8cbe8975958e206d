package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// SplitMode selects how TextChunker decides where to cut incoming text.
type SplitMode string

const (
	// SplitSentences cuts only on sentence-ending punctuation.
	SplitSentences SplitMode = "sentences"
	// SplitClauses cuts on sentence endings plus commas/semicolons/dashes/
	// colons, for more natural low-latency TTS streaming.
	SplitClauses SplitMode = "clauses"
	// SplitWords cuts after a fixed word count, for minimum latency.
	SplitWords SplitMode = "words"
)

var clauseBoundaries = []string{
	". ", ".\n", "! ", "!\n", "? ", "?\n",
	"。", "！", "？",
	", ", ",\n",
	"; ", ";\n",
	" - ", " – ", " — ",
	": ", ":\n",
}

var sentenceBoundaries = []string{". ", ".\n", "! ", "!\n", "? ", "?\n", "。", "！", "？"}

func endsWithSentencePunct(s string) bool {
	for _, p := range []string{".", "!", "?", "。", "！", "？"} {
		if strings.HasSuffix(s, p) {
			return true
		}
	}
	return false
}

func endsWithClausePunct(s string) bool {
	if endsWithSentencePunct(s) {
		return true
	}
	for _, p := range []string{",", ";", ":"} {
		if strings.HasSuffix(s, p) {
			return true
		}
	}
	return false
}

// TextChunkerConfig configures TextChunker's splitting behavior.
type TextChunkerConfig struct {
	SplitMode  SplitMode `json:"split_mode"`
	MinLength  int       `json:"min_length"`
	ChunkWords int       `json:"chunk_words"`
}

func (c *TextChunkerConfig) setDefaults() {
	if c.SplitMode == "" {
		c.SplitMode = SplitClauses
	}
	if c.MinLength == 0 {
		c.MinLength = 10
	}
	if c.ChunkWords == 0 {
		c.ChunkWords = 5
	}
}

// TextChunker splits incoming Text (or UTF-8 Binary) packets into chunks
// suitable for streaming TTS generation, buffering partial text across
// packets and flushing whatever remains when its input closes.
type TextChunker struct {
	node.BaseNode
	cfg TextChunkerConfig
}

// NewTextChunker constructs a TextChunker node from raw JSON params.
func NewTextChunker(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg TextChunkerConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("text_chunker: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	switch cfg.SplitMode {
	case SplitSentences, SplitClauses, SplitWords:
	default:
		return nil, fmt.Errorf("text_chunker: unknown split_mode %q", cfg.SplitMode)
	}
	return &TextChunker{cfg: cfg}, nil
}

func (t *TextChunker) InputPins() []pin.InputPin {
	return []pin.InputPin{{
		Name:         "in",
		AcceptsTypes: []packet.PacketType{packet.TextType(), packet.BinaryType()},
		Cardinality:  pin.One(),
	}}
}

func (t *TextChunker) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.TextType(), Cardinality: pin.Broadcast()}}
}

func (t *TextChunker) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var buf strings.Builder
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			break
		}

		var text string
		switch pkt.Kind() {
		case packet.KindText:
			text, _ = pkt.Text()
		case packet.KindBinary:
			data, _, _, _ := pkt.Binary()
			text = string(data)
		default:
			continue
		}
		if text == "" {
			continue
		}
		buf.WriteString(text)

		for {
			chunk, ok := t.extractChunk(&buf)
			if !ok {
				break
			}
			if err := nctx.Output.Send(ctx, "out", packet.NewTextPacket(chunk)); err != nil {
				node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
				return nil
			}
		}
	}

	if buf.Len() > 0 {
		_ = nctx.Output.Send(ctx, "out", packet.NewTextPacket(buf.String()))
	}
	node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopCompleted))
	return nil
}

func (t *TextChunker) extractChunk(buf *strings.Builder) (string, bool) {
	switch t.cfg.SplitMode {
	case SplitSentences:
		return extractByBoundary(buf, sentenceBoundaries, t.cfg.MinLength, endsWithSentencePunct)
	case SplitWords:
		return extractWordChunk(buf, t.cfg.ChunkWords)
	default:
		return extractByBoundary(buf, clauseBoundaries, t.cfg.MinLength, endsWithClausePunct)
	}
}

func extractByBoundary(buf *strings.Builder, boundaries []string, minLength int, endsWithPunct func(string) bool) (string, bool) {
	s := buf.String()
	if len(s) < minLength {
		return "", false
	}

	best := -1
	var boundaryLen int
	for _, b := range boundaries {
		if pos := strings.Index(s, b); pos != -1 && (best == -1 || pos < best) {
			best = pos
			boundaryLen = len(b)
		}
	}
	if best != -1 {
		end := best + boundaryLen
		chunk := strings.TrimSpace(s[:end])
		buf.Reset()
		buf.WriteString(s[end:])
		return chunk, true
	}

	if endsWithPunct(s) {
		buf.Reset()
		return s, true
	}
	return "", false
}

func extractWordChunk(buf *strings.Builder, chunkWords int) (string, bool) {
	s := buf.String()
	words := strings.Fields(s)
	if len(words) < chunkWords {
		return "", false
	}

	wordCount := 0
	lastWordEnd := -1
	for idx, ch := range s {
		if isSpace(ch) && idx > lastWordEnd {
			wordCount++
			if wordCount >= chunkWords {
				chunk := strings.TrimSpace(s[:idx+1])
				buf.Reset()
				buf.WriteString(strings.TrimLeft(s[idx+1:], " \t\n\r"))
				return chunk, true
			}
			lastWordEnd = idx
		}
	}

	if wordCount == chunkWords-1 && s != "" {
		buf.Reset()
		return s, true
	}
	return "", false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
