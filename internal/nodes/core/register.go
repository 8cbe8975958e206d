package core

import (
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// Register adds every core:: node kind to reg. Callers assembling the
// built-in node set (the daemon, the load-test CLI, the oneshot pipeline
// compiler) call this once at startup before handing the registry to an
// engine or pipeline builder.
func Register(reg *registry.Registry) error {
	anyInOut := registry.StaticPins{
		Inputs:  []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}},
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}},
	}

	if err := reg.RegisterBuiltin("core::pacer", NewPacer, nil, &anyInOut,
		[]string{"core", "pacing"}, false,
		"Re-emits packets at the rate implied by each Audio packet's duration (or a fixed tick for other kinds), throttling a producer ahead of a real-time consumer.",
	); err != nil {
		return err
	}

	if err := reg.RegisterBuiltin("core::passthrough", NewPassthrough, nil, &anyInOut,
		[]string{"core"}, false,
		"Forwards every packet it receives unchanged; used as a generic tee or probe point.",
	); err != nil {
		return err
	}

	if err := reg.RegisterBuiltin("core::telemetry_tap", NewTelemetryTap, nil, &anyInOut,
		[]string{"core", "observability"}, false,
		"Observes packets and converts a configurable subset to telemetry events, forwarding every packet unchanged.",
	); err != nil {
		return err
	}

	telemetryOutPins := registry.StaticPins{
		Inputs: []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}},
	}
	if err := reg.RegisterBuiltin("core::telemetry_out", NewTelemetryOut, nil, &telemetryOutPins,
		[]string{"core", "observability"}, false,
		"Consumes packets and emits telemetry events to the session bus. Terminal node intended for best-effort side branches.",
	); err != nil {
		return err
	}

	textChunkerPins := registry.StaticPins{
		Inputs:  []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.TextType(), packet.BinaryType()}, Cardinality: pin.One()}},
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.TextType(), Cardinality: pin.Broadcast()}},
	}
	if err := reg.RegisterBuiltin("core::text_chunker", NewTextChunker, nil, &textChunkerPins,
		[]string{"core", "text"}, false,
		"Splits incoming text into sentence, clause, or fixed-word-count chunks for streaming TTS generation.",
	); err != nil {
		return err
	}

	fileReaderPins := registry.StaticPins{
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.BinaryType(), Cardinality: pin.Broadcast()}},
	}
	if err := reg.RegisterBuiltin("core::file_reader", NewFileReader, nil, &fileReaderPins,
		[]string{"core", "io"}, false,
		"Streams a file's contents out as Binary packets, closing its output once the file is fully read.",
	); err != nil {
		return err
	}

	fileWriterPins := registry.StaticPins{
		Inputs: []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.BinaryType()}, Cardinality: pin.One()}},
	}
	if err := reg.RegisterBuiltin("core::file_writer", NewFileWriter, nil, &fileWriterPins,
		[]string{"core", "io"}, false,
		"Writes every Binary packet it receives to a file via temp-then-rename, producing a self-contained output file.",
	); err != nil {
		return err
	}

	return nil
}
