package audio

import (
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// Register adds every core::audio_* node kind to reg.
func Register(reg *registry.Registry) error {
	rawInOut := registry.StaticPins{
		Inputs:  []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)}, Cardinality: pin.One()}},
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.Passthrough(), Cardinality: pin.Broadcast()}},
	}

	if err := reg.RegisterBuiltin("core::audio_vad", NewVAD, nil, &rawInOut,
		[]string{"core", "audio"}, false,
		"Drops Audio packets classified as silence by an energy-based voice activity detector, with a hangover to avoid clipping word endings.",
	); err != nil {
		return err
	}

	if err := reg.RegisterBuiltin("core::audio_agc", NewAGC, nil, &rawInOut,
		[]string{"core", "audio"}, false,
		"Applies automatic gain control to Audio packets, adjusting a running gain toward a target RMS loudness.",
	); err != nil {
		return err
	}

	if err := reg.RegisterBuiltin("core::audio_noisegate", NewNoiseGate, nil, &rawInOut,
		[]string{"core", "audio"}, false,
		"Zeroes Audio frames below an RMS threshold, with a hold period to avoid chopping speech during brief pauses.",
	); err != nil {
		return err
	}

	if err := reg.RegisterBuiltin("core::audio_opus_encode", NewOpusEncode, nil, nil,
		[]string{"core", "audio", "codec"}, false,
		"Compresses raw f32 Audio packets into Opus-encoded Binary packets.",
	); err != nil {
		return err
	}

	if err := reg.RegisterBuiltin("core::audio_opus_decode", NewOpusDecode, nil, nil,
		[]string{"core", "audio", "codec"}, false,
		"Expands Opus-encoded Binary packets back into raw f32 Audio packets, running packet-loss concealment on empty payloads.",
	); err != nil {
		return err
	}

	jitterPins := registry.StaticPins{
		Inputs:  []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.OpusAudioType()}, Cardinality: pin.One()}},
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.OpusAudioType(), Cardinality: pin.Broadcast()}},
	}
	if err := reg.RegisterBuiltin("core::audio_jitter", NewJitter, nil, &jitterPins,
		[]string{"core", "audio"}, false,
		"Reorders sequenced Opus packets on a 20 ms playout tick, signaling losses as empty payloads for downstream concealment.",
	); err != nil {
		return err
	}

	micInputPins := registry.StaticPins{
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.RawAudioType(0, 0, packet.SampleFormatF32), Cardinality: pin.Broadcast()}},
	}
	if err := reg.RegisterBuiltin("core::audio_mic_input", NewMicInput, nil, &micInputPins,
		[]string{"core", "audio", "device"}, false,
		"Captures raw f32 audio frames from a PortAudio input device.",
	); err != nil {
		return err
	}

	speakerOutputPins := registry.StaticPins{
		Inputs: []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)}, Cardinality: pin.One()}},
	}
	if err := reg.RegisterBuiltin("core::audio_speaker_output", NewSpeakerOutput, nil, &speakerOutputPins,
		[]string{"core", "audio", "device"}, false,
		"Writes raw f32 Audio packets to a PortAudio output device, silence-filling short frames.",
	); err != nil {
		return err
	}

	return nil
}
