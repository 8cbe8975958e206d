package transport

import (
	"streamkit/internal/packet"
	"streamkit/internal/pin"
	"streamkit/internal/registry"
)

// Register adds every core::transport_* node kind to reg.
func Register(reg *registry.Registry) error {
	moqPins := registry.StaticPins{
		Inputs: []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}},
	}
	if err := reg.RegisterBuiltin("core::transport_moq_push", NewMoQPush, nil, &moqPins,
		[]string{"core", "transport"}, false,
		"Pushes Binary packets to a WebTransport relay as unreliable datagrams, standing in for a MoQ gateway ingest path.",
	); err != nil {
		return err
	}

	rtcPins := registry.StaticPins{
		Inputs: []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.BinaryType()}, Cardinality: pin.One()}},
	}
	if err := reg.RegisterBuiltin("core::transport_rtc_egress", NewRTCEgress, nil, &rtcPins,
		[]string{"core", "transport"}, false,
		"Forwards Binary packets to a browser peer over a negotiated WebRTC data channel.",
	); err != nil {
		return err
	}

	return nil
}
