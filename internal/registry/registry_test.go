package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

type stubNode struct {
	node.BaseNode
}

func (stubNode) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.Any()}, Cardinality: pin.One()}}
}

func (stubNode) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.Any(), Cardinality: pin.Broadcast()}}
}

func (stubNode) Run(ctx context.Context, nctx *node.Context) error { return nil }

func stubFactory(json.RawMessage) (node.ProcessorNode, error) {
	return stubNode{}, nil
}

func TestValidateKind(t *testing.T) {
	cases := []struct {
		kind      string
		isBuiltin bool
		wantErr   bool
	}{
		{kind: "my_node", wantErr: false},
		{kind: "", wantErr: true},
		{kind: "core::pacer", isBuiltin: true, wantErr: false},
		{kind: "core::pacer", isBuiltin: false, wantErr: true},
		{kind: "plugin::native::whisper", wantErr: false},
		{kind: "plugin::wasm::gain", wantErr: false},
		{kind: "vendor::custom", wantErr: true},
		{kind: "a::b::c", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			err := ValidateKind(tc.kind, tc.isBuiltin)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateKind(%q, builtin=%v) = %v, wantErr=%v", tc.kind, tc.isBuiltin, err, tc.wantErr)
			}
		})
	}
}

func TestRegisterRejectsReservedPrefix(t *testing.T) {
	r := New()
	if err := r.RegisterDynamic("core::sneaky", stubFactory, nil, nil, false, ""); err == nil {
		t.Fatalf("RegisterDynamic accepted a core:: kind from a non-builtin caller")
	}
	if r.Contains("core::sneaky") {
		t.Fatalf("rejected kind still registered")
	}
}

func TestCreateUnknownKind(t *testing.T) {
	r := New()
	_, err := r.Create("missing", nil)
	if err == nil {
		t.Fatalf("Create with unknown kind succeeded")
	}
	var cfgErr *node.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
}

func TestCreateWrapsFactoryFailure(t *testing.T) {
	r := New()
	if err := r.RegisterDynamic("broken", func(json.RawMessage) (node.ProcessorNode, error) {
		return nil, errors.New("nope")
	}, nil, nil, false, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := r.Create("broken", nil)
	var cfgErr *node.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("factory failure = %v, want ConfigurationError", err)
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	if err := r.RegisterDynamic("gone_soon", stubFactory, nil, nil, false, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Unregister("gone_soon") {
		t.Fatalf("Unregister reported the kind absent")
	}
	if r.Unregister("gone_soon") {
		t.Fatalf("second Unregister reported the kind present")
	}
}

func TestDefinitionsDescribePins(t *testing.T) {
	r := New()
	staticPins := StaticPins{
		Inputs:  []pin.InputPin{{Name: "audio_in", AcceptsTypes: []packet.PacketType{packet.RawAudioType(0, 0, packet.SampleFormatF32)}, Cardinality: pin.One()}},
		Outputs: []pin.OutputPin{{Name: "out", ProducesType: packet.OpusAudioType(), Cardinality: pin.Broadcast()}},
	}
	if err := r.RegisterStatic("static_kind", stubFactory, json.RawMessage(`{"type":"object"}`), staticPins, []string{"audio"}, false, "a static node"); err != nil {
		t.Fatalf("register static: %v", err)
	}
	// Dynamic-pin kinds are introspected by instantiating a default instance.
	if err := r.RegisterDynamic("dynamic_kind", stubFactory, nil, nil, true, "a dynamic node"); err != nil {
		t.Fatalf("register dynamic: %v", err)
	}

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("Definitions returned %d entries, want 2", len(defs))
	}
	byKind := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byKind[d.Kind] = d
	}

	static := byKind["static_kind"]
	if len(static.Inputs) != 1 || static.Inputs[0].Name != "audio_in" {
		t.Fatalf("static definition inputs = %+v", static.Inputs)
	}
	if static.Description != "a static node" || len(static.Categories) != 1 {
		t.Fatalf("static definition metadata = %+v", static)
	}

	dynamic := byKind["dynamic_kind"]
	if len(dynamic.Inputs) != 1 || dynamic.Inputs[0].Name != "in" {
		t.Fatalf("dynamic definition did not introspect a default instance: %+v", dynamic.Inputs)
	}
	if !dynamic.Bidirectional {
		t.Fatalf("dynamic definition lost the bidirectional flag")
	}
}
