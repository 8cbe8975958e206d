// Package registry is the node factory registry: the external
// collaborator the engine asks "kind" -> constructor, param schema, and
// (for statically-pinned nodes) a pre-computed pin descriptor.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"streamkit/internal/node"
	"streamkit/internal/pin"
)

// Factory constructs a node instance from raw JSON params. params is nil
// when the caller wants a default/zero-value instance (used by Definitions
// to introspect dynamic-pin nodes without a real configuration).
type Factory func(params json.RawMessage) (node.ProcessorNode, error)

// StaticPins is the pin descriptor for a node whose pins never change based
// on configuration, letting Definitions skip instantiating one.
type StaticPins struct {
	Inputs  []pin.InputPin
	Outputs []pin.OutputPin
}

// Definition is the serializable description of a registered node kind,
// exposed to external collaborators (a UI, the WS API) so they can describe
// available node kinds without constructing one.
type Definition struct {
	Kind          string
	Description   string
	ParamSchema   json.RawMessage
	Inputs        []pin.InputPin
	Outputs       []pin.OutputPin
	Categories    []string
	Bidirectional bool
}

type nodeInfo struct {
	factory       Factory
	paramSchema   json.RawMessage
	staticPins    *StaticPins
	categories    []string
	bidirectional bool
	description   string
}

// Registry is the process-wide catalog of node kinds the engine can
// construct. It is not safe for concurrent Register/Unregister calls racing
// with Lookup/Definitions — callers register all built-ins and plugins
// during startup, before handing the registry to an engine.
type Registry struct {
	info map[string]*nodeInfo
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{info: make(map[string]*nodeInfo)}
}

// reservedPrefixes are the only "::"-qualified kind prefixes external
// registrants may use; everything else must be a single unqualified token.
var reservedPrefixes = []string{"core::", "plugin::native::", "plugin::wasm::"}

// ValidateKind enforces the kind-namespacing rule: "::" is permitted only
// under the reserved core::/plugin::native::/plugin::wasm:: prefixes, and
// core:: only for built-ins.
func ValidateKind(kind string, isBuiltin bool) error {
	if !strings.Contains(kind, "::") {
		if kind == "" {
			return fmt.Errorf("node kind must not be empty")
		}
		return nil
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(kind, prefix) {
			if prefix == "core::" && !isBuiltin {
				return fmt.Errorf("kind %q: the core:: prefix is reserved for built-in nodes", kind)
			}
			return nil
		}
	}
	return fmt.Errorf("kind %q: \"::\" is reserved for core::, plugin::native::, or plugin::wasm:: prefixes", kind)
}

// RegisterStatic registers a node whose input/output pins never change
// based on configuration.
func (r *Registry) RegisterStatic(kind string, factory Factory, paramSchema json.RawMessage, pins StaticPins, categories []string, bidirectional bool, description string) error {
	return r.register(kind, factory, paramSchema, &pins, categories, bidirectional, description, false)
}

// RegisterDynamic registers a node whose pin layout is determined at
// instantiation time from its configuration (or Tier-1 initialize()).
func (r *Registry) RegisterDynamic(kind string, factory Factory, paramSchema json.RawMessage, categories []string, bidirectional bool, description string) error {
	return r.register(kind, factory, paramSchema, nil, categories, bidirectional, description, false)
}

// RegisterBuiltin is RegisterStatic/RegisterDynamic's counterpart for
// core::-namespaced kinds; only callers assembling the built-in node set
// should use it.
func (r *Registry) RegisterBuiltin(kind string, factory Factory, paramSchema json.RawMessage, pins *StaticPins, categories []string, bidirectional bool, description string) error {
	return r.register(kind, factory, paramSchema, pins, categories, bidirectional, description, true)
}

func (r *Registry) register(kind string, factory Factory, paramSchema json.RawMessage, pins *StaticPins, categories []string, bidirectional bool, description string, isBuiltin bool) error {
	if err := ValidateKind(kind, isBuiltin); err != nil {
		return err
	}
	r.info[kind] = &nodeInfo{
		factory:       factory,
		paramSchema:   paramSchema,
		staticPins:    pins,
		categories:    categories,
		bidirectional: bidirectional,
		description:   description,
	}
	return nil
}

// Unregister removes kind, reporting whether it was present.
func (r *Registry) Unregister(kind string) bool {
	if _, ok := r.info[kind]; !ok {
		return false
	}
	delete(r.info, kind)
	return true
}

// Contains reports whether kind is registered.
func (r *Registry) Contains(kind string) bool {
	_, ok := r.info[kind]
	return ok
}

// Create instantiates a node by kind. Returns a *node.ConfigurationError
// when kind is unknown or the factory itself fails.
func (r *Registry) Create(kind string, params json.RawMessage) (node.ProcessorNode, error) {
	info, ok := r.info[kind]
	if !ok {
		return nil, node.NewConfigurationError(kind, fmt.Sprintf("node kind %q not found in registry", kind))
	}
	inst, err := info.factory(params)
	if err != nil {
		return nil, node.NewConfigurationError(kind, fmt.Sprintf("factory failed: %v", err))
	}
	return inst, nil
}

// Definitions returns a description of every registered kind, instantiating
// a default (nil-params) instance for dynamic-pin kinds to introspect their
// pins.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.info))
	for kind, info := range r.info {
		var inputs []pin.InputPin
		var outputs []pin.OutputPin
		if info.staticPins != nil {
			inputs = info.staticPins.Inputs
			outputs = info.staticPins.Outputs
		} else if inst, err := info.factory(nil); err == nil {
			inputs = inst.InputPins()
			outputs = inst.OutputPins()
		}
		defs = append(defs, Definition{
			Kind:          kind,
			Description:   info.description,
			ParamSchema:   info.paramSchema,
			Inputs:        inputs,
			Outputs:       outputs,
			Categories:    info.categories,
			Bidirectional: info.bidirectional,
		})
	}
	return defs
}
