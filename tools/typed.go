package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

// Request is the container for a typed tool invocation.
type Request[A any] struct {
	id          string
	raw         Arguments
	args        A
	diagnostics []string
}

func (r *Request[A]) ToolID() string          { return r.id }
func (r *Request[A]) RawArguments() Arguments { return r.raw }
func (r *Request[A]) Args() A                 { return r.args }

// Warnf records a diagnostic returned alongside a successful result.
func (r *Request[A]) Warnf(format string, a ...any) {
	r.diagnostics = append(r.diagnostics, fmt.Sprintf(format, a...))
}

// NewTool builds a Tool from a typed argument struct A and output struct O.
//
// When def.InputSchema or def.OutputSchema is nil it is reflected from A or O
// using invopop/jsonschema. Fields without `omitempty` are required, and the
// `jsonschema` struct tag supplies description, enum, minimum, maximum and
// default. The handler decodes the validated arguments into A and encodes the
// returned O as the output mapping.
func NewTool[A, O any](def Definition, fn func(ctx context.Context, r *Request[A]) (O, error)) Tool {
	if def.InputSchema == nil {
		def.InputSchema = reflectInputSchema[A]()
	}
	if def.OutputSchema == nil {
		def.OutputSchema = reflectOutputSchema[O]()
	}
	id := def.ID

	handler := func(ctx context.Context, args Arguments) (Result, error) {
		var a A
		b, err := json.Marshal(args)
		if err != nil {
			return Result{}, fmt.Errorf("encode arguments: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&a); err != nil {
			return Result{}, fmt.Errorf("decode arguments: %w", err)
		}

		r := &Request[A]{id: id, raw: args, args: a}
		out, err := fn(ctx, r)
		if err != nil {
			return Result{}, err
		}
		m, err := toOutputMap(out)
		if err != nil {
			return Result{}, err
		}
		return Result{Output: m, Diagnostics: r.diagnostics}, nil
	}

	return Tool{Definition: def, Handler: handler}
}

func toOutputMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("output must encode as a JSON object: %w", err)
	}
	return m, nil
}

func reflectSchema[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	return r.Reflect(new(T))
}

// reflectInputSchema reflects A into the parameter map of a Definition. Non
// object types yield an empty schema, so the tool accepts no arguments.
func reflectInputSchema[A any]() map[string]ParameterSchema {
	s := reflectSchema[A]()
	if s == nil || s.Type != TypeObject || s.Properties == nil {
		return map[string]ParameterSchema{}
	}
	return toParameters(s)
}

func toParameters(s *jsonschema.Schema) map[string]ParameterSchema {
	props := make(map[string]ParameterSchema, s.Properties.Len())
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		props[el.Key] = toParameter(el.Value, slices.Contains(s.Required, el.Key))
	}
	return props
}

// toParameter recursively maps a jsonschema.Schema to a ParameterSchema.
func toParameter(s *jsonschema.Schema, required bool) ParameterSchema {
	if s == nil {
		return ParameterSchema{}
	}
	p := ParameterSchema{
		Type:        s.Type,
		Required:    required,
		Description: s.Description,
		Default:     s.Default,
	}
	for _, e := range s.Enum {
		p.Enum = append(p.Enum, fmt.Sprint(e))
	}
	if s.Minimum != "" {
		if f, err := s.Minimum.Float64(); err == nil {
			p.Minimum = &f
		}
	}
	if s.Maximum != "" {
		if f, err := s.Maximum.Float64(); err == nil {
			p.Maximum = &f
		}
	}
	if s.Type == TypeArray && s.Items != nil {
		item := toParameter(s.Items, false)
		p.Items = &item
	}
	if s.Type == TypeObject && s.Properties != nil {
		p.Properties = toParameters(s)
	}
	return p
}

func reflectOutputSchema[O any]() map[string]OutputSchema {
	s := reflectSchema[O]()
	if s == nil || s.Type != TypeObject || s.Properties == nil {
		return nil
	}
	return toOutputs(s)
}

func toOutputs(s *jsonschema.Schema) map[string]OutputSchema {
	props := make(map[string]OutputSchema, s.Properties.Len())
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		props[el.Key] = toOutput(el.Value)
	}
	return props
}

func toOutput(s *jsonschema.Schema) OutputSchema {
	if s == nil {
		return OutputSchema{}
	}
	o := OutputSchema{Type: s.Type, Description: s.Description}
	if s.Type == TypeArray && s.Items != nil {
		item := toOutput(s.Items)
		o.Items = &item
	}
	if s.Type == TypeObject && s.Properties != nil {
		o.Properties = toOutputs(s)
	}
	return o
}
