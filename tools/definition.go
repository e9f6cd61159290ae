package tools

import (
	"context"
	"fmt"
	"sort"
)

// Parameter and output type names.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

var validTypes = map[string]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeNumber:  {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
}

// SafetyLevel describes what a tool may do to host state.
type SafetyLevel string

const (
	SafetyReadOnly    SafetyLevel = "read_only"
	SafetyMutating    SafetyLevel = "mutating"
	SafetyDestructive SafetyLevel = "destructive"
)

// TierCore is the tier assigned when a definition does not name one.
const TierCore = "core"

// Definition describes a registered tool. It is immutable once registered.
type Definition struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description,omitempty"`
	Category     string                     `json:"category,omitempty"`
	SafetyLevel  SafetyLevel                `json:"safetyLevel"`
	Tier         string                     `json:"tier"`
	InputSchema  map[string]ParameterSchema `json:"inputSchema"`
	OutputSchema map[string]OutputSchema    `json:"outputSchema,omitempty"`
	Notes        string                     `json:"notes,omitempty"`
}

// ParameterSchema declares one input parameter. It is recursive through
// Properties (objects) and Items (arrays).
type ParameterSchema struct {
	Type        string                     `json:"type"`
	Required    bool                       `json:"required,omitempty"`
	Description string                     `json:"description,omitempty"`
	Default     any                        `json:"default,omitempty"`
	Enum        []string                   `json:"enum,omitempty"`
	Minimum     *float64                   `json:"minimum,omitempty"`
	Maximum     *float64                   `json:"maximum,omitempty"`
	Properties  map[string]ParameterSchema `json:"properties,omitempty"`
	Items       *ParameterSchema           `json:"items,omitempty"`
}

// OutputSchema documents one output field. It is descriptive only.
type OutputSchema struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]OutputSchema `json:"properties,omitempty"`
	Items       *OutputSchema           `json:"items,omitempty"`
}

// Summary is the listing form of a Definition.
type Summary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	SafetyLevel SafetyLevel `json:"safetyLevel"`
	Tier        string      `json:"tier"`
}

// Summary returns the listing form of d.
func (d Definition) Summary() Summary {
	return Summary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		SafetyLevel: d.SafetyLevel,
		Tier:        d.Tier,
	}
}

// Arguments is the validated, normalized argument tree passed to a handler.
// Integers arrive as int64, numbers as float64, arrays as []any and objects as
// map[string]any.
type Arguments map[string]any

// Result is a successful invocation outcome.
type Result struct {
	Output      map[string]any
	Diagnostics []string
}

// Handler executes a tool. It runs on the host's designated thread.
type Handler func(ctx context.Context, args Arguments) (Result, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Float returns a pointer to f, for Minimum and Maximum literals.
func Float(f float64) *float64 { return &f }

func checkDefinition(d Definition) error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	for _, name := range sortedKeys(d.InputSchema) {
		if err := checkParameter(name, d.InputSchema[name]); err != nil {
			return fmt.Errorf("%w: tool %q: %v", ErrInvalidDefinition, d.ID, err)
		}
	}
	return nil
}

func checkParameter(path string, p ParameterSchema) error {
	if _, ok := validTypes[p.Type]; !ok {
		return fmt.Errorf("%s: unsupported type %q", path, p.Type)
	}
	if len(p.Enum) > 0 && (p.Type == TypeArray || p.Type == TypeObject) {
		return fmt.Errorf("%s: enum is only allowed on scalar types", path)
	}
	if p.Default != nil && !matchesType(p.Type, p.Default) {
		return fmt.Errorf("%s: default %v is not of type %s", path, p.Default, p.Type)
	}
	if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
		return fmt.Errorf("%s: minimum %v exceeds maximum %v", path, *p.Minimum, *p.Maximum)
	}
	if p.Items != nil {
		if p.Type != TypeArray {
			return fmt.Errorf("%s: items declared on non-array type %q", path, p.Type)
		}
		if err := checkParameter(path+"[]", *p.Items); err != nil {
			return err
		}
	}
	if len(p.Properties) > 0 && p.Type != TypeObject {
		return fmt.Errorf("%s: properties declared on non-object type %q", path, p.Type)
	}
	for _, name := range sortedKeys(p.Properties) {
		if err := checkParameter(path+"."+name, p.Properties[name]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
