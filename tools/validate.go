package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Validate checks args against a closed-world input schema and returns every
// problem found, ordered by schema key, then unknown key, then array index.
// A value with the wrong type is reported once and not descended into.
func Validate(schema map[string]ParameterSchema, args map[string]any) []ValidationError {
	var errs []ValidationError
	validateObject("", schema, args, &errs)
	return errs
}

func validateObject(prefix string, schema map[string]ParameterSchema, obj map[string]any, errs *[]ValidationError) {
	for _, name := range sortedKeys(schema) {
		p := schema[name]
		path := joinField(prefix, name)
		v, ok := obj[name]
		if !ok {
			if p.Required {
				*errs = append(*errs, ValidationError{FieldPath: path, Message: "required parameter is missing"})
			}
			continue
		}
		validateValue(path, p, v, errs)
	}
	for _, name := range sortedKeys(obj) {
		if _, ok := schema[name]; !ok {
			*errs = append(*errs, ValidationError{FieldPath: joinField(prefix, name), Message: "unknown parameter"})
		}
	}
}

func validateValue(path string, p ParameterSchema, v any, errs *[]ValidationError) {
	if !matchesType(p.Type, v) {
		*errs = append(*errs, ValidationError{
			FieldPath: path,
			Message:   fmt.Sprintf("expected %s, got %s", p.Type, typeName(v)),
		})
		return
	}

	if len(p.Enum) > 0 {
		if s := stringForm(v); !slices.Contains(p.Enum, s) {
			*errs = append(*errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("value %q is not one of [%s]", s, strings.Join(p.Enum, ", ")),
			})
		}
	}

	if p.Type == TypeInteger || p.Type == TypeNumber {
		f, _ := toFloat64(v)
		if p.Minimum != nil && f < *p.Minimum {
			*errs = append(*errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("value %s is below minimum %s", formatFloat(f), formatFloat(*p.Minimum)),
			})
		}
		if p.Maximum != nil && f > *p.Maximum {
			*errs = append(*errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("value %s is above maximum %s", formatFloat(f), formatFloat(*p.Maximum)),
			})
		}
	}

	switch p.Type {
	case TypeObject:
		if p.Properties != nil {
			m, _ := asMap(v)
			validateObject(path, p.Properties, m, errs)
		}
	case TypeArray:
		if p.Items != nil {
			arr, _ := v.([]any)
			for i, el := range arr {
				validateValue(fmt.Sprintf("%s[%d]", path, i), *p.Items, el, errs)
			}
		}
	}
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func matchesType(typ string, v any) bool {
	switch typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		_, ok := toInt64(v)
		return ok
	case TypeNumber:
		_, ok := toFloat64(v)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := asMap(v)
		return ok
	default:
		return false
	}
}

func typeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case json.Number:
		if _, ok := toInt64(x); ok {
			return TypeInteger
		}
		return TypeNumber
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeNumber
	case []any:
		return TypeArray
	case map[string]any, Arguments:
		return TypeObject
	default:
		return fmt.Sprintf("%T", v)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Arguments:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	default:
		if i, ok := toInt64(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

func stringForm(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// normalize returns a copy of obj with defaults applied to absent parameters
// and numbers converted to their declared Go types. obj must already have
// passed Validate against schema.
func normalize(schema map[string]ParameterSchema, obj map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for name, p := range schema {
		v, ok := obj[name]
		if !ok {
			if p.Default != nil {
				out[name] = normalizeValue(p, p.Default)
			}
			continue
		}
		out[name] = normalizeValue(p, v)
	}
	return out
}

func normalizeValue(p ParameterSchema, v any) any {
	switch p.Type {
	case TypeInteger:
		i, _ := toInt64(v)
		return i
	case TypeNumber:
		f, _ := toFloat64(v)
		return f
	case TypeObject:
		m, _ := asMap(v)
		if p.Properties == nil {
			return normalizeFree(m)
		}
		return normalize(p.Properties, m)
	case TypeArray:
		arr, _ := v.([]any)
		out := make([]any, len(arr))
		for i, el := range arr {
			if p.Items == nil {
				out[i] = normalizeFree(el)
			} else {
				out[i] = normalizeValue(*p.Items, el)
			}
		}
		return out
	default:
		return v
	}
}

// normalizeFree converts json.Number leaves of an undeclared subtree.
func normalizeFree(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, ok := toInt64(x); ok {
			return i
		}
		f, _ := toFloat64(x)
		return f
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = normalizeFree(el)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalizeFree(el)
		}
		return out
	default:
		return v
	}
}
