package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeArgs(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&m))
	return m
}

func paths(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.FieldPath
	}
	return out
}

var optionSchema = map[string]ParameterSchema{
	"name":  {Type: TypeString, Required: true},
	"count": {Type: TypeInteger, Minimum: Float(1), Maximum: Float(10)},
	"mode":  {Type: TypeString, Enum: []string{"fast", "slow"}},
	"options": {
		Type: TypeArray,
		Items: &ParameterSchema{
			Type: TypeObject,
			Properties: map[string]ParameterSchema{
				"name":  {Type: TypeString, Required: true},
				"ratio": {Type: TypeNumber, Minimum: Float(0), Maximum: Float(1)},
			},
		},
	},
	"filter": {
		Type: TypeObject,
		Properties: map[string]ParameterSchema{
			"level": {Type: TypeInteger, Enum: []string{"1", "2", "3"}},
		},
	},
	"extra": {Type: TypeObject},
}

func TestValidate_Valid(t *testing.T) {
	args := decodeArgs(t, `{"name":"a","count":10,"mode":"fast","options":[{"name":"x","ratio":0.5}],"filter":{"level":2},"extra":{"anything":[1,2]}}`)
	assert.Empty(t, Validate(optionSchema, args))
}

func TestValidate_MissingRequired(t *testing.T) {
	errs := Validate(map[string]ParameterSchema{"name": {Type: TypeString, Required: true}}, map[string]any{})
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].FieldPath)
	assert.Equal(t, "required parameter is missing", errs[0].Message)
}

func TestValidate_UnknownKey(t *testing.T) {
	errs := Validate(optionSchema, decodeArgs(t, `{"name":"a","bogus":1,"filter":{"level":1,"other":true}}`))
	assert.Equal(t, []string{"filter.other", "bogus"}, paths(errs))
}

func TestValidate_TypeMismatchStopsDescent(t *testing.T) {
	errs := Validate(optionSchema, decodeArgs(t, `{"name":5,"options":"nope","filter":[1]}`))
	assert.Equal(t, []string{"filter", "name", "options"}, paths(errs))
	assert.Equal(t, "expected object, got array", errs[0].Message)
	assert.Equal(t, "expected string, got integer", errs[1].Message)
}

func TestValidate_NullIsTypeMismatch(t *testing.T) {
	errs := Validate(optionSchema, decodeArgs(t, `{"name":null}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "expected string, got null", errs[0].Message)
}

func TestValidate_NestedArrayPaths(t *testing.T) {
	errs := Validate(optionSchema, decodeArgs(t, `{"name":"a","options":[{"name":"ok"},{"ratio":2},{"name":1,"x":0}]}`))
	assert.Equal(t, []string{"options[1].name", "options[1].ratio", "options[2].name", "options[2].x"}, paths(errs))
}

func TestValidate_EnumAndBounds(t *testing.T) {
	errs := Validate(optionSchema, decodeArgs(t, `{"name":"a","count":0,"mode":"medium","filter":{"level":4}}`))
	assert.Equal(t, []string{"count", "filter.level", "mode"}, paths(errs))
	assert.Equal(t, "value 0 is below minimum 1", errs[0].Message)
	assert.Contains(t, errs[2].Message, `"medium"`)

	errs = Validate(optionSchema, decodeArgs(t, `{"name":"a","count":11}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "value 11 is above maximum 10", errs[0].Message)
}

func TestValidate_BoundsAreInclusive(t *testing.T) {
	assert.Empty(t, Validate(optionSchema, decodeArgs(t, `{"name":"a","count":1}`)))
	assert.Empty(t, Validate(optionSchema, decodeArgs(t, `{"name":"a","options":[{"name":"b","ratio":0},{"name":"c","ratio":1}]}`)))
}

func TestValidate_IntegerForms(t *testing.T) {
	schema := map[string]ParameterSchema{"n": {Type: TypeInteger}}
	assert.Empty(t, Validate(schema, decodeArgs(t, `{"n":3}`)))
	assert.Empty(t, Validate(schema, decodeArgs(t, `{"n":3.0}`)))
	assert.Empty(t, Validate(schema, map[string]any{"n": 3}))
	assert.Len(t, Validate(schema, decodeArgs(t, `{"n":3.5}`)), 1)
	assert.Len(t, Validate(schema, decodeArgs(t, `{"n":"3"}`)), 1)
	assert.Len(t, Validate(schema, decodeArgs(t, `{"n":1e30}`)), 1)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	errs := Validate(optionSchema, decodeArgs(t, `{"count":"x","mode":true,"zzz":1}`))
	assert.Equal(t, []string{"count", "mode", "name", "zzz"}, paths(errs))
}

func TestNormalize_DefaultsAndNumbers(t *testing.T) {
	schema := map[string]ParameterSchema{
		"n":     {Type: TypeInteger, Default: 5},
		"f":     {Type: TypeNumber},
		"s":     {Type: TypeString, Default: "x"},
		"items": {Type: TypeArray, Items: &ParameterSchema{Type: TypeInteger}},
		"free":  {Type: TypeObject},
	}
	args := decodeArgs(t, `{"f":2,"items":[1,2.0],"free":{"k":7,"d":1.5}}`)
	require.Empty(t, Validate(schema, args))

	out := normalize(schema, args)
	assert.Equal(t, int64(5), out["n"])
	assert.Equal(t, float64(2), out["f"])
	assert.Equal(t, "x", out["s"])
	assert.Equal(t, []any{int64(1), int64(2)}, out["items"])
	assert.Equal(t, map[string]any{"k": int64(7), "d": 1.5}, out["free"])
}
