package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest_Valid(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"protocolVersion":"2.0","id":1,"method":"tools/call","params":{"tool":"ping"}}`))
	require.NoError(t, err)
	assert.Equal(t, "tools/call", req.Method)
	assert.Equal(t, "1", string(req.ID.Raw()))
	assert.JSONEq(t, `{"tool":"ping"}`, string(req.Params))
}

func TestDecodeRequest_IDForms(t *testing.T) {
	cases := map[string]string{
		`"abc"`: `"abc"`,
		`7`:     `7`,
		`1.50`:  `1.50`,
		`null`:  `null`,
	}
	for in, want := range cases {
		req, err := DecodeRequest([]byte(`{"protocolVersion":"2.0","id":` + in + `,"method":"m"}`))
		require.NoError(t, err, in)
		assert.Equal(t, want, string(req.ID.Raw()), in)
	}

	req, err := DecodeRequest([]byte(`{"protocolVersion":"2.0","method":"m"}`))
	require.NoError(t, err)
	assert.True(t, req.ID.IsNil())
}

func TestDecodeRequest_Failures(t *testing.T) {
	cases := []struct {
		name   string
		line   string
		code   ErrorCode
		wantID string
	}{
		{"not json", `{"protocolVersion":`, ErrorCodeParseError, "null"},
		{"array", `[1,2]`, ErrorCodeParseError, "null"},
		{"scalar", `42`, ErrorCodeParseError, "null"},
		{"null", `null`, ErrorCodeParseError, "null"},
		{"trailing object", `{"a":1} {"b":2}`, ErrorCodeParseError, "null"},
		{"object id", `{"protocolVersion":"2.0","id":{},"method":"m"}`, ErrorCodeInvalidRequest, "null"},
		{"bool id", `{"protocolVersion":"2.0","id":true,"method":"m"}`, ErrorCodeInvalidRequest, "null"},
		{"missing version", `{"id":3,"method":"m"}`, ErrorCodeInvalidRequest, "3"},
		{"wrong version", `{"protocolVersion":"1.0","id":3,"method":"m"}`, ErrorCodeInvalidRequest, "3"},
		{"missing method", `{"protocolVersion":"2.0","id":"x"}`, ErrorCodeInvalidRequest, `"x"`},
		{"numeric method", `{"protocolVersion":"2.0","id":"x","method":5}`, ErrorCodeInvalidRequest, `"x"`},
		{"empty method", `{"protocolVersion":"2.0","id":"x","method":""}`, ErrorCodeInvalidRequest, `"x"`},
		{"array params", `{"protocolVersion":"2.0","id":"x","method":"m","params":[1]}`, ErrorCodeInvalidRequest, `"x"`},
		{"non utf8 id", "{\"protocolVersion\":\"2.0\",\"id\":\"a\xff\",\"method\":\"m\"}", ErrorCodeInvalidRequest, "null"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tc.line))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected DecodeError, got %v", err)
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, tc.wantID, string(de.ID.Raw()))

			resp := de.Response()
			require.NotNil(t, resp.Error)
			assert.Nil(t, resp.Result)
			assert.Equal(t, tc.code.Name(), resp.Error.Data.Type)

			b, err := Marshal(resp)
			require.NoError(t, err)
			assert.True(t, utf8.Valid(b), "response is not valid UTF-8: %q", b)
		})
	}
}

func TestMarshal_ResultResponseShape(t *testing.T) {
	res, err := NewResultResponse(NewRequestID(1), struct {
		Tool   string         `json:"tool"`
		Output map[string]any `json:"output"`
	}{Tool: "ping", Output: map[string]any{"pong": true}})
	require.NoError(t, err)

	b, err := Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `{"protocolVersion":"2.0","id":1,"result":{"tool":"ping","output":{"pong":true}}}`, string(b))
}

func TestMarshal_ErrorResponseNullID(t *testing.T) {
	b, err := Marshal(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	require.NoError(t, err)
	assert.Equal(t, `{"protocolVersion":"2.0","id":null,"error":{"code":-32700,"message":"parse error","data":{"type":"ParseError"}}}`, string(b))
}

func TestMarshal_DeterministicAndEscaped(t *testing.T) {
	v := map[string]any{"z": 1, "a": "<tag>&\x01\n", "m": map[string]any{"y": 2, "b": 1}}
	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.Equal(t, `{"a":"<tag>&\u0001\n","m":{"b":1,"y":2},"z":1}`, string(first))
	assert.NotContains(t, string(first), "\n")
}

func TestDecodeParams_PreservesNumbers(t *testing.T) {
	var v map[string]any
	require.NoError(t, DecodeParams(json.RawMessage(`{"n":12345678901234567890}`), &v))
	n, ok := v["n"].(json.Number)
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", n.String())

	var empty map[string]any
	require.NoError(t, DecodeParams(nil, &empty))
	assert.Empty(t, empty)
}
