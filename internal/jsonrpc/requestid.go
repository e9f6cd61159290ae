package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

var nullID = []byte("null")

// RequestID is an opaque request id. It keeps the exact JSON bytes supplied by
// the client so responses echo it unchanged. The zero value and a nil pointer
// both encode as null.
type RequestID struct {
	raw json.RawMessage
}

// NewRequestID creates a RequestID from a string or number. Any other value
// yields a null id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		b, err := json.Marshal(v)
		if err != nil {
			return &RequestID{}
		}
		return &RequestID{raw: b}
	default:
		return &RequestID{}
	}
}

// NullRequestID returns an explicit null id.
func NullRequestID() *RequestID { return &RequestID{} }

// String returns a log-friendly form of the id.
func (id *RequestID) String() string {
	if id.IsNil() {
		return "null"
	}
	var s string
	if err := json.Unmarshal(id.raw, &s); err == nil {
		return s
	}
	return string(id.raw)
}

// IsNil reports whether the id is null or absent.
func (id *RequestID) IsNil() bool {
	if id == nil || len(id.raw) == 0 {
		return true
	}
	return bytes.Equal(id.raw, nullID)
}

// Raw returns the JSON bytes of the id.
func (id *RequestID) Raw() json.RawMessage {
	if id.IsNil() {
		return json.RawMessage(nullID)
	}
	return id.raw
}

// MarshalJSON implements json.Marshaler. Null ids are written as null.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	return id.Raw(), nil
}

// UnmarshalJSON accepts a string, a number or null.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("request id is empty")
	}
	switch trimmed[0] {
	case 'n':
		if !bytes.Equal(trimmed, nullID) {
			return fmt.Errorf("request id must be a string, number or null, got: %s", trimmed)
		}
		id.raw = nil
		return nil
	case '"':
		// Echoed verbatim, so it must already be valid UTF-8.
		if !utf8.Valid(trimmed) {
			return fmt.Errorf("request id is not valid UTF-8")
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("request id: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("request id must be a string, number or null, got: %s", trimmed)
		}
	}
	id.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}
