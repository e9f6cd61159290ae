package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ProtocolVersion is the only accepted envelope protocol version.
const ProtocolVersion = "2.0"

// Request is an inbound request envelope.
type Request struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ID              *RequestID      `json:"id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound response envelope. Exactly one of Result or Error is
// set; the constructors below are the only supported way to build one.
type Response struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ID              *RequestID      `json:"id"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           *Error          `json:"error,omitempty"`
}

// Error is the error member of a response.
type Error struct {
	Code    ErrorCode  `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the tool id, the taxonomy tag and free-form details.
type ErrorData struct {
	Tool    string         `json:"tool,omitempty"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError builds an Error whose data.type is the code's taxonomy name.
func NewError(code ErrorCode, message, tool string, details map[string]any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data: &ErrorData{
			Tool:    tool,
			Type:    code.Name(),
			Details: details,
		},
	}
}

// NewResultResponse builds a successful response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		ProtocolVersion: ProtocolVersion,
		Result:          resultBytes,
		ID:              echoID(id),
	}, nil
}

// NewErrorResponse builds an error response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, details map[string]any) *Response {
	return NewToolErrorResponse(id, code, message, "", details)
}

// NewToolErrorResponse builds an error response attributed to a tool.
func NewToolErrorResponse(id *RequestID, code ErrorCode, message, tool string, details map[string]any) *Response {
	return &Response{
		ProtocolVersion: ProtocolVersion,
		Error:           NewError(code, message, tool, details),
		ID:              echoID(id),
	}
}

func echoID(id *RequestID) *RequestID {
	if id == nil {
		return NullRequestID()
	}
	return id
}

// Marshal encodes v deterministically: struct fields in declaration order, map
// keys sorted, control characters escaped and HTML characters left as-is. The
// result never contains a raw newline.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeError describes why a line could not be turned into a Request. ID is
// whatever could be recovered before the failure and may be null.
type DecodeError struct {
	ID   *RequestID
	Code ErrorCode
	Msg  string
}

func (e *DecodeError) Error() string { return e.Msg }

// Response returns the error response for this decode failure.
func (e *DecodeError) Response() *Response {
	return NewErrorResponse(e.ID, e.Code, e.Msg, nil)
}

var errTrailingData = errors.New("unexpected data after JSON object")

// DecodeRequest parses exactly one JSON object from line and validates it as a
// request envelope. Failures are returned as *DecodeError, never panics.
func DecodeRequest(line []byte) (*Request, error) {
	fields, err := decodeObject(line)
	if err != nil {
		return nil, &DecodeError{ID: NullRequestID(), Code: ErrorCodeParseError, Msg: "parse error: " + err.Error()}
	}

	id := NullRequestID()
	if raw, ok := fields["id"]; ok {
		var parsed RequestID
		if err := parsed.UnmarshalJSON(raw); err != nil {
			return nil, &DecodeError{ID: NullRequestID(), Code: ErrorCodeInvalidRequest, Msg: "invalid request: " + err.Error()}
		}
		id = &parsed
	}

	invalid := func(format string, a ...any) error {
		return &DecodeError{ID: id, Code: ErrorCodeInvalidRequest, Msg: "invalid request: " + fmt.Sprintf(format, a...)}
	}

	var version string
	raw, ok := fields["protocolVersion"]
	if !ok {
		return nil, invalid("missing protocolVersion")
	}
	if err := json.Unmarshal(raw, &version); err != nil || version != ProtocolVersion {
		return nil, invalid("unsupported protocolVersion %s", raw)
	}

	var method string
	raw, ok = fields["method"]
	if !ok {
		return nil, invalid("missing method")
	}
	if err := json.Unmarshal(raw, &method); err != nil {
		return nil, invalid("method must be a string")
	}
	if method == "" {
		return nil, invalid("method must not be empty")
	}

	req := &Request{ProtocolVersion: version, ID: id, Method: method}
	if raw, ok := fields["params"]; ok {
		trimmed := bytes.TrimSpace(raw)
		switch {
		case bytes.Equal(trimmed, nullID):
		case len(trimmed) > 0 && trimmed[0] == '{':
			req.Params = append(json.RawMessage(nil), trimmed...)
		default:
			return nil, invalid("params must be an object")
		}
	}
	return req, nil
}

func decodeObject(line []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("expected a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return fields, nil
}

// DecodeParams decodes request params into v, preserving number literals as
// json.Number. Absent params decode as an empty object.
func DecodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	return dec.Decode(v)
}
