package jsonrpc

// ErrorCode is a wire error code from the bridge taxonomy.
type ErrorCode int

const (
	// ErrorCodeParseError indicates a line that is not exactly one well-formed JSON object.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the object is not a valid request envelope.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates a fault inside the bridge itself.
	ErrorCodeInternalError ErrorCode = -32603

	// ErrorCodeToolNotFound indicates the requested tool id is not registered.
	ErrorCodeToolNotFound ErrorCode = -32001
	// ErrorCodeInvalidToolArguments indicates the arguments failed schema validation.
	ErrorCodeInvalidToolArguments ErrorCode = -32002
	// ErrorCodeToolExecutionError indicates the tool handler failed.
	ErrorCodeToolExecutionError ErrorCode = -32003
	// ErrorCodeToolExecutionTimeout indicates the tool did not complete in time.
	ErrorCodeToolExecutionTimeout ErrorCode = -32004
)

// Name returns the taxonomy tag used in error.data.type.
func (c ErrorCode) Name() string {
	switch c {
	case ErrorCodeParseError:
		return "ParseError"
	case ErrorCodeInvalidRequest:
		return "InvalidRequest"
	case ErrorCodeMethodNotFound:
		return "MethodNotFound"
	case ErrorCodeInvalidParams:
		return "InvalidParams"
	case ErrorCodeInternalError:
		return "InternalError"
	case ErrorCodeToolNotFound:
		return "ToolNotFound"
	case ErrorCodeInvalidToolArguments:
		return "InvalidToolArguments"
	case ErrorCodeToolExecutionError:
		return "ToolExecutionError"
	case ErrorCodeToolExecutionTimeout:
		return "ToolExecutionTimeout"
	default:
		return "Unknown"
	}
}
