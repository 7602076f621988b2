package luacore

import "fmt"

// Protocol error codes, as used by JSON-RPC.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// ProtocolError is returned by method handlers and serialized as the
// "error" member of a response.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// errMethodNotFound builds the error for an unknown method.
func errMethodNotFound(method string) *ProtocolError {
	return &ProtocolError{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("'%s' wasn't found", method),
	}
}
