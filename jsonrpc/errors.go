package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// TransportError is returned when the node answers with a non-success HTTP status.
type TransportError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", e.Status)
}

// ProtocolError is returned when the response body is not a valid JSON-RPC envelope.
type ProtocolError struct {
	Body []byte
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid JSON-RPC response: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ErrorObject is the error member of a JSON-RPC response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCError is a well-formed JSON-RPC error returned by the node. Message holds
// the normalized text, which is the decoded revert reason when one is present.
type RPCError struct {
	Code        int
	Message     string
	NodeMessage string
	Data        json.RawMessage
	Request     *Request
}

func newRPCError(obj *ErrorObject, req *Request) *RPCError {
	return &RPCError{
		Code:        obj.Code,
		Message:     NormalizeMessage(obj),
		NodeMessage: obj.Message,
		Data:        obj.Data,
		Request:     req,
	}
}

func (e *RPCError) Error() string {
	return e.Message
}
