package jsonrpc

import "context"

// Method binds a remote method name to its request and response types.
// Params encodes the request into positional parameters; the response is
// decoded from the JSON result.
type Method[Req, Resp any] struct {
	Name   string
	Params func(Req) []interface{}
}

// NewMethod returns a typed Method.
func NewMethod[Req, Resp any](name string, params func(Req) []interface{}) Method[Req, Resp] {
	return Method[Req, Resp]{Name: name, Params: params}
}

// Invoke calls the method through c.
func (m Method[Req, Resp]) Invoke(ctx context.Context, c Caller, req Req) (Resp, error) {
	var (
		out    Resp
		params []interface{}
	)
	if m.Params != nil {
		params = m.Params(req)
	}
	err := c.Call(ctx, m.Name, &out, params...)
	return out, err
}

// NoParams is the request type of methods without parameters.
type NoParams struct{}

// Empty encodes NoParams.
func Empty(NoParams) []interface{} {
	return nil
}
