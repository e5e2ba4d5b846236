package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/distribworks/xk6-ethtx/jsonrpc"
)

type call struct {
	Method string
	Params []json.RawMessage
}

type handler func(params []json.RawMessage) (interface{}, *jsonrpc.ErrorObject)

// fakeNode answers JSON-RPC requests from canned handlers and records them.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    []call
}

func newFakeNode() *fakeNode {
	return &fakeNode{handlers: map[string]handler{}}
}

func (n *fakeNode) on(method string, h handler) *fakeNode {
	n.handlers[method] = h
	return n
}

func (n *fakeNode) result(method string, v interface{}) *fakeNode {
	return n.on(method, func([]json.RawMessage) (interface{}, *jsonrpc.ErrorObject) {
		return v, nil
	})
}

// sequence answers method with each value in turn, repeating the last one.
func (n *fakeNode) sequence(method string, values ...interface{}) *fakeNode {
	i := 0
	return n.on(method, func([]json.RawMessage) (interface{}, *jsonrpc.ErrorObject) {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v, nil
	})
}

func (n *fakeNode) callsTo(method string) []call {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []call
	for _, c := range n.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (n *fakeNode) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	for i, c := range n.calls {
		out[i] = c.Method
	}
	return out
}

func (n *fakeNode) transport(ctx context.Context, body []byte) (*jsonrpc.HTTPResponse, error) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.calls = append(n.calls, call{Method: req.Method, Params: req.Params})
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &jsonrpc.ErrorObject{Code: -32601, Message: fmt.Sprintf("method %s not found", req.Method)}
	} else if res, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = res
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &jsonrpc.HTTPResponse{StatusCode: 200, Status: "200 OK", Body: out}, nil
}

func (n *fakeNode) channel() *jsonrpc.Channel {
	return jsonrpc.NewChannel(n.transport)
}

func param[T any](t *testing.T, c call, i int) T {
	t.Helper()
	require.Greater(t, len(c.Params), i)
	var v T
	require.NoError(t, json.Unmarshal(c.Params[i], &v))
	return v
}

// countingBackOff returns a zero delay and counts how often it was asked.
type countingBackOff struct {
	calls int
	stop  int
}

func (b *countingBackOff) NextBackOff() time.Duration {
	b.calls++
	if b.stop > 0 && b.calls >= b.stop {
		return backoff.Stop
	}
	return 0
}

func (b *countingBackOff) Reset() {}
