package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticTransport(status int, body string) Transport {
	return func(ctx context.Context, _ []byte) (*HTTPResponse, error) {
		return &HTTPResponse{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       []byte(body),
		}, nil
	}
}

func TestChannelCallOverHTTP(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x2a"}`))
	}))
	defer srv.Close()

	c := Dial(srv.URL, WithHeader("X-Api-Key", "secret"), WithRateLimit(100))

	var out string
	require.NoError(t, c.Call(context.Background(), "eth_chainId", &out))
	assert.Equal(t, "0x2a", out)
	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, "eth_chainId", got.Method)
	assert.Equal(t, uint64(1), got.ID)
	assert.Empty(t, got.Params)
}

func TestChannelRequestIDsIncrease(t *testing.T) {
	var ids []uint64
	c := NewChannel(func(ctx context.Context, body []byte) (*HTTPResponse, error) {
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))
		ids = append(ids, req.ID)
		return &HTTPResponse{StatusCode: 200, Body: []byte(`{"result":null}`)}, nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Call(context.Background(), "eth_blockNumber", nil))
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestChannelTransportError(t *testing.T) {
	c := NewChannel(staticTransport(http.StatusBadGateway, "upstream down"))

	err := c.Call(context.Background(), "eth_gasPrice", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.Equal(t, "Bad Gateway", transportErr.Status)
	assert.Equal(t, []byte("upstream down"), transportErr.Body)
}

func TestChannelExchangeFailure(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewChannel(func(context.Context, []byte) (*HTTPResponse, error) {
		return nil, boom
	})

	err := c.Call(context.Background(), "eth_gasPrice", nil)
	require.ErrorIs(t, err, boom)
}

func TestChannelProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"array", `[1,2,3]`},
		{"missing members", `{"jsonrpc":"2.0","id":1}`},
		{"null error only", `{"jsonrpc":"2.0","id":1,"error":null}`},
		{"result type mismatch", `{"jsonrpc":"2.0","id":1,"result":{"a":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChannel(staticTransport(http.StatusOK, tt.body))
			var out string
			err := c.Call(context.Background(), "eth_chainId", &out)
			var protoErr *ProtocolError
			require.ErrorAs(t, err, &protoErr)
			assert.Equal(t, []byte(tt.body), protoErr.Body)
		})
	}
}

func TestChannelRPCError(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"VM Exception","data":"revert: not owner"}}`
	c := NewChannel(staticTransport(http.StatusOK, body))

	err := c.Call(context.Background(), "eth_sendRawTransaction", nil, "0x01")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "Contract Error: not owner", rpcErr.Message)
	assert.Equal(t, "Contract Error: not owner", rpcErr.Error())
	assert.Equal(t, "VM Exception", rpcErr.NodeMessage)
	assert.JSONEq(t, `"revert: not owner"`, string(rpcErr.Data))
	require.NotNil(t, rpcErr.Request)
	assert.Equal(t, "eth_sendRawTransaction", rpcErr.Request.Method)
	assert.Equal(t, []interface{}{"0x01"}, rpcErr.Request.Params)
}

func TestChannelNullResult(t *testing.T) {
	c := NewChannel(staticTransport(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":null}`))

	out := &struct{ A int }{A: 7}
	require.NoError(t, c.Call(context.Background(), "eth_getTransactionReceipt", &out))
	assert.Nil(t, out)
}

func TestChannelObserver(t *testing.T) {
	var (
		methods []string
		errs    []error
	)
	c := NewChannel(staticTransport(http.StatusInternalServerError, ""),
		WithObserver(func(method string, took time.Duration, err error) {
			methods = append(methods, method)
			errs = append(errs, err)
			assert.GreaterOrEqual(t, took, time.Duration(0))
		}))

	_ = c.Call(context.Background(), "eth_gasPrice", nil)
	assert.Equal(t, []string{"eth_gasPrice"}, methods)
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

func TestMethodInvoke(t *testing.T) {
	var params []interface{}
	c := NewChannel(func(ctx context.Context, body []byte) (*HTTPResponse, error) {
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))
		params = req.Params
		return &HTTPResponse{StatusCode: 200, Body: []byte(`{"result":"0x10"}`)}, nil
	})

	getBalance := NewMethod[string, string]("eth_getBalance", func(addr string) []interface{} {
		return []interface{}{addr, "latest"}
	})
	out, err := getBalance.Invoke(context.Background(), c, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0x10", out)
	assert.Equal(t, []interface{}{"0xabc", "latest"}, params)

	blockNumber := NewMethod[NoParams, string]("eth_blockNumber", Empty)
	out, err = blockNumber.Invoke(context.Background(), c, NoParams{})
	require.NoError(t, err)
	assert.Equal(t, "0x10", out)
	assert.Empty(t, params)
}
