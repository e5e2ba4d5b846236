package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const version = "2.0"

// Request is the JSON-RPC request envelope.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrorObject    `json:"error"`
}

// Caller invokes a remote method and decodes its result into out.
type Caller interface {
	Call(ctx context.Context, method string, out interface{}, params ...interface{}) error
}

// Observer is notified after every call with the method name, how long the
// exchange took and its error, if any.
type Observer func(method string, took time.Duration, err error)

// Channel sends JSON-RPC requests over a Transport, one exchange per call.
type Channel struct {
	transport Transport
	logger    logrus.FieldLogger
	observer  Observer
	nextID    atomic.Uint64
}

var _ Caller = (*Channel)(nil)

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithLogger sets the logger used for request tracing.
func WithLogger(l logrus.FieldLogger) ChannelOption {
	return func(c *Channel) {
		c.logger = l
	}
}

// WithObserver registers a callback invoked after every call.
func WithObserver(o Observer) ChannelOption {
	return func(c *Channel) {
		c.observer = o
	}
}

// NewChannel creates a Channel on top of the given transport.
func NewChannel(t Transport, opts ...ChannelOption) *Channel {
	c := &Channel{
		transport: t,
		logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial creates a Channel talking HTTP to url.
func Dial(url string, opts ...HTTPOption) *Channel {
	return NewChannel(NewHTTPTransport(url, opts...))
}

// Call performs method with params and decodes the result into out. A nil
// out discards the result.
func (c *Channel) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	start := time.Now()
	err := c.call(ctx, method, out, params)
	if c.observer != nil {
		c.observer(method, time.Since(start), err)
	}
	return err
}

func (c *Channel) call(ctx context.Context, method string, out interface{}, params []interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := &Request{
		JSONRPC: version,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	log := c.logger.WithFields(logrus.Fields{"method": method, "id": req.ID})
	log.Debug("Sending JSON-RPC request")

	resp, err := c.transport(ctx, body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       resp.Body,
		}
	}

	envelope, err := decodeEnvelope(resp.Body)
	if err != nil {
		return &ProtocolError{Body: resp.Body, Err: err}
	}

	if envelope.Error != nil {
		rpcErr := newRPCError(envelope.Error, req)
		log.WithFields(logrus.Fields{"code": rpcErr.Code, "error": rpcErr.Message}).Debug("JSON-RPC error")
		return rpcErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &ProtocolError{Body: resp.Body, Err: fmt.Errorf("decoding %s result: %w", method, err)}
	}
	return nil
}

func decodeEnvelope(body []byte) (*response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	_, hasResult := fields["result"]
	_, hasError := fields["error"]
	if !hasResult && !hasError {
		return nil, errors.New("response has neither result nor error")
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if hasError && resp.Error == nil && !hasResult {
		return nil, errors.New("response error is null")
	}
	if len(resp.Result) == 0 {
		resp.Result = json.RawMessage("null")
	}
	return &resp, nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
