// Package client drives the transaction lifecycle against a JSON-RPC node:
// it assembles a transaction from partial input, signs it locally or on the
// node, submits it and waits until it is mined.
package client

import (
	"context"
	"io"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/umbracle/ethgo"
	"golang.org/x/sync/singleflight"

	"github.com/distribworks/xk6-ethtx/jsonrpc"
	"github.com/distribworks/xk6-ethtx/transaction"
)

// DefaultPollInterval is the delay between two receipt polls.
const DefaultPollInterval = time.Second

// Client assembles, signs, submits and confirms transactions.
type Client struct {
	rpc    jsonrpc.Caller
	signer Signer
	logger logrus.FieldLogger

	addressProvider  AddressProvider
	gasPriceProvider GasPriceProvider
	gasLimitProvider GasLimitProvider

	pollBackOff func() backoff.BackOff
	stageHook   StageHook

	chainID chainIDMemo
}

// Option configures a Client.
type Option func(*Client)

// WithSigner selects the signing strategy. The default is RemoteSigner.
func WithSigner(s Signer) Option {
	return func(c *Client) {
		c.signer = s
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithAddressProvider overrides how the sender is chosen when a request has none.
func WithAddressProvider(p AddressProvider) Option {
	return func(c *Client) {
		c.addressProvider = p
	}
}

// WithGasPriceProvider overrides the eth_gasPrice query.
func WithGasPriceProvider(p GasPriceProvider) Option {
	return func(c *Client) {
		c.gasPriceProvider = p
	}
}

// WithGasLimitProvider overrides gas estimation.
func WithGasLimitProvider(p GasLimitProvider) Option {
	return func(c *Client) {
		c.gasLimitProvider = p
	}
}

// WithChainID fixes the chain id; the node is never asked for it.
func WithChainID(id uint64) Option {
	return func(c *Client) {
		c.chainID.set(id)
	}
}

// WithPollInterval sets a constant delay between receipt polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollBackOff = func() backoff.BackOff {
			return backoff.NewConstantBackOff(d)
		}
	}
}

// WithPollBackOff sets the receipt polling schedule. A fresh BackOff is
// requested for every wait. Returning backoff.Stop ends the wait with
// ErrPollingStopped.
func WithPollBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		c.pollBackOff = f
	}
}

// WithStageHook registers a callback for lifecycle transitions.
func WithStageHook(h StageHook) Option {
	return func(c *Client) {
		c.stageHook = h
	}
}

// New creates a Client that talks to the node through rpc.
func New(rpc jsonrpc.Caller, opts ...Option) *Client {
	l := logrus.New()
	l.SetOutput(io.Discard)

	c := &Client{
		rpc:    rpc,
		signer: RemoteSigner(),
		logger: l,
	}
	c.addressProvider = c.defaultAccount
	c.gasPriceProvider = c.GasPrice
	c.gasLimitProvider = func(ctx context.Context, tx *transaction.Unsigned, estimate GasEstimator) (uint64, error) {
		return estimate(ctx, tx)
	}
	WithPollInterval(DefaultPollInterval)(c)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Caller returns the underlying JSON-RPC caller.
func (c *Client) Caller() jsonrpc.Caller {
	return c.rpc
}

// Signer returns the configured signing strategy.
func (c *Client) Signer() Signer {
	return c.signer
}

// Call invokes an arbitrary method.
func (c *Client) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	return c.rpc.Call(ctx, method, out, params...)
}

// ChainID returns the chain id, asking the node at most once per client.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	return c.chainID.get(ctx, func(ctx context.Context) (uint64, error) {
		id, err := ethChainID.Invoke(ctx, c.rpc, jsonrpc.NoParams{})
		if err != nil {
			return 0, err
		}
		c.logger.WithField("chainId", uint64(id)).Debug("Resolved chain id")
		return uint64(id), nil
	})
}

// GasPrice queries eth_gasPrice.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	p, err := ethGasPrice.Invoke(ctx, c.rpc, jsonrpc.NoParams{})
	if err != nil {
		return nil, err
	}
	return p.ToInt(), nil
}

// Accounts queries eth_accounts.
func (c *Client) Accounts(ctx context.Context) ([]ethgo.Address, error) {
	accounts, err := ethAccounts.Invoke(ctx, c.rpc, jsonrpc.NoParams{})
	if err != nil {
		return nil, err
	}
	out := make([]ethgo.Address, len(accounts))
	for i, a := range accounts {
		out[i] = ethgo.HexToAddress(a)
	}
	return out, nil
}

// PendingNonce returns the transaction count of addr including pending ones.
func (c *Client) PendingNonce(ctx context.Context, addr ethgo.Address) (uint64, error) {
	n, err := ethGetTransactionCount.Invoke(ctx, c.rpc, addr)
	return uint64(n), err
}

// BlockNumber queries eth_blockNumber.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := ethBlockNumber.Invoke(ctx, c.rpc, jsonrpc.NoParams{})
	return uint64(n), err
}

// Balance returns the balance of addr at block, which is a number or a tag
// such as "latest".
func (c *Client) Balance(ctx context.Context, addr ethgo.Address, block string) (*big.Int, error) {
	b, err := ethGetBalance.Invoke(ctx, c.rpc, balanceQuery{addr, block})
	if err != nil {
		return nil, err
	}
	return b.ToInt(), nil
}

// EstimateGas asks the node how much gas tx needs.
func (c *Client) EstimateGas(ctx context.Context, tx *transaction.Unsigned) (uint64, error) {
	gas, err := ethEstimateGas.Invoke(ctx, c.rpc, estimateArgs(tx))
	return uint64(gas), err
}

// CallContract executes a read-only call against the latest block.
func (c *Client) CallContract(ctx context.Context, tx *transaction.Unsigned) ([]byte, error) {
	out, err := ethCall.Invoke(ctx, c.rpc, estimateArgs(tx))
	return out, err
}

func (c *Client) defaultAccount(ctx context.Context) (*ethgo.Address, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// chainIDMemo resolves the chain id once and keeps the first success.
type chainIDMemo struct {
	group    singleflight.Group
	resolved atomic.Bool
	value    atomic.Uint64
}

func (m *chainIDMemo) set(id uint64) {
	m.value.Store(id)
	m.resolved.Store(true)
}

// get returns the memoized chain id or joins the in-flight fetch. The fetch
// ignores caller cancellation; each caller returns on its own ctx.
func (m *chainIDMemo) get(ctx context.Context, fetch func(context.Context) (uint64, error)) (uint64, error) {
	if m.resolved.Load() {
		return m.value.Load(), nil
	}
	ch := m.group.DoChan("chainId", func() (interface{}, error) {
		if m.resolved.Load() {
			return m.value.Load(), nil
		}
		id, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.set(id)
		return id, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(uint64), nil
	}
}
