package ethereum

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/grafana/sobek"
	"github.com/sirupsen/logrus"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/abi"
	"github.com/umbracle/ethgo/wallet"
	"go.k6.io/k6/js/modules"
	"go.k6.io/k6/js/promises"

	"github.com/distribworks/xk6-ethtx/client"
	"github.com/distribworks/xk6-ethtx/transaction"
)

const blockPollInterval = 500 * time.Millisecond

// Client is the JS facing Ethereum client. sendTransaction signs on the node,
// sendRawTransaction signs with the configured key, and contract calls use
// whichever the remoteSigner option selects.
type Client struct {
	vu      modules.VU
	metrics ethMetrics
	logger  logrus.FieldLogger
	opts    *options

	key     *wallet.Key
	chainID uint64

	remote  *client.Client
	local   *client.Client
	signing *client.Client
}

func (c *Client) ctx() context.Context {
	if c.vu != nil && c.vu.Context() != nil {
		return c.vu.Context()
	}
	return context.Background()
}

// Call invokes an arbitrary JSON-RPC method.
func (c *Client) Call(method string, params ...interface{}) (interface{}, error) {
	var out interface{}
	err := c.remote.Call(c.ctx(), method, &out, params...)
	return out, err
}

// ChainID returns the chain id the client signs for.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Address returns the address of the configured key.
func (c *Client) Address() string {
	return c.key.Address().String()
}

// GasPrice returns the node's gas price in wei.
func (c *Client) GasPrice() (uint64, error) {
	p, err := c.remote.GasPrice(c.ctx())
	if err != nil {
		return 0, err
	}
	if !p.IsUint64() {
		return 0, fmt.Errorf("gas price %s overflows uint64", p)
	}
	return p.Uint64(), nil
}

// GetBalance returns the balance in wei as a decimal string. block is a
// number or a tag and defaults to "latest".
func (c *Client) GetBalance(address string, block interface{}) (string, error) {
	tag, err := blockTag(block)
	if err != nil {
		return "", err
	}
	b, err := c.remote.Balance(c.ctx(), ethgo.HexToAddress(address), tag)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// BlockNumber returns the current block number.
func (c *Client) BlockNumber() (uint64, error) {
	return c.remote.BlockNumber(c.ctx())
}

// GetBlockByNumber returns the block with the given block number.
func (c *Client) GetBlockByNumber(number interface{}, full bool) (*Block, error) {
	tag, err := blockTag(number)
	if err != nil {
		return nil, err
	}
	return ethGetBlockByNumber.Invoke(c.ctx(), c.remote.Caller(), blockQuery{number: tag, full: full})
}

// GetNonce returns the pending nonce for the given address.
func (c *Client) GetNonce(address string) (uint64, error) {
	return c.remote.PendingNonce(c.ctx(), ethgo.HexToAddress(address))
}

// EstimateGas returns the estimated gas for the given transaction sent from
// the configured key unless it names a sender.
func (c *Client) EstimateGas(tx Transaction) (uint64, error) {
	req, err := tx.request()
	if err != nil {
		return 0, err
	}
	u := &transaction.Unsigned{
		From:     c.key.Address(),
		To:       req.To,
		Value:    req.Value,
		Data:     req.Data,
		GasPrice: req.GasPrice,
	}
	if req.From != nil {
		u.From = *req.From
	}

	gas, err := c.remote.EstimateGas(c.ctx(), u)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return gas, nil
}

// SendTransaction sends a transaction signed by the node.
func (c *Client) SendTransaction(tx Transaction) (string, error) {
	return c.send(c.remote, tx)
}

// SendRawTransaction signs the transaction with the configured key and sends it.
func (c *Client) SendRawTransaction(tx Transaction) (string, error) {
	return c.send(c.local, tx)
}

func (c *Client) send(cl *client.Client, tx Transaction) (string, error) {
	req, err := tx.request()
	if err != nil {
		return "", err
	}
	h, err := cl.SendTransaction(c.ctx(), req)
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// GetTransactionReceipt returns the transaction receipt for the given transaction hash.
func (c *Client) GetTransactionReceipt(hash string) (*Receipt, error) {
	r, err := c.remote.TransactionReceipt(c.ctx(), ethgo.HexToHash(hash))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("receipt for %s not found", hash)
	}
	return newReceipt(r), nil
}

// WaitForTransactionReceipt resolves once the transaction is mined.
func (c *Client) WaitForTransactionReceipt(hash string) *sobek.Promise {
	promise, resolve, reject := promises.New(c.vu)
	now := time.Now()

	go func() {
		r, err := c.remote.WaitForReceipt(c.ctx(), ethgo.HexToHash(hash))
		if err != nil {
			reject(err)
			return
		}
		c.push(taggedSample{
			metric: c.metrics.TimeToMine,
			value:  float64(time.Since(now)) / float64(time.Millisecond),
		})
		resolve(newReceipt(r))
	}()

	return promise
}

// Accounts returns a list of addresses owned by client. This endpoint is not enabled in infrastructure providers.
func (c *Client) Accounts() ([]string, error) {
	accounts, err := c.remote.Accounts(c.ctx())
	if err != nil {
		return nil, err
	}

	addresses := make([]string, len(accounts))
	for i, a := range accounts {
		addresses[i] = a.String()
	}

	return addresses, nil
}

// SignMessage signs message as a personal message and returns the 0x
// prefixed signature.
func (c *Client) SignMessage(message string) (string, error) {
	sig, err := c.signing.SignMessage(c.ctx(), []byte(message))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// NewContract creates a new contract instance with the given ABI.
func (c *Client) NewContract(address string, abistr string) (*Contract, error) {
	contractABI, err := abi.NewABI(abistr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}

	return &Contract{
		address: ethgo.HexToAddress(address),
		abi:     contractABI,
		client:  c,
	}, nil
}

// DeployContract deploys a contract and waits until its creation is mined.
func (c *Client) DeployContract(abistr string, bytecode string, args ...interface{}) (*Receipt, error) {
	contractABI, err := abi.NewABI(abistr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}

	code, err := decodeHex(bytecode)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bytecode: %w", err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("failed to deploy contract: empty bytecode")
	}

	if contractABI.Constructor != nil {
		encoded, err := abi.Encode(args, contractABI.Constructor.Inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode constructor arguments: %w", err)
		}
		code = append(code, encoded...)
	} else if len(args) > 0 {
		return nil, fmt.Errorf("failed to deploy contract: abi has no constructor but %d arguments were given", len(args))
	}

	r, err := c.signing.Deploy(c.ctx(), client.TxRequest{Data: code})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy contract: %w", err)
	}
	return newReceipt(r), nil
}

// pollForBlocks emits block metrics for every new block until the VU context
// is done.
func (c *Client) pollForBlocks() {
	ctx := c.ctx()
	ticker := time.NewTicker(blockPollInterval)
	defer ticker.Stop()

	var lastBlockNumber uint64
	var prevBlock *Block
	now := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		blockNumber, err := c.remote.BlockNumber(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to poll block number")
			continue
		}
		if blockNumber <= lastBlockNumber {
			continue
		}

		// Wall clock time between two observed blocks.
		blockTime := time.Since(now)
		now = time.Now()

		block, err := c.GetBlockByNumber(blockNumber, false)
		if err != nil || block == nil {
			c.logger.WithError(err).WithField("block", blockNumber).Warn("Failed to fetch block")
			continue
		}
		lastBlockNumber = blockNumber

		c.push(blockSamples(c.metrics, block, prevBlock, blockTime)...)
		prevBlock = block
	}
}

func blockSamples(m ethMetrics, block, prev *Block, blockTime time.Duration) []taggedSample {
	var timestampDiff time.Duration
	var tps float64
	if prev != nil && block.Timestamp > prev.Timestamp {
		timestampDiff = time.Duration(block.Timestamp-prev.Timestamp) * time.Second
		tps = float64(len(block.Transactions)) / timestampDiff.Seconds()
	}

	return []taggedSample{
		{
			metric: m.Block,
			tags: map[string]string{
				"transactions": strconv.Itoa(len(block.Transactions)),
				"gas_used":     strconv.FormatUint(block.GasUsed, 10),
				"gas_limit":    strconv.FormatUint(block.GasLimit, 10),
			},
			value: float64(block.Number),
		},
		{
			metric: m.GasUsed,
			tags:   map[string]string{"block": strconv.FormatUint(block.Number, 10)},
			value:  float64(block.GasUsed),
		},
		{
			metric: m.TPS,
			value:  tps,
		},
		{
			metric: m.BlockTime,
			tags:   map[string]string{"block_timestamp_diff": timestampDiff.String()},
			value:  float64(blockTime.Milliseconds()),
		},
	}
}
