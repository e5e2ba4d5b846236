package ethereum

import (
	"fmt"
	"math/big"

	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/abi"

	"github.com/distribworks/xk6-ethtx/client"
	"github.com/distribworks/xk6-ethtx/transaction"
)

// Contract exposes a contract
type Contract struct {
	address ethgo.Address
	abi     *abi.ABI
	client  *Client
}

// TxnOpts overrides fields of a contract transaction. Zero values are
// resolved against the node.
type TxnOpts struct {
	Value    int64  `js:"value"`
	GasPrice uint64 `js:"gasPrice"`
	GasLimit uint64 `js:"gasLimit"`
	Nonce    uint64 `js:"nonce"`
}

func (c *Contract) encode(method string, args []interface{}) (*abi.Method, []byte, error) {
	m := c.abi.GetMethod(method)
	if m == nil {
		return nil, nil, fmt.Errorf("method %s not found", method)
	}
	data, err := m.Encode(args)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s arguments: %w", method, err)
	}
	return m, data, nil
}

// Call executes a call on the contract against the latest block.
func (c *Contract) Call(method string, args ...interface{}) (map[string]interface{}, error) {
	m, data, err := c.encode(method, args)
	if err != nil {
		return nil, err
	}

	to := c.address
	out, err := c.client.signing.CallContract(c.client.ctx(), &transaction.Unsigned{
		From: c.client.key.Address(),
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return m.Decode(out)
}

// Txn sends a transaction to the contract and returns its hash without
// waiting for it to be mined.
func (c *Contract) Txn(method string, opts TxnOpts, args ...interface{}) (string, error) {
	_, data, err := c.encode(method, args)
	if err != nil {
		return "", err
	}
	if opts.Value < 0 {
		return "", fmt.Errorf("negative value %d", opts.Value)
	}

	to := c.address
	req := client.TxRequest{
		To:    &to,
		Value: big.NewInt(opts.Value),
		Data:  data,
	}
	if opts.GasLimit != 0 {
		req.GasLimit = &opts.GasLimit
	}
	if opts.GasPrice != 0 {
		req.GasPrice = new(big.Int).SetUint64(opts.GasPrice)
	}
	if opts.Nonce != 0 {
		req.Nonce = &opts.Nonce
	}

	h, err := c.client.signing.SendTransaction(c.client.ctx(), req)
	if err != nil {
		return "", fmt.Errorf("failed to send contract transaction: %w", err)
	}
	return h.String(), nil
}
