package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
	"github.com/umbracle/ethgo"

	"github.com/distribworks/xk6-ethtx/transaction"
)

// ProvisionalGasLimit is the gas ceiling placed on a transaction while its
// fee is estimated. It is never broadcast.
const ProvisionalGasLimit = 10_000_000

// TxRequest is a partially specified transaction. Nil fields are filled in
// by Assemble. A nil To creates a contract.
type TxRequest struct {
	From     *ethgo.Address
	To       *ethgo.Address
	Value    *big.Int
	Data     []byte
	GasLimit *uint64
	GasPrice *big.Int
	Nonce    *uint64
}

// AddressProvider returns the sender used when a request has none. A nil
// address means the zero address.
type AddressProvider func(ctx context.Context) (*ethgo.Address, error)

// GasPriceProvider returns the gas price for a new transaction.
type GasPriceProvider func(ctx context.Context) (*big.Int, error)

// GasEstimator estimates the gas a candidate transaction needs.
type GasEstimator func(ctx context.Context, tx *transaction.Unsigned) (uint64, error)

// GasLimitProvider picks the final gas limit for tx, typically by calling
// estimate.
type GasLimitProvider func(ctx context.Context, tx *transaction.Unsigned, estimate GasEstimator) (uint64, error)

// StaticAddress returns an AddressProvider that always answers addr.
func StaticAddress(addr ethgo.Address) AddressProvider {
	return func(context.Context) (*ethgo.Address, error) {
		return &addr, nil
	}
}

// StaticGasPrice returns a GasPriceProvider that always answers price.
func StaticGasPrice(price *big.Int) GasPriceProvider {
	return func(context.Context) (*big.Int, error) {
		return new(big.Int).Set(price), nil
	}
}

// Assemble resolves every unset field of req.
func (c *Client) Assemble(ctx context.Context, req TxRequest) (*transaction.Unsigned, error) {
	tx := &transaction.Unsigned{
		To:       req.To,
		Value:    req.Value,
		Data:     req.Data,
		GasLimit: ProvisionalGasLimit,
	}

	if req.From != nil {
		tx.From = *req.From
	} else {
		from, err := c.addressProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sender: %w", err)
		}
		if from != nil {
			tx.From = *from
		}
	}

	if tx.Value == nil {
		tx.Value = new(big.Int)
	}
	if tx.Data == nil {
		tx.Data = []byte{}
	}
	if req.GasLimit != nil {
		tx.GasLimit = *req.GasLimit
	}

	if req.GasPrice != nil {
		tx.GasPrice = req.GasPrice
	} else {
		price, err := c.gasPriceProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		tx.GasPrice = price
	}

	if req.GasLimit == nil {
		gas, err := c.gasLimitProvider(ctx, tx, c.EstimateGas)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		tx.GasLimit = gas
	}

	if req.Nonce != nil {
		tx.Nonce = *req.Nonce
	} else {
		nonce, err := c.PendingNonce(ctx, tx.From)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}
		tx.Nonce = nonce
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	tx.ChainID = chainID

	c.logger.WithFields(logrus.Fields{
		"from":     tx.From.String(),
		"to":       addressField(tx.To),
		"gas":      tx.GasLimit,
		"gasPrice": tx.GasPrice,
		"value":    tx.Value,
		"nonce":    tx.Nonce,
		"chainId":  tx.ChainID,
	}).Debug("Assembled transaction")

	return tx, nil
}

func addressField(addr *ethgo.Address) string {
	if addr == nil {
		return "<create>"
	}
	return addr.String()
}
