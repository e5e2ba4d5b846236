package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/umbracle/ethgo"

	"github.com/distribworks/xk6-ethtx/transaction"
)

// Stage is a step of the transaction lifecycle.
type Stage int

const (
	StageBuilt Stage = iota
	StageEncoded
	StageSubmitted
	StagePending
	StageMined
	StageConfirmed
	StageFailed
)

var stageNames = [...]string{
	StageBuilt:     "built",
	StageEncoded:   "encoded",
	StageSubmitted: "submitted",
	StagePending:   "pending",
	StageMined:     "mined",
	StageConfirmed: "confirmed",
	StageFailed:    "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageHook is called on every lifecycle transition. The hash is zero
// before the transaction is submitted.
type StageHook func(hash ethgo.Hash, stage Stage)

// ErrPollingStopped is returned by WaitForReceipt when the polling schedule
// gives up.
var ErrPollingStopped = errors.New("receipt polling stopped")

// MiningFailureError is returned when a transaction was mined but reverted.
type MiningFailureError struct {
	Hash    ethgo.Hash
	Receipt *Receipt
}

func (e *MiningFailureError) Error() string {
	return fmt.Sprintf("transaction %s mined in block %d but failed", e.Hash, e.Receipt.Block())
}

// DeploymentFailureError is returned when a contract creation was mined
// without producing a contract address.
type DeploymentFailureError struct {
	Hash    ethgo.Hash
	Receipt *Receipt
}

func (e *DeploymentFailureError) Error() string {
	return fmt.Sprintf("contract creation %s mined in block %d without a contract address", e.Hash, e.Receipt.Block())
}

func (c *Client) enter(hash ethgo.Hash, stage Stage) {
	c.logger.WithFields(logrus.Fields{"hash": hash.String(), "stage": stage.String()}).Debug("Transaction stage")
	if c.stageHook != nil {
		c.stageHook(hash, stage)
	}
}

// SendTransaction assembles, signs and submits req. It returns once the
// node has accepted the transaction.
func (c *Client) SendTransaction(ctx context.Context, req TxRequest) (ethgo.Hash, error) {
	tx, err := c.Assemble(ctx, req)
	if err != nil {
		return ethgo.Hash{}, err
	}
	c.enter(ethgo.Hash{}, StageBuilt)

	raw, err := c.SignTransaction(ctx, tx)
	if err != nil {
		return ethgo.Hash{}, err
	}
	c.enter(ethgo.Hash{}, StageEncoded)

	return c.SendRawTransaction(ctx, raw)
}

// SendRawTransaction submits signed bytes.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (ethgo.Hash, error) {
	h, err := ethSendRawTransaction.Invoke(ctx, c.rpc, raw)
	if err != nil {
		return ethgo.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	hash := ethgo.HexToHash(h)
	if local := transaction.Hash(raw); local != hash {
		c.logger.WithFields(logrus.Fields{"hash": hash.String(), "computed": local.String()}).Warn("Node returned an unexpected transaction hash")
	}
	c.enter(hash, StageSubmitted)
	return hash, nil
}

// TransactionReceipt fetches the receipt of hash. It returns nil when the
// node does not know the transaction yet.
func (c *Client) TransactionReceipt(ctx context.Context, hash ethgo.Hash) (*Receipt, error) {
	return ethGetTransactionReceipt.Invoke(ctx, c.rpc, hash)
}

// WaitForReceipt polls until the receipt of hash has a block number and a
// block hash. There is no retry limit and no timeout: the wait only ends
// early when ctx is done or the polling schedule returns backoff.Stop.
func (c *Client) WaitForReceipt(ctx context.Context, hash ethgo.Hash) (*Receipt, error) {
	b := c.pollBackOff()
	b.Reset()

	pending := false
	for {
		r, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}
		if r.Mined() {
			c.enter(hash, StageMined)
			return r, nil
		}
		if !pending {
			pending = true
			c.enter(hash, StagePending)
		}

		d := b.NextBackOff()
		if d == backoff.Stop {
			return nil, ErrPollingStopped
		}
		if err := sleep(ctx, d); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Transact sends req and waits for it to be mined. A reverted transaction
// yields a MiningFailureError; a contract creation without an address yields
// a DeploymentFailureError.
func (c *Client) Transact(ctx context.Context, req TxRequest) (*Receipt, error) {
	hash, err := c.SendTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	r, err := c.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	return c.settle(hash, req.To == nil, r)
}

// Deploy sends a contract creation carrying bytecode in req.Data. Any To in
// req is ignored.
func (c *Client) Deploy(ctx context.Context, req TxRequest) (*Receipt, error) {
	req.To = nil
	return c.Transact(ctx, req)
}

func (c *Client) settle(hash ethgo.Hash, creation bool, r *Receipt) (*Receipt, error) {
	log := c.logger.WithFields(logrus.Fields{"hash": hash.String(), "block": r.Block()})
	if !r.Succeeded() {
		c.enter(hash, StageFailed)
		log.Warn("Transaction failed")
		return nil, &MiningFailureError{Hash: hash, Receipt: r}
	}
	if creation && r.ContractAddress == nil {
		c.enter(hash, StageFailed)
		log.Warn("Contract creation produced no address")
		return nil, &DeploymentFailureError{Hash: hash, Receipt: r}
	}
	c.enter(hash, StageConfirmed)
	return r, nil
}
