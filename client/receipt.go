package client

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/umbracle/ethgo"
)

// Status is the execution outcome of a mined transaction. Nodes encode it as
// a quantity ("0x1"); some test nodes send a boolean.
type Status bool

func (s Status) MarshalJSON() ([]byte, error) {
	if s {
		return []byte(`"0x1"`), nil
	}
	return []byte(`"0x0"`), nil
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case bool:
		*s = Status(v)
	case float64:
		*s = v == 1
	case string:
		n, err := hexutil.DecodeUint64(v)
		if err != nil {
			return fmt.Errorf("invalid receipt status %q: %w", v, err)
		}
		*s = n == 1
	default:
		return fmt.Errorf("invalid receipt status %s", b)
	}
	return nil
}

// Receipt is the eth_getTransactionReceipt result. Block fields are nil
// until the transaction is included in a block.
type Receipt struct {
	TransactionHash   string          `json:"transactionHash"`
	TransactionIndex  *hexutil.Uint64 `json:"transactionIndex"`
	BlockHash         *string         `json:"blockHash"`
	BlockNumber       *hexutil.Uint64 `json:"blockNumber"`
	From              string          `json:"from"`
	To                *string         `json:"to"`
	ContractAddress   *string         `json:"contractAddress"`
	GasUsed           *hexutil.Uint64 `json:"gasUsed"`
	CumulativeGasUsed *hexutil.Uint64 `json:"cumulativeGasUsed"`
	Status            *Status         `json:"status"`
}

// Mined reports whether the receipt carries both a block number and a block
// hash. Some nodes return a receipt before the transaction is included, so
// one of the two is not enough.
func (r *Receipt) Mined() bool {
	return r != nil && r.BlockNumber != nil && r.BlockHash != nil
}

// Succeeded reports the execution status. Receipts without a status field
// predate status codes and count as successful.
func (r *Receipt) Succeeded() bool {
	return r.Status == nil || bool(*r.Status)
}

// Block returns the block number, or zero when not mined.
func (r *Receipt) Block() uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return uint64(*r.BlockNumber)
}

// Hash returns the transaction hash.
func (r *Receipt) Hash() ethgo.Hash {
	return ethgo.HexToHash(r.TransactionHash)
}

// Contract returns the deployed contract address, if any.
func (r *Receipt) Contract() *ethgo.Address {
	if r.ContractAddress == nil {
		return nil
	}
	addr := ethgo.HexToAddress(*r.ContractAddress)
	return &addr
}
