package ethereum

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/umbracle/ethgo"

	"github.com/distribworks/xk6-ethtx/client"
	"github.com/distribworks/xk6-ethtx/jsonrpc"
)

// Transaction is the JS view of a transaction request. Zero values are
// resolved against the node.
type Transaction struct {
	From     string `js:"from"`
	To       string `js:"to"`
	Input    string `js:"input"`
	GasPrice uint64 `js:"gasPrice"`
	Gas      uint64 `js:"gas"`
	Value    int64  `js:"value"`
	Nonce    uint64 `js:"nonce"`
}

func (tx Transaction) request() (client.TxRequest, error) {
	var req client.TxRequest

	if tx.From != "" {
		from := ethgo.HexToAddress(tx.From)
		req.From = &from
	}
	if tx.To != "" {
		to := ethgo.HexToAddress(tx.To)
		req.To = &to
	}
	if tx.Value < 0 {
		return req, fmt.Errorf("negative value %d", tx.Value)
	}
	req.Value = big.NewInt(tx.Value)

	data, err := decodeHex(tx.Input)
	if err != nil {
		return req, fmt.Errorf("invalid input: %w", err)
	}
	req.Data = data

	if tx.Gas != 0 {
		gas := tx.Gas
		req.GasLimit = &gas
	}
	if tx.GasPrice != 0 {
		req.GasPrice = new(big.Int).SetUint64(tx.GasPrice)
	}
	if tx.Nonce != 0 {
		nonce := tx.Nonce
		req.Nonce = &nonce
	}
	return req, nil
}

// decodeHex accepts hex with or without the 0x prefix. An empty string is no
// data.
func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// Receipt is the JS view of a transaction receipt.
type Receipt struct {
	TransactionHash   string `js:"transactionHash"`
	TransactionIndex  uint64 `js:"transactionIndex"`
	ContractAddress   string `js:"contractAddress"`
	BlockHash         string `js:"blockHash"`
	BlockNumber       uint64 `js:"blockNumber"`
	From              string `js:"from"`
	To                string `js:"to"`
	GasUsed           uint64 `js:"gasUsed"`
	CumulativeGasUsed uint64 `js:"cumulativeGasUsed"`
	Status            bool   `js:"status"`
}

func newReceipt(r *client.Receipt) *Receipt {
	if r == nil {
		return nil
	}
	out := &Receipt{
		TransactionHash:   r.TransactionHash,
		TransactionIndex:  uint64Of(r.TransactionIndex),
		BlockNumber:       r.Block(),
		From:              r.From,
		GasUsed:           uint64Of(r.GasUsed),
		CumulativeGasUsed: uint64Of(r.CumulativeGasUsed),
		Status:            r.Succeeded(),
	}
	if r.BlockHash != nil {
		out.BlockHash = *r.BlockHash
	}
	if r.To != nil {
		out.To = *r.To
	}
	if addr := r.Contract(); addr != nil {
		out.ContractAddress = addr.String()
	}
	return out
}

func uint64Of(v *hexutil.Uint64) uint64 {
	if v == nil {
		return 0
	}
	return uint64(*v)
}

// Block is the subset of eth_getBlockByNumber used by scripts and block
// metrics. Transactions holds hashes whether or not full objects were
// requested.
type Block struct {
	Number       uint64   `js:"number"`
	Hash         string   `js:"hash"`
	ParentHash   string   `js:"parentHash"`
	Timestamp    uint64   `js:"timestamp"`
	GasUsed      uint64   `js:"gasUsed"`
	GasLimit     uint64   `js:"gasLimit"`
	Miner        string   `js:"miner"`
	Transactions []string `js:"transactions"`
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var raw struct {
		Number       hexutil.Uint64    `json:"number"`
		Hash         string            `json:"hash"`
		ParentHash   string            `json:"parentHash"`
		Timestamp    hexutil.Uint64    `json:"timestamp"`
		GasUsed      hexutil.Uint64    `json:"gasUsed"`
		GasLimit     hexutil.Uint64    `json:"gasLimit"`
		Miner        string            `json:"miner"`
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*b = Block{
		Number:       uint64(raw.Number),
		Hash:         raw.Hash,
		ParentHash:   raw.ParentHash,
		Timestamp:    uint64(raw.Timestamp),
		GasUsed:      uint64(raw.GasUsed),
		GasLimit:     uint64(raw.GasLimit),
		Miner:        raw.Miner,
		Transactions: make([]string, 0, len(raw.Transactions)),
	}
	for _, tx := range raw.Transactions {
		var hash string
		if err := json.Unmarshal(tx, &hash); err == nil {
			b.Transactions = append(b.Transactions, hash)
			continue
		}
		var full struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(tx, &full); err != nil {
			return fmt.Errorf("invalid block transaction: %w", err)
		}
		b.Transactions = append(b.Transactions, full.Hash)
	}
	return nil
}

type blockQuery struct {
	number string
	full   bool
}

var ethGetBlockByNumber = jsonrpc.NewMethod[blockQuery, *Block]("eth_getBlockByNumber", func(q blockQuery) []interface{} {
	return []interface{}{q.number, q.full}
})

// blockTag turns a JS block reference into its JSON-RPC form: a tag such as
// "latest" or a number.
func blockTag(v interface{}) (string, error) {
	switch n := v.(type) {
	case nil:
		return "latest", nil
	case string:
		switch n {
		case "latest", "earliest", "pending", "safe", "finalized":
			return n, nil
		}
		if strings.HasPrefix(n, "0x") {
			if _, err := hexutil.DecodeUint64(n); err != nil {
				return "", fmt.Errorf("invalid block %q: %w", n, err)
			}
			return n, nil
		}
		return "", fmt.Errorf("invalid block %q", n)
	case int64:
		if n < 0 {
			return "", fmt.Errorf("invalid block %d", n)
		}
		return hexutil.EncodeUint64(uint64(n)), nil
	case uint64:
		return hexutil.EncodeUint64(n), nil
	case int:
		if n < 0 {
			return "", fmt.Errorf("invalid block %d", n)
		}
		return hexutil.EncodeUint64(uint64(n)), nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return "", fmt.Errorf("invalid block %v", n)
		}
		return hexutil.EncodeUint64(uint64(n)), nil
	default:
		return "", fmt.Errorf("invalid block %v", v)
	}
}
