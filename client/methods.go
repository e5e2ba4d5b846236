package client

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/umbracle/ethgo"

	"github.com/distribworks/xk6-ethtx/jsonrpc"
	"github.com/distribworks/xk6-ethtx/transaction"
)

// txArgs is the JSON transaction object accepted by eth_estimateGas,
// eth_call and eth_signTransaction.
type txArgs struct {
	From     string          `json:"from"`
	To       *string         `json:"to,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID  *hexutil.Uint64 `json:"chainId,omitempty"`
}

func estimateArgs(tx *transaction.Unsigned) *txArgs {
	args := &txArgs{
		From: tx.From.String(),
		Data: tx.Data,
	}
	if tx.To != nil {
		to := tx.To.String()
		args.To = &to
	}
	if tx.Value != nil {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	if tx.GasLimit != 0 {
		gas := hexutil.Uint64(tx.GasLimit)
		args.Gas = &gas
	}
	if tx.GasPrice != nil {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice)
	}
	return args
}

func signArgs(tx *transaction.Unsigned) *txArgs {
	args := estimateArgs(tx)
	nonce := hexutil.Uint64(tx.Nonce)
	chainID := hexutil.Uint64(tx.ChainID)
	args.Nonce = &nonce
	args.ChainID = &chainID
	return args
}

// signTxResult is the eth_signTransaction result: the broadcast-ready bytes
// and the node's decoded view of the signed transaction.
type signTxResult struct {
	Raw hexutil.Bytes   `json:"raw"`
	Tx  json.RawMessage `json:"tx"`
}

type balanceQuery struct {
	addr  ethgo.Address
	block string
}

type messageQuery struct {
	addr ethgo.Address
	msg  []byte
}

func single[T any](v T) []interface{} {
	return []interface{}{v}
}

var (
	ethAccounts    = jsonrpc.NewMethod[jsonrpc.NoParams, []string]("eth_accounts", jsonrpc.Empty)
	ethBlockNumber = jsonrpc.NewMethod[jsonrpc.NoParams, hexutil.Uint64]("eth_blockNumber", jsonrpc.Empty)
	ethChainID     = jsonrpc.NewMethod[jsonrpc.NoParams, hexutil.Uint64]("eth_chainId", jsonrpc.Empty)
	ethGasPrice    = jsonrpc.NewMethod[jsonrpc.NoParams, hexutil.Big]("eth_gasPrice", jsonrpc.Empty)

	ethEstimateGas = jsonrpc.NewMethod[*txArgs, hexutil.Uint64]("eth_estimateGas", single[*txArgs])
	ethCall        = jsonrpc.NewMethod[*txArgs, hexutil.Bytes]("eth_call", func(args *txArgs) []interface{} {
		return []interface{}{args, "latest"}
	})
	ethSignTransaction = jsonrpc.NewMethod[*txArgs, signTxResult]("eth_signTransaction", single[*txArgs])

	ethGetBalance = jsonrpc.NewMethod[balanceQuery, hexutil.Big]("eth_getBalance", func(q balanceQuery) []interface{} {
		return []interface{}{q.addr.String(), q.block}
	})
	ethGetTransactionCount = jsonrpc.NewMethod[ethgo.Address, hexutil.Uint64]("eth_getTransactionCount", func(addr ethgo.Address) []interface{} {
		return []interface{}{addr.String(), "pending"}
	})
	ethSendRawTransaction = jsonrpc.NewMethod[[]byte, string]("eth_sendRawTransaction", func(raw []byte) []interface{} {
		return []interface{}{hexutil.Bytes(raw)}
	})
	ethGetTransactionReceipt = jsonrpc.NewMethod[ethgo.Hash, *Receipt]("eth_getTransactionReceipt", func(h ethgo.Hash) []interface{} {
		return []interface{}{h.String()}
	})
	ethSign = jsonrpc.NewMethod[messageQuery, hexutil.Bytes]("eth_sign", func(q messageQuery) []interface{} {
		return []interface{}{q.addr.String(), hexutil.Bytes(q.msg)}
	})
)
