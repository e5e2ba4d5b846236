package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/wallet"
	"github.com/urfave/cli/v2"

	"github.com/distribworks/xk6-ethtx/client"
	"github.com/distribworks/xk6-ethtx/jsonrpc"
	"github.com/distribworks/xk6-ethtx/transaction"
)

const envPrefix = "ETHTX_"

var (
	rpcURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "JSON-RPC endpoint of the node",
		Value:   "http://localhost:8545",
		EnvVars: []string{envPrefix + "RPC_URL"},
	}
	privateKeyFlag = &cli.StringFlag{
		Name:    "private-key",
		Usage:   "hex private key used to sign locally; the node signs when unset",
		EnvVars: []string{envPrefix + "PRIVATE_KEY"},
	}
	mnemonicFlag = &cli.StringFlag{
		Name:    "mnemonic",
		Usage:   "mnemonic used to sign locally; takes precedence over --private-key",
		EnvVars: []string{envPrefix + "MNEMONIC"},
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "chain id to sign for; queried from the node when zero",
		EnvVars: []string{envPrefix + "CHAIN_ID"},
	}
	pollIntervalFlag = &cli.DurationFlag{
		Name:    "poll-interval",
		Usage:   "delay between receipt polls",
		Value:   client.DefaultPollInterval,
		EnvVars: []string{envPrefix + "POLL_INTERVAL"},
	}
	timeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "give up waiting after this long; zero waits forever",
		EnvVars: []string{envPrefix + "TIMEOUT"},
	}
	rpsFlag = &cli.Float64Flag{
		Name:    "rps",
		Usage:   "maximum requests per second sent to the node",
		EnvVars: []string{envPrefix + "RPS"},
	}
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "log every lifecycle step",
		EnvVars: []string{envPrefix + "VERBOSE"},
	}

	txFlags = []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "sender address; defaults to the key or the node's first account"},
		&cli.StringFlag{Name: "value", Usage: "value in wei", Value: "0"},
		&cli.StringFlag{Name: "data", Usage: "hex call data"},
		&cli.Uint64Flag{Name: "gas", Usage: "gas limit; estimated when zero"},
		&cli.StringFlag{Name: "gas-price", Usage: "gas price in wei; queried when unset"},
		&cli.Int64Flag{Name: "nonce", Usage: "nonce; the pending nonce when negative", Value: -1},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w, ew io.Writer, args []string) error {
	app := &cli.App{
		Name:      "ethtx",
		Usage:     "send, deploy and confirm Ethereum transactions over JSON-RPC",
		Writer:    w,
		ErrWriter: ew,
		Flags: []cli.Flag{
			rpcURLFlag, privateKeyFlag, mnemonicFlag, chainIDFlag,
			pollIntervalFlag, timeoutFlag, rpsFlag, verboseFlag,
		},
		Commands: []*cli.Command{
			{
				Name:   "chain-id",
				Usage:  "print the chain id of the node",
				Action: chainIDAction,
			},
			{
				Name:      "send",
				Usage:     "send a transaction and wait until it is confirmed",
				ArgsUsage: "<to>",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{Name: "no-wait", Usage: "print the hash without waiting"},
				}, txFlags...),
				Action: sendAction,
			},
			{
				Name:      "deploy",
				Usage:     "deploy contract bytecode and print its address",
				ArgsUsage: "<bytecode>",
				Flags:     txFlags,
				Action:    deployAction,
			},
			{
				Name:      "wait",
				Usage:     "wait until a transaction is mined",
				ArgsUsage: "<hash>",
				Action:    waitAction,
			},
			{
				Name:      "decode",
				Usage:     "decode a signed legacy transaction",
				ArgsUsage: "<raw>",
				Action:    decodeAction,
			},
			{
				Name:      "sign-message",
				Usage:     "sign a personal message",
				ArgsUsage: "<message>",
				Action:    signMessageAction,
			},
		},
	}
	return app.RunContext(ctx, args)
}

func newLogger(c *cli.Context) logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(c.App.ErrWriter)
	if c.Bool(verboseFlag.Name) {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}

func loadKey(c *cli.Context) (*wallet.Key, error) {
	if m := c.String(mnemonicFlag.Name); m != "" {
		return wallet.NewWalletFromMnemonic(m)
	}
	pk := c.String(privateKeyFlag.Name)
	if pk == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pk, "0x") {
		pk = "0x" + pk
	}
	raw, err := hexutil.Decode(pk)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return wallet.NewWalletFromPrivKey(raw)
}

func newClient(c *cli.Context) (*client.Client, error) {
	logger := newLogger(c)

	channel := jsonrpc.NewChannel(
		jsonrpc.NewHTTPTransport(c.String(rpcURLFlag.Name), jsonrpc.WithRateLimit(c.Float64(rpsFlag.Name))),
		jsonrpc.WithLogger(logger),
	)

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithPollInterval(c.Duration(pollIntervalFlag.Name)),
		client.WithStageHook(func(hash ethgo.Hash, stage client.Stage) {
			logger.WithField("stage", stage.String()).Infof("Transaction %s", hash)
		}),
	}
	if id := c.Uint64(chainIDFlag.Name); id != 0 {
		opts = append(opts, client.WithChainID(id))
	}

	key, err := loadKey(c)
	if err != nil {
		return nil, err
	}
	if key != nil {
		opts = append(opts,
			client.WithSigner(client.LocalSigner(client.KeySignFunc(key))),
			client.WithAddressProvider(client.StaticAddress(key.Address())),
		)
	}
	return client.New(channel, opts...), nil
}

func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	if d := c.Duration(timeoutFlag.Name); d > 0 {
		return context.WithTimeout(c.Context, d)
	}
	return context.WithCancel(c.Context)
}

func txRequest(c *cli.Context) (client.TxRequest, error) {
	var req client.TxRequest

	if s := c.String("from"); s != "" {
		from := ethgo.HexToAddress(s)
		req.From = &from
	}

	value, ok := new(big.Int).SetString(c.String("value"), 10)
	if !ok || value.Sign() < 0 {
		return req, fmt.Errorf("invalid value %q", c.String("value"))
	}
	req.Value = value

	if s := c.String("data"); s != "" {
		data, err := hexutil.Decode(s)
		if err != nil {
			return req, fmt.Errorf("invalid data: %w", err)
		}
		req.Data = data
	}
	if gas := c.Uint64("gas"); gas != 0 {
		req.GasLimit = &gas
	}
	if s := c.String("gas-price"); s != "" {
		price, ok := new(big.Int).SetString(s, 10)
		if !ok || price.Sign() < 0 {
			return req, fmt.Errorf("invalid gas price %q", s)
		}
		req.GasPrice = price
	}
	if n := c.Int64("nonce"); n >= 0 {
		nonce := uint64(n)
		req.Nonce = &nonce
	}
	return req, nil
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func chainIDAction(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	id, err := cl.ChainID(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, id)
	return err
}

func sendAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("send expects exactly one recipient address")
	}
	req, err := txRequest(c)
	if err != nil {
		return err
	}
	to := ethgo.HexToAddress(c.Args().First())
	req.To = &to

	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if c.Bool("no-wait") {
		hash, err := cl.SendTransaction(ctx, req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, hash)
		return err
	}

	r, err := cl.Transact(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(c, r)
}

func deployAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("deploy expects the contract bytecode")
	}
	req, err := txRequest(c)
	if err != nil {
		return err
	}
	code := c.Args().First()
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return fmt.Errorf("invalid bytecode: %w", err)
	}
	req.Data = append(bytecode, req.Data...)

	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	r, err := cl.Deploy(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(c, r)
}

func waitAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("wait expects a transaction hash")
	}
	hash := ethgo.HexToHash(c.Args().First())

	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	start := time.Now()
	r, err := cl.WaitForReceipt(ctx, hash)
	if err != nil {
		return err
	}
	newLogger(c).WithField("took", time.Since(start)).Debug("Transaction mined")
	return printJSON(c, r)
}

func signMessageAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("sign-message expects a message")
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sig, err := cl.SignMessage(ctx, []byte(c.Args().First()))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hexutil.Encode(sig))
	return err
}

type decodedTx struct {
	Hash     string         `json:"hash"`
	Nonce    hexutil.Uint64 `json:"nonce"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Gas      hexutil.Uint64 `json:"gas"`
	To       *string        `json:"to"`
	Value    *hexutil.Big   `json:"value"`
	Input    hexutil.Bytes  `json:"input"`
	ChainID  hexutil.Uint64 `json:"chainId"`
	V        *hexutil.Big   `json:"v"`
	R        *hexutil.Big   `json:"r"`
	S        *hexutil.Big   `json:"s"`
}

func decodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("decode expects the raw transaction")
	}
	raw, err := hexutil.Decode(c.Args().First())
	if err != nil {
		return fmt.Errorf("invalid raw transaction: %w", err)
	}
	tx, err := transaction.Decode(raw)
	if err != nil {
		return err
	}

	out := decodedTx{
		Hash:     transaction.Hash(raw).String(),
		Nonce:    hexutil.Uint64(tx.Nonce),
		GasPrice: (*hexutil.Big)(tx.GasPrice),
		Gas:      hexutil.Uint64(tx.GasLimit),
		Value:    (*hexutil.Big)(tx.Value),
		Input:    tx.Data,
		ChainID:  hexutil.Uint64(tx.ChainID),
		V:        (*hexutil.Big)(tx.V),
		R:        (*hexutil.Big)(tx.R),
		S:        (*hexutil.Big)(tx.S),
	}
	if tx.To != nil {
		to := tx.To.String()
		out.To = &to
	}
	return printJSON(c, out)
}
