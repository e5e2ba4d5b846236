// xk6 build --with github.com/distribworks/xk6-ethtx=.
package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/grafana/sobek"
	"github.com/sirupsen/logrus"
	"github.com/umbracle/ethgo/wallet"
	"go.k6.io/k6/js/common"
	"go.k6.io/k6/js/modules"
	"go.k6.io/k6/metrics"

	"github.com/distribworks/xk6-ethtx/client"
	"github.com/distribworks/xk6-ethtx/jsonrpc"
)

const (
	defaultURL        = "http://localhost:8545"
	defaultPrivateKey = "42b6e34dc21598a807dc19d7784c71b2a7a01f6480dc6f58258f78e539f1a1fa"
)

type ethMetrics struct {
	RequestDuration *metrics.Metric
	TimeToMine      *metrics.Metric
	Block           *metrics.Metric
	GasUsed         *metrics.Metric
	TPS             *metrics.Metric
	BlockTime       *metrics.Metric
}

func init() {
	modules.Register("k6/x/ethereum", &EthRoot{})
}

// EthRoot is the root module
type EthRoot struct{}

// NewModuleInstance implements the modules.Module interface returning a new instance for each VU.
func (*EthRoot) NewModuleInstance(vu modules.VU) modules.Instance {
	return &ModuleInstance{
		vu: vu,
		m:  registerMetrics(vu),
	}
}

type ModuleInstance struct {
	vu modules.VU
	m  ethMetrics
}

// Exports implements the modules.Instance interface and returns the exported types for the JS module.
func (mi *ModuleInstance) Exports() modules.Exports {
	return modules.Exports{Named: map[string]interface{}{
		"Client": mi.NewClient,
	}}
}

func (mi *ModuleInstance) NewClient(call sobek.ConstructorCall) *sobek.Object {
	rt := mi.vu.Runtime()

	var optionsArg map[string]interface{}
	if len(call.Arguments) > 0 {
		if err := rt.ExportTo(call.Arguments[0], &optionsArg); err != nil {
			common.Throw(rt, errors.New("unable to parse options object"))
		}
	}

	opts, err := newOptionsFrom(optionsArg)
	if err != nil {
		common.Throw(rt, fmt.Errorf("invalid options; reason: %w", err))
	}

	c, err := newClient(mi.vu.Context(), opts, mi.vu, mi.m, mi.logger())
	if err != nil {
		common.Throw(rt, fmt.Errorf("invalid options; reason: %w", err))
	}

	go c.pollForBlocks()

	return rt.ToValue(c).ToObject(rt)
}

func (mi *ModuleInstance) logger() logrus.FieldLogger {
	if env := mi.vu.InitEnv(); env != nil {
		return env.Logger
	}
	return mi.vu.State().Logger
}

// newClient wires the lifecycle clients for opts. vu may be nil, in which
// case no metrics are emitted.
func newClient(ctx context.Context, opts *options, vu modules.VU, m ethMetrics, logger logrus.FieldLogger) (*Client, error) {
	key, err := opts.key()
	if err != nil {
		return nil, err
	}

	c := &Client{
		vu:      vu,
		metrics: m,
		logger:  logger,
		key:     key,
		opts:    opts,
	}

	channel := jsonrpc.NewChannel(
		jsonrpc.NewHTTPTransport(opts.URL, jsonrpc.WithRateLimit(opts.RPS)),
		jsonrpc.WithLogger(logger),
		jsonrpc.WithObserver(func(method string, took time.Duration, _ error) {
			c.reportMetricsFromStats(method, took)
		}),
	)

	shared := []client.Option{
		client.WithLogger(logger),
		client.WithPollInterval(opts.pollInterval),
	}
	if opts.ChainID != 0 {
		shared = append(shared, client.WithChainID(opts.ChainID))
	}

	c.remote = client.New(channel, shared...)
	cid, err := c.remote.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = cid

	c.local = client.New(channel, append(shared,
		client.WithChainID(cid),
		client.WithSigner(client.LocalSigner(client.KeySignFunc(key))),
		client.WithAddressProvider(client.StaticAddress(key.Address())),
	)...)

	c.signing = c.local
	if opts.RemoteSigner {
		c.signing = c.remote
	}
	return c, nil
}

func registerMetrics(vu modules.VU) ethMetrics {
	registry := vu.InitEnv().Registry
	m := ethMetrics{
		RequestDuration: registry.MustNewMetric("ethereum_req_duration", metrics.Trend, metrics.Time),
		TimeToMine:      registry.MustNewMetric("ethereum_time_to_mine", metrics.Trend, metrics.Time),
		Block:           registry.MustNewMetric("ethereum_block", metrics.Counter, metrics.Default),
		GasUsed:         registry.MustNewMetric("ethereum_gas_used", metrics.Trend, metrics.Default),
		TPS:             registry.MustNewMetric("ethereum_tps", metrics.Trend, metrics.Default),
		BlockTime:       registry.MustNewMetric("ethereum_block_time", metrics.Trend, metrics.Time),
	}

	return m
}

// push sends samples tagged with the VU's current tags plus extra. It is a
// no-op outside of a running VU.
func (c *Client) push(samples ...taggedSample) {
	if c.vu == nil {
		return
	}
	state := c.vu.State()
	if state == nil {
		return
	}

	now := time.Now()
	base := state.Tags.GetCurrentValues().Tags
	out := metrics.ConnectedSamples{Time: now, Tags: base}
	for _, s := range samples {
		tags := base
		for k, v := range s.tags {
			tags = tags.With(k, v)
		}
		out.Samples = append(out.Samples, metrics.Sample{
			TimeSeries: metrics.TimeSeries{Metric: s.metric, Tags: tags},
			Value:      s.value,
			Time:       now,
		})
	}
	metrics.PushIfNotDone(c.vu.Context(), state.Samples, out)
}

type taggedSample struct {
	metric *metrics.Metric
	tags   map[string]string
	value  float64
}

func (c *Client) reportMetricsFromStats(call string, t time.Duration) {
	c.push(taggedSample{
		metric: c.metrics.RequestDuration,
		tags:   map[string]string{"call": call},
		value:  float64(t) / float64(time.Millisecond),
	})
}

// options defines configuration options for the client.
type options struct {
	URL          string  `json:"url,omitempty"`
	Mnemonic     string  `json:"mnemonic,omitempty"`
	PrivateKey   string  `json:"privateKey,omitempty"`
	ChainID      uint64  `json:"chainId,omitempty"`
	RemoteSigner bool    `json:"remoteSigner,omitempty"`
	PollInterval string  `json:"pollInterval,omitempty"`
	RPS          float64 `json:"rps,omitempty"`

	pollInterval time.Duration
}

// newOptionsFrom validates and instantiates an options struct from its map representation
// as obtained by calling a Sobek's Runtime.ExportTo.
func newOptionsFrom(argument map[string]interface{}) (*options, error) {
	jsonStr, err := json.Marshal(argument)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize options to JSON %w", err)
	}

	// Unknown options are rejected.
	decoder := json.NewDecoder(bytes.NewReader(jsonStr))
	decoder.DisallowUnknownFields()

	var opts options
	if argument != nil {
		if err := decoder.Decode(&opts); err != nil {
			return nil, fmt.Errorf("unable to decode options %w", err)
		}
	}

	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.Mnemonic == "" && opts.PrivateKey == "" {
		opts.PrivateKey = defaultPrivateKey
	}

	opts.pollInterval = client.DefaultPollInterval
	if opts.PollInterval != "" {
		d, err := time.ParseDuration(opts.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid pollInterval: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid pollInterval: must be positive, got %s", d)
		}
		opts.pollInterval = d
	}
	if opts.RPS < 0 {
		return nil, fmt.Errorf("invalid rps: %v", opts.RPS)
	}

	return &opts, nil
}

// key loads the signing key, preferring the mnemonic.
func (o *options) key() (*wallet.Key, error) {
	if o.Mnemonic != "" {
		return wallet.NewWalletFromMnemonic(o.Mnemonic)
	}
	return parsePrivateKey(o.PrivateKey)
}

func parsePrivateKey(s string) (*wallet.Key, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	pk, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return wallet.NewWalletFromPrivKey(pk)
}
