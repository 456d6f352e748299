package config

import (
	"errors"
	"net/url"
	"time"

	flags "github.com/jessevdk/go-flags"
)

type StreamClient struct {
	WsURL      string        `long:"ws-url" env:"FLASHBLOCKS_WS_URL" description:"Websocket URL of the flashblocks feed"`                            // nolint:lll
	BackoffMin time.Duration `long:"backoff-min" env:"FLASHBLOCKS_BACKOFF_MIN" description:"Initial reconnect backoff delay" default:"250ms"`        // nolint:lll
	BackoffMax time.Duration `long:"backoff-max" env:"FLASHBLOCKS_BACKOFF_MAX" description:"Maximum reconnect backoff delay" default:"8s"`           // nolint:lll
	MaxBlocks  int64         `long:"max-blocks" env:"FLASHBLOCKS_MAX_BLOCKS" description:"Stop after this many completed blocks, 0 runs forever" default:"0"` // nolint:lll
}

func (s StreamClient) HasError() error {
	if s.WsURL == "" {
		return errors.New("websocket URL is required")
	}
	u, err := url.Parse(s.WsURL)
	if err != nil {
		return errors.New("websocket URL is not a valid URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("websocket URL must use the ws or wss scheme")
	}
	if s.BackoffMin <= 0 || s.BackoffMax < s.BackoffMin {
		return errors.New("backoff delays must satisfy 0 < min <= max")
	}
	return nil
}

type RPCClient struct {
	URL string `long:"rpc-url" env:"FLASHBLOCKS_RPC_URL" description:"HTTP RPC URL for one-shot lookups"`
}

func (r RPCClient) HasError() error {
	if r.URL == "" {
		return errors.New("RPC URL is required for lookups")
	}
	return nil
}

type Config struct {
	Stream           StreamClient
	RPC              RPCClient
	MinBlockDuration time.Duration `long:"min-block-duration" env:"FLASHBLOCKS_MIN_BLOCK_DURATION" description:"Duration floor for tx/sec computation" default:"1ms"` // nolint:lll
	HistorySize      int           `long:"history-size" env:"FLASHBLOCKS_HISTORY_SIZE" description:"Number of recent block stats kept in memory" default:"32"`        // nolint:lll
	ReportInterval   time.Duration `long:"report-interval" env:"FLASHBLOCKS_REPORT_INTERVAL" description:"Interval between progress reports" default:"30s"`           // nolint:lll
	MetricsAddr      string        `long:"metrics-addr" env:"FLASHBLOCKS_METRICS_ADDR" description:"Address to serve Prometheus metrics on, empty disables"`          // nolint:lll

	// One-shot lookup modes: when set, the process performs the lookup and
	// exits instead of streaming.
	QueryPending bool   `long:"query-pending" description:"Print the pending flashblock and exit"`
	GetBalance   string `long:"get-balance" description:"Print the pending balance of an address and exit"`
	GetReceipt   string `long:"get-receipt" description:"Print a transaction receipt and exit"`
}

// OneShot reports whether the process should run a single RPC lookup
// rather than the stream.
func (c Config) OneShot() bool {
	return c.QueryPending || c.GetBalance != "" || c.GetReceipt != ""
}

func (c Config) HasError() error {
	if c.OneShot() {
		return c.RPC.HasError()
	}
	if err := c.Stream.HasError(); err != nil {
		return err
	}
	if c.MinBlockDuration < 0 {
		return errors.New("min block duration cannot be negative")
	}
	if c.HistorySize <= 0 {
		return errors.New("history size must be > 0")
	}
	return nil
}

func Parse() (*Config, error) {
	var config Config
	parser := flags.NewParser(&config, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	if err := config.HasError(); err != nil {
		return nil, err
	}
	return &config, nil
}
