package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/basewatch/flashblocks-ingester/lib/hexutils"
)

// Client performs one-shot lookups against the sequencer RPC. These calls
// are request/response and share no state with the streaming core.
type Client interface {
	// PendingBlock returns the block currently being built, queried with
	// the "pending" tag the flashblocks-aware RPC serves preconfirmations
	// under.
	PendingBlock(ctx context.Context) (PendingBlock, error)

	// Balance returns the pending balance of an address in wei, as a
	// decimal string.
	Balance(ctx context.Context, address string) (string, error)

	// Receipt looks up a transaction receipt. Returns ErrReceiptNotFound
	// when the transaction is unknown or not yet included.
	Receipt(ctx context.Context, txHash string) (Receipt, error)

	// Snapshot fetches the confirmed head and the pending block
	// concurrently.
	Snapshot(ctx context.Context) (Snapshot, error)

	Close() error
}

var ErrReceiptNotFound = errors.New("receipt not found")

const (
	MaxRetries            = 10
	DefaultRequestTimeout = 30 * time.Second

	snapshotConcurrency = 2
)

type rpcClient struct {
	client  HTTPClient
	cfg     Config
	log     *slog.Logger
	bufPool *sync.Pool
	wrkPool *ants.Pool
}

func NewClient(log *slog.Logger, cfg Config) (*rpcClient, error) { // revive:disable-line:unexported-return
	log = log.With("module", "jsonrpc")
	client := NewHTTPClient(log)
	if cfg.RequestTimeout != 0 {
		client.HTTPClient.Timeout = cfg.RequestTimeout
	}
	return newClient(log, client, cfg)
}

// NewClientWithHTTP injects the HTTP transport, used by tests.
func NewClientWithHTTP(log *slog.Logger, httpClient HTTPClient, cfg Config) (*rpcClient, error) { // revive:disable-line:unexported-return,lll
	return newClient(log.With("module", "jsonrpc"), httpClient, cfg)
}

func newClient(log *slog.Logger, httpClient HTTPClient, cfg Config) (*rpcClient, error) {
	if cfg.URL == "" {
		return nil, errors.Errorf("RPC URL is required")
	}
	wrkPool, err := ants.NewPool(snapshotConcurrency)
	if err != nil {
		return nil, errors.Errorf("failed to create worker pool: %w", err)
	}
	return &rpcClient{
		client:  httpClient,
		cfg:     cfg,
		log:     log,
		bufPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
		wrkPool: wrkPool,
	}, nil
}

func (c *rpcClient) PendingBlock(ctx context.Context) (PendingBlock, error) {
	buf := c.bufPool.Get().(*bytes.Buffer)
	defer c.putBuffer(buf)

	err := c.getResponseBody(ctx, "eth_getBlockByNumber", []any{"pending", true}, buf)
	if err != nil {
		return PendingBlock{}, err
	}
	return decodePendingBlock(buf)
}

func decodePendingBlock(buf *bytes.Buffer) (PendingBlock, error) {
	resp := struct {
		Result *struct {
			Number       string            `json:"number"`
			Hash         string            `json:"hash"`
			GasUsed      string            `json:"gasUsed"`
			Transactions []json.RawMessage `json:"transactions"`
		} `json:"result"`
	}{}
	if err := json.NewDecoder(buf).Decode(&resp); err != nil {
		return PendingBlock{}, errors.Errorf("failed to decode pending block: %w", err)
	}
	if resp.Result == nil {
		return PendingBlock{}, errors.Errorf("RPC returned no pending block")
	}
	number, err := hexutils.IntFromHex(resp.Result.Number)
	if err != nil {
		return PendingBlock{}, err
	}
	return PendingBlock{
		Number:  number,
		Hash:    resp.Result.Hash,
		GasUsed: resp.Result.GasUsed,
		TxCount: len(resp.Result.Transactions),
	}, nil
}

func (c *rpcClient) Balance(ctx context.Context, address string) (string, error) {
	buf := c.bufPool.Get().(*bytes.Buffer)
	defer c.putBuffer(buf)

	err := c.getResponseBody(ctx, "eth_getBalance", []any{address, "pending"}, buf)
	if err != nil {
		return "", err
	}
	resp := struct {
		Result string `json:"result"`
	}{}
	if err := json.NewDecoder(buf).Decode(&resp); err != nil {
		return "", errors.Errorf("failed to decode balance: %w", err)
	}
	return hexutils.BigIntFromHex(resp.Result)
}

func (c *rpcClient) Receipt(ctx context.Context, txHash string) (Receipt, error) {
	buf := c.bufPool.Get().(*bytes.Buffer)
	defer c.putBuffer(buf)

	err := c.getResponseBody(ctx, "eth_getTransactionReceipt", []any{txHash}, buf)
	if err != nil {
		return Receipt{}, err
	}
	resp := struct {
		Result *struct {
			BlockNumber string `json:"blockNumber"`
			Status      string `json:"status"`
			GasUsed     string `json:"gasUsed"`
		} `json:"result"`
	}{}
	if err := json.NewDecoder(buf).Decode(&resp); err != nil {
		return Receipt{}, errors.Errorf("failed to decode receipt: %w", err)
	}
	if resp.Result == nil {
		return Receipt{}, errors.Errorf("%w: %s", ErrReceiptNotFound, txHash)
	}
	blockNumber, err := hexutils.IntFromHex(resp.Result.BlockNumber)
	if err != nil {
		return Receipt{}, err
	}
	status, err := hexutils.IntFromHex(resp.Result.Status)
	if err != nil {
		return Receipt{}, err
	}
	gasUsed, err := hexutils.IntFromHex(resp.Result.GasUsed)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		TxHash:      txHash,
		BlockNumber: blockNumber,
		Status:      status,
		GasUsed:     gasUsed,
	}, nil
}

// Snapshot issues the head and pending-block lookups concurrently on the
// worker pool.
func (c *rpcClient) Snapshot(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		errCh := make(chan error, 1)
		if err := c.wrkPool.Submit(func() {
			defer close(errCh)
			buf := c.bufPool.Get().(*bytes.Buffer)
			defer c.putBuffer(buf)
			if err := c.getResponseBody(ctx, "eth_blockNumber", []any{}, buf); err != nil {
				errCh <- err
				return
			}
			resp := struct {
				Result string `json:"result"`
			}{}
			if err := json.NewDecoder(buf).Decode(&resp); err != nil {
				errCh <- err
				return
			}
			n, err := hexutils.IntFromHex(resp.Result)
			if err != nil {
				errCh <- err
				return
			}
			snapshot.LatestBlockNumber = n
		}); err != nil {
			return err
		}
		return <-errCh
	})
	group.Go(func() error {
		errCh := make(chan error, 1)
		if err := c.wrkPool.Submit(func() {
			defer close(errCh)
			pending, err := c.PendingBlock(ctx)
			if err != nil {
				errCh <- err
				return
			}
			snapshot.Pending = pending
		}); err != nil {
			return err
		}
		return <-errCh
	})

	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// getResponseBody sends a request to the node and leaves the response body
// in output.
func (c *rpcClient) getResponseBody(
	ctx context.Context, method string, params []any, output *bytes.Buffer,
) error {
	t0 := time.Now()
	reqData := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	encoder := json.NewEncoder(output)
	if err := encoder.Encode(reqData); err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, output)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.HTTPHeaders {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		observeRPCRequestErr(err, method, t0)
		return errors.Errorf("failed to send request for method %s: %w", method, err)
	}
	defer resp.Body.Close()
	observeRPCRequestCode(resp.StatusCode, method, t0)
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("response for method %s has status code %d", method, resp.StatusCode)
	}

	output.Reset()
	if _, err := output.ReadFrom(resp.Body); err != nil {
		return errors.Errorf("failed to read response body for method %s: %w", method, err)
	}
	return nil
}

func (c *rpcClient) putBuffer(buf *bytes.Buffer) {
	buf.Reset()
	c.bufPool.Put(buf)
}

func (c *rpcClient) Close() error {
	c.wrkPool.Release()
	return nil
}
