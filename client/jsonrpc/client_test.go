package jsonrpc_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"

	"github.com/basewatch/flashblocks-ingester/client/jsonrpc"
	jsonrpc_mock "github.com/basewatch/flashblocks-ingester/mocks/jsonrpc"
)

func testLogger() *slog.Logger {
	// Swap these to see logs during test development
	// return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// respondByMethod decodes the JSON-RPC method from the request and serves
// the canned body registered for it.
func respondByMethod(t *testing.T, bodies map[string]string) *jsonrpc_mock.HTTPClientMock {
	return &jsonrpc_mock.HTTPClientMock{
		DoFunc: func(req *retryablehttp.Request) (*http.Response, error) {
			raw, err := req.BodyBytes()
			require.NoError(t, err)
			call := struct {
				Method string `json:"method"`
			}{}
			require.NoError(t, json.Unmarshal(raw, &call))
			body, ok := bodies[call.Method]
			require.True(t, ok, "unexpected RPC method %s", call.Method)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(body)),
			}, nil
		},
	}
}

func newTestClient(t *testing.T, httpClient jsonrpc.HTTPClient) jsonrpc.Client {
	client, err := jsonrpc.NewClientWithHTTP(testLogger(), httpClient, jsonrpc.Config{
		URL: "http://localhost:8545",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientRequiresURL(t *testing.T) {
	_, err := jsonrpc.NewClientWithHTTP(testLogger(), &jsonrpc_mock.HTTPClientMock{}, jsonrpc.Config{})
	require.ErrorContains(t, err, "RPC URL is required")
}

func TestPendingBlock(t *testing.T) {
	client := newTestClient(t, respondByMethod(t, map[string]string{
		"eth_getBlockByNumber": `{
			"jsonrpc": "2.0",
			"id": 1,
			"result": {
				"number": "0x1e44",
				"hash": "0xdeadbeef",
				"gasUsed": "0x5208",
				"transactions": [{}, {}, {}]
			}
		}`,
	}))

	block, err := client.PendingBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7748), block.Number)
	require.Equal(t, "0xdeadbeef", block.Hash)
	require.Equal(t, "0x5208", block.GasUsed)
	require.Equal(t, 3, block.TxCount)
}

func TestPendingBlockMissingResult(t *testing.T) {
	client := newTestClient(t, respondByMethod(t, map[string]string{
		"eth_getBlockByNumber": `{"jsonrpc": "2.0", "id": 1, "result": null}`,
	}))

	_, err := client.PendingBlock(context.Background())
	require.ErrorContains(t, err, "no pending block")
}

func TestBalanceDecodesBigWei(t *testing.T) {
	client := newTestClient(t, respondByMethod(t, map[string]string{
		// larger than an int64 can hold
		"eth_getBalance": `{"jsonrpc": "2.0", "id": 1, "result": "0xd3c21bcecceda1000000"}`,
	}))

	balance, err := client.Balance(context.Background(), "0x4200000000000000000000000000000000000011")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000000", balance)
}

func TestReceipt(t *testing.T) {
	client := newTestClient(t, respondByMethod(t, map[string]string{
		"eth_getTransactionReceipt": `{
			"jsonrpc": "2.0",
			"id": 1,
			"result": {"blockNumber": "0x1e44", "status": "0x1", "gasUsed": "0x5208"}
		}`,
	}))

	receipt, err := client.Receipt(context.Background(), "0xabc123")
	require.NoError(t, err)
	require.Equal(t, "0xabc123", receipt.TxHash)
	require.Equal(t, int64(7748), receipt.BlockNumber)
	require.Equal(t, int64(1), receipt.Status)
	require.Equal(t, int64(21000), receipt.GasUsed)
}

func TestReceiptNotFound(t *testing.T) {
	client := newTestClient(t, respondByMethod(t, map[string]string{
		"eth_getTransactionReceipt": `{"jsonrpc": "2.0", "id": 1, "result": null}`,
	}))

	_, err := client.Receipt(context.Background(), "0xmissing")
	require.ErrorIs(t, err, jsonrpc.ErrReceiptNotFound)
}

func TestSnapshot(t *testing.T) {
	httpClient := respondByMethod(t, map[string]string{
		"eth_blockNumber": `{"jsonrpc": "2.0", "id": 1, "result": "0x1e43"}`,
		"eth_getBlockByNumber": `{
			"jsonrpc": "2.0",
			"id": 1,
			"result": {"number": "0x1e44", "hash": "0xfeed", "gasUsed": "0x0", "transactions": []}
		}`,
	})
	client := newTestClient(t, httpClient)

	snapshot, err := client.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7747), snapshot.LatestBlockNumber)
	require.Equal(t, int64(7748), snapshot.Pending.Number)
	require.Equal(t, 2, httpClient.DoCalls())
}

func TestRequestErrorsSurfaceStatusCode(t *testing.T) {
	client := newTestClient(t, &jsonrpc_mock.HTTPClientMock{
		DoFunc: func(req *retryablehttp.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader("upstream down")),
			}, nil
		},
	})

	_, err := client.PendingBlock(context.Background())
	require.ErrorContains(t, err, "status code 502")
}
