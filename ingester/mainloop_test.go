package ingester

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/require"

	"github.com/basewatch/flashblocks-ingester/client/wsstream"
	ingester_mock "github.com/basewatch/flashblocks-ingester/mocks/ingester"
	wsstream_mock "github.com/basewatch/flashblocks-ingester/mocks/wsstream"
)

func discardLogger() *slog.Logger {
	// Swap these to see logs during test development
	// return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wireMessage(t *testing.T, payloadID string, index uint64, final bool, txs ...string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"payload_id": payloadID,
		"index":      index,
		"diff":       map[string]any{"transactions": txs},
		"metadata":   map[string]any{"block_number": 7748},
		"final":      final,
	})
	require.NoError(t, err)
	return raw
}

// scriptedConn serves a fixed message sequence, then returns errAfter. A
// nil errAfter blocks the reader until the context is cancelled, like a
// healthy connection with nothing to say.
func scriptedConn(msgs [][]byte, errAfter error) *wsstream_mock.StreamConnectionMock {
	var mu sync.Mutex
	return &wsstream_mock.StreamConnectionMock{
		ReadMessageFunc: func(ctx context.Context) ([]byte, error) {
			mu.Lock()
			if len(msgs) > 0 {
				msg := msgs[0]
				msgs = msgs[1:]
				mu.Unlock()
				return msg, nil
			}
			mu.Unlock()
			if errAfter != nil {
				return nil, errAfter
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func singleConnDialer(conn wsstream.StreamConnection) *wsstream_mock.DialerMock {
	return &wsstream_mock.DialerMock{
		DialFunc: func(ctx context.Context) (wsstream.StreamConnection, error) {
			return conn, nil
		},
	}
}

func TestRunStopsAfterMaxBlocks(t *testing.T) {
	conn := scriptedConn([][]byte{
		wireMessage(t, "0xaaaa", 0, false, "0x01", "0x02"),
		wireMessage(t, "0xaaaa", 1, false, "0x03"),
		// new payload id closes 0xaaaa as superseded
		wireMessage(t, "0xbbbb", 0, false, "0x04"),
		wireMessage(t, "0xbbbb", 1, true, "0x05"),
	}, nil)
	sink := &ingester_mock.SinkMock{}

	ing := New(discardLogger(), singleConnDialer(conn), sink, Config{
		Endpoint:  "ws://localhost:8546",
		MaxBlocks: 2,
	}).(*ingester)

	err := ing.Run(context.Background())
	require.NoError(t, err)

	emitted := sink.Emitted()
	require.Len(t, emitted, 2)

	require.Equal(t, "0xaaaa", emitted[0].Block.PayloadID)
	require.True(t, emitted[0].Block.Superseded)
	require.Len(t, emitted[0].Block.Fragments, 2)
	require.Equal(t, 3, emitted[0].Block.Transactions)

	require.Equal(t, "0xbbbb", emitted[1].Block.PayloadID)
	require.False(t, emitted[1].Block.Superseded)
	require.Equal(t, 2, emitted[1].Stats.SubBlocks)

	info := ing.Info()
	require.Equal(t, "ws://localhost:8546", info.Endpoint)
	require.Equal(t, int64(2), info.BlocksCompleted)
	require.Equal(t, int64(4), info.FragmentsSeen)
	require.Equal(t, int64(5), info.TransactionsSeen)
	require.Equal(t, int64(7748), info.LatestBlockNumber)
	require.Equal(t, int64(0), info.Reconnects)

	// the report must be derivable straight off a snapshot
	report := ing.Info().ToProgressReport()
	require.Equal(t, int64(2), report.BlocksCompleted)
	require.Equal(t, int64(5), report.TransactionsSeen)
}

func TestRunReconnectsWithBackoffAndResetsAfterFragment(t *testing.T) {
	dialErr := errors.Errorf("connection refused")
	conns := []func(ctx context.Context) (wsstream.StreamConnection, error){
		func(ctx context.Context) (wsstream.StreamConnection, error) { return nil, dialErr },
		func(ctx context.Context) (wsstream.StreamConnection, error) { return nil, dialErr },
		func(ctx context.Context) (wsstream.StreamConnection, error) { return nil, dialErr },
		func(ctx context.Context) (wsstream.StreamConnection, error) {
			// delivers one fragment, then the transport dies
			return scriptedConn([][]byte{
				wireMessage(t, "0xaaaa", 0, false, "0x01"),
			}, io.ErrUnexpectedEOF), nil
		},
		func(ctx context.Context) (wsstream.StreamConnection, error) { return nil, dialErr },
		func(ctx context.Context) (wsstream.StreamConnection, error) {
			return scriptedConn([][]byte{
				wireMessage(t, "0xbbbb", 0, true, "0x02"),
			}, nil), nil
		},
	}
	dialer := &wsstream_mock.DialerMock{}
	dialer.DialFunc = func(ctx context.Context) (wsstream.StreamConnection, error) {
		return conns[dialer.DialCalls()-1](ctx)
	}
	sink := &ingester_mock.SinkMock{}

	ing := New(discardLogger(), dialer, sink, Config{
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 400 * time.Millisecond,
		MaxBlocks:  2,
	}).(*ingester)

	var mu sync.Mutex
	var delays []time.Duration
	var attempts []int64
	ing.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		attempts = append(attempts, ing.outageAttempts)
		mu.Unlock()
		return nil
	}

	err := ing.Run(context.Background())
	require.NoError(t, err)

	// doubling up to the cap, then back to the minimum after the fourth
	// connection delivered a fragment
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
	}, delays)

	// the per-outage attempt counter restarts with the delay schedule,
	// while the lifetime total keeps climbing
	require.Equal(t, []int64{1, 2, 3, 1, 2}, attempts)

	require.Equal(t, 6, dialer.DialCalls())
	require.Equal(t, int64(5), ing.Info().Reconnects)

	emitted := sink.Emitted()
	require.Len(t, emitted, 2)
	require.True(t, emitted[0].Block.Superseded) // flushed on disconnect
	require.False(t, emitted[1].Block.Superseded)
}

func TestRunSkipsUndecodableMessages(t *testing.T) {
	conn := scriptedConn([][]byte{
		[]byte("not even json"),
		[]byte(`{"payload_id":"0xaaaa"}`), // missing index and diff
		wireMessage(t, "0xaaaa", 0, true, "0x01"),
	}, nil)
	sink := &ingester_mock.SinkMock{}

	ing := New(discardLogger(), singleConnDialer(conn), sink, Config{MaxBlocks: 1}).(*ingester)

	err := ing.Run(context.Background())
	require.NoError(t, err)

	// decode errors never cost the connection
	require.Len(t, sink.Emitted(), 1)
	info := ing.Info()
	require.Equal(t, 2, info.Errors.DecodeErrorCount)
	require.Equal(t, int64(0), info.Reconnects)
	require.Equal(t, int64(1), info.FragmentsSeen)
}

func TestRunFlushesOpenBlockOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := [][]byte{
		wireMessage(t, "0xaaaa", 0, false, "0x01"),
		wireMessage(t, "0xaaaa", 1, false, "0x02"),
	}
	var mu sync.Mutex
	conn := &wsstream_mock.StreamConnectionMock{
		ReadMessageFunc: func(ctx context.Context) ([]byte, error) {
			mu.Lock()
			if len(msgs) > 0 {
				msg := msgs[0]
				msgs = msgs[1:]
				mu.Unlock()
				return msg, nil
			}
			mu.Unlock()
			// stream idle: shut the whole thing down
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	sink := &ingester_mock.SinkMock{}

	ing := New(discardLogger(), singleConnDialer(conn), sink, Config{}).(*ingester)

	err := ing.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// the partial block was flushed to the sink exactly once
	emitted := sink.Emitted()
	require.Len(t, emitted, 1)
	require.Equal(t, "0xaaaa", emitted[0].Block.PayloadID)
	require.True(t, emitted[0].Block.Superseded)
	require.Len(t, emitted[0].Block.Fragments, 2)
	require.GreaterOrEqual(t, conn.CloseCalls(), 1)
}

func TestRunInterruptsBackoffOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := &wsstream_mock.DialerMock{
		DialFunc: func(ctx context.Context) (wsstream.StreamConnection, error) {
			return nil, errors.Errorf("connection refused")
		},
	}
	sink := &ingester_mock.SinkMock{}

	ing := New(discardLogger(), dialer, sink, Config{
		BackoffMin: time.Hour, // would hang without cancellation
		BackoffMax: time.Hour,
	}).(*ingester)
	ing.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepWithContext(ctx, d)
	}

	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe cancellation during backoff")
	}
	require.Empty(t, sink.Emitted())
}

func TestRunRejectsInvertedBackoffBounds(t *testing.T) {
	ing := New(discardLogger(), &wsstream_mock.DialerMock{}, &ingester_mock.SinkMock{}, Config{
		BackoffMin: time.Second,
		BackoffMax: 100 * time.Millisecond,
	})

	err := ing.Run(context.Background())
	require.ErrorContains(t, err, "BackoffMin")
}
