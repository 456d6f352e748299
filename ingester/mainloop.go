package ingester

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"golang.org/x/sync/errgroup"

	"github.com/basewatch/flashblocks-ingester/client/wsstream"
	"github.com/basewatch/flashblocks-ingester/models"
)

// The supervisor is an explicit state machine so cancellation and backoff
// stay observable and testable:
//
//	Connecting -> Streaming -> (transport error) -> Backoff -> Connecting
//	any state  -> ShuttingDown on context cancellation
//
// Decode errors never leave Streaming; only transport errors do.
type supervisorState int

const (
	stateConnecting supervisorState = iota
	stateStreaming
	stateBackoff
	stateShuttingDown
)

func (s supervisorState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateBackoff:
		return "backoff"
	case stateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// errMaxBlocksReached stops the supervisor cleanly once cfg.MaxBlocks
// blocks have completed.
var errMaxBlocksReached = errors.New("maximum block count reached")

// Run drives the stream:
//
//	superviseStream (receive loop, assembler) -> completed channel -> emitLoop (stats, sink)
//
// Fragment processing is strictly sequential inside superviseStream, which
// is the only goroutine touching the assembler. Stats computation and sink
// delivery run concurrently with the next fragment's ingestion on the
// emitLoop goroutine.
func (i *ingester) Run(ctx context.Context) error {
	if i.cfg.BackoffMin > i.cfg.BackoffMax {
		return errors.Errorf("BackoffMin must not exceed BackoffMax")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errGroup, gctx := errgroup.WithContext(ctx)

	// Buffered so the supervisor can hand off a completed block and move on
	// to the next fragment without waiting for the sink.
	completed := make(chan models.CompletedBlock, 1)

	// The emit loop drains until the channel is closed, not until the
	// context dies, so blocks flushed during shutdown still reach the sink.
	errGroup.Go(func() error {
		return i.emitLoop(completed)
	})
	errGroup.Go(func() error {
		return i.reportProgress(gctx)
	})

	i.log.Info("Starting stream supervisor",
		"runForever", i.cfg.MaxBlocks <= 0,
		"maxBlocks", i.cfg.MaxBlocks,
		"backoffMin", i.cfg.BackoffMin,
		"backoffMax", i.cfg.BackoffMax,
	)

	// Supervise in the main goroutine; it is the only writer to completed.
	err := i.superviseStream(gctx, completed)
	close(completed)
	cancel()
	groupErr := errGroup.Wait()

	switch {
	case errors.Is(err, errMaxBlocksReached):
		i.log.Info("Reached maximum block count, exiting", "maxBlocks", i.cfg.MaxBlocks)
		return nil
	case err != nil:
		return err
	default:
		return groupErr
	}
}

func (i *ingester) superviseStream(ctx context.Context, completed chan<- models.CompletedBlock) error {
	state := stateConnecting
	var conn wsstream.StreamConnection

	for {
		switch state {
		case stateConnecting:
			if ctx.Err() != nil {
				state = stateShuttingDown
				continue
			}
			c, err := i.dialer.Dial(ctx)
			if err != nil {
				if ctx.Err() != nil {
					state = stateShuttingDown
					continue
				}
				i.observeTransportError(err)
				i.log.Error("Failed to connect to stream", "error", err)
				state = stateBackoff
				continue
			}
			conn = c
			state = stateStreaming

		case stateStreaming:
			err := i.receiveLoop(ctx, conn, completed)
			_ = conn.Close()
			conn = nil

			switch {
			case errors.Is(err, errMaxBlocksReached):
				i.flushOpenBlock(completed)
				return err
			case ctx.Err() != nil:
				state = stateShuttingDown
			default:
				// transport-level failure: close the open block best-effort,
				// then reconnect
				i.observeTransportError(err)
				i.log.Warn("Stream disconnected", "error", err)
				i.flushOpenBlock(completed)
				if i.blockBudgetExhausted() {
					return errMaxBlocksReached
				}
				state = stateBackoff
			}

		case stateBackoff:
			delay := i.backoff.Next()
			i.outageAttempts++
			total := atomic.AddInt64(&i.info.Reconnects, 1)
			observeReconnect()
			i.log.Info("Reconnecting after backoff",
				"delay", delay,
				"attempt", i.outageAttempts,
				"totalReconnects", total,
			)
			if err := i.sleep(ctx, delay); err != nil {
				state = stateShuttingDown
				continue
			}
			state = stateConnecting

		case stateShuttingDown:
			i.flushOpenBlock(completed)
			i.log.Info("Stream supervisor stopped")
			return ctx.Err()
		}
	}
}

// receiveLoop decodes and forwards messages until the transport fails, the
// context is cancelled, or the block budget is exhausted. Decode errors
// are counted and skipped; they never terminate the connection.
func (i *ingester) receiveLoop(
	ctx context.Context, conn wsstream.StreamConnection, completed chan<- models.CompletedBlock,
) error {
	receivedAny := false
	for {
		raw, err := conn.ReadMessage(ctx)
		if err != nil {
			return err
		}

		frag, err := DecodeFragment(raw, time.Now())
		if err != nil {
			i.observeDecodeError(err)
			i.log.Warn("Skipping undecodable message", "error", err, "bytes", len(raw))
			continue
		}

		if !receivedAny {
			// the connection is delivering fragments, reset the backoff
			// schedule and attempt count for the next outage
			receivedAny = true
			i.backoff.Reset()
			i.outageAttempts = 0
		}
		i.accountFragment(frag)

		if block := i.asm.Ingest(frag); block != nil {
			if err := i.deliver(ctx, completed, *block); err != nil {
				return err
			}
			atomic.AddInt64(&i.info.BlocksCompleted, 1)
			if i.blockBudgetExhausted() {
				return errMaxBlocksReached
			}
		}
	}
}

func (i *ingester) deliver(
	ctx context.Context, completed chan<- models.CompletedBlock, block models.CompletedBlock,
) error {
	observeBlockCompleted(block)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case completed <- block:
		return nil
	}
}

// flushOpenBlock closes any accumulating block and hands it to the emit
// loop. The emit loop keeps draining until the supervisor closes the
// channel, so the send always completes.
func (i *ingester) flushOpenBlock(completed chan<- models.CompletedBlock) {
	block := i.asm.Flush()
	if block == nil {
		return
	}
	atomic.AddInt64(&i.info.BlocksCompleted, 1)
	observeBlockCompleted(*block)
	completed <- *block
}

func (i *ingester) blockBudgetExhausted() bool {
	return i.cfg.MaxBlocks > 0 && atomic.LoadInt64(&i.info.BlocksCompleted) >= i.cfg.MaxBlocks
}

func (i *ingester) accountFragment(frag models.Fragment) {
	atomic.AddInt64(&i.info.FragmentsSeen, 1)
	atomic.AddInt64(&i.info.TransactionsSeen, int64(frag.TxCount()))
	if n := frag.BlockNumber(); n > 0 {
		atomic.StoreInt64(&i.info.LatestBlockNumber, n)
	}
	var sinceLast time.Duration
	if !i.lastFragmentAt.IsZero() {
		sinceLast = frag.ReceivedAt.Sub(i.lastFragmentAt)
	}
	i.lastFragmentAt = frag.ReceivedAt
	observeFragment(frag, i.asm.OpenFragments(), sinceLast)
}

func (i *ingester) observeDecodeError(err error) {
	observeDecodeErrorMetric(err)
	i.errMu.Lock()
	i.info.Errors.ObserveDecodeError(ErrorInfo{Error: err})
	i.errMu.Unlock()
}

func (i *ingester) observeTransportError(err error) {
	i.errMu.Lock()
	i.info.Errors.ObserveTransportError(ErrorInfo{Error: err})
	i.errMu.Unlock()
}

// emitLoop computes statistics for completed blocks and feeds the sink, in
// completion order. Sink errors are logged and skipped: a broken consumer
// must not take the stream down. The loop runs until the supervisor closes
// the channel, which happens after the final flush.
func (i *ingester) emitLoop(completed <-chan models.CompletedBlock) error {
	i.log.Debug("emitLoop: starting to receive blocks")
	for block := range completed {
		i.emit(block)
	}
	return nil
}

func (i *ingester) emit(block models.CompletedBlock) {
	stats := ComputeStats(block, i.cfg.MinBlockDuration)
	// bounded so shutdown is never held up by a stuck sink
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := i.sink.EmitBlock(ctx, block, stats); err != nil {
		i.log.Error("Sink failed to consume block",
			"payloadID", block.PayloadID,
			"blockNumber", block.BlockNumber,
			"error", err,
		)
	}
}

func (i *ingester) reportProgress(ctx context.Context) error {
	timer := time.NewTicker(i.cfg.ReportInterval)
	defer timer.Stop()

	previousTime := time.Now()
	previousCompleted := atomic.LoadInt64(&i.info.BlocksCompleted)
	previousTxs := atomic.LoadInt64(&i.info.TransactionsSeen)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tNow := <-timer.C:
			report := i.Info().ToProgressReport()
			elapsed := tNow.Sub(previousTime).Seconds()
			blocksPerSec := float64(report.BlocksCompleted-previousCompleted) / elapsed
			txsPerSec := float64(report.TransactionsSeen-previousTxs) / elapsed

			fields := []interface{}{
				"latestBlockNumber", report.LatestBlockNumber,
				"blocksCompleted", report.BlocksCompleted,
				"blocksPerSec", blocksPerSec,
				"txsPerSec", txsPerSec,
				"fragmentsSeen", report.FragmentsSeen,
			}
			if report.DecodeErrors > 0 {
				fields = append(fields, "decodeErrors", report.DecodeErrors)
			}
			if report.Reconnects > 0 {
				fields = append(fields, "reconnects", report.Reconnects)
			}
			i.log.Info("STREAM REPORT", fields...)

			previousTime = tNow
			previousCompleted = report.BlocksCompleted
			previousTxs = report.TransactionsSeen
		}
	}
}
