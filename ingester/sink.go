package ingester

import (
	"context"
	"log/slog"
	"time"

	"github.com/basewatch/flashblocks-ingester/lib/history"
	"github.com/basewatch/flashblocks-ingester/models"
)

// Sink consumes completed blocks and their statistics, one call per block,
// in the order blocks complete. Calls come from a single goroutine; a slow
// sink delays delivery of later blocks but never fragment ingestion of the
// current one.
type Sink interface {
	EmitBlock(ctx context.Context, block models.CompletedBlock, stats models.BlockStats) error
}

// LogSink writes one structured log line per completed block.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log.With("module", "sink")}
}

func (s *LogSink) EmitBlock(_ context.Context, block models.CompletedBlock, stats models.BlockStats) error {
	s.log.Info("BLOCK COMPLETED",
		"blockNumber", stats.BlockNumber,
		"payloadID", stats.PayloadID,
		"subBlocks", stats.SubBlocks,
		"transactions", stats.Transactions,
		"duration", stats.Duration,
		"avgInterval", stats.AvgInterval,
		"txPerSec", stats.TxPerSec,
		"balanceUpdates", stats.BalanceUpdates,
		"receipts", stats.Receipts,
		"superseded", block.Superseded,
	)
	return nil
}

// HistorySink records stats into a bounded in-memory store of recent
// blocks.
type HistorySink struct {
	store *history.Store
}

func NewHistorySink(store *history.Store) *HistorySink {
	return &HistorySink{store: store}
}

func (s *HistorySink) EmitBlock(_ context.Context, _ models.CompletedBlock, stats models.BlockStats) error {
	s.store.Add(stats, time.Now())
	return nil
}

// Sinks fans a block out to several sinks in order. The first error stops
// the fan-out and is returned.
type Sinks []Sink

func (s Sinks) EmitBlock(ctx context.Context, block models.CompletedBlock, stats models.BlockStats) error {
	for _, sink := range s {
		if err := sink.EmitBlock(ctx, block, stats); err != nil {
			return err
		}
	}
	return nil
}
