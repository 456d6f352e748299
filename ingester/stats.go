package ingester

import (
	"time"

	"github.com/basewatch/flashblocks-ingester/models"
)

// ComputeStats derives the statistics record for a completed block. Pure:
// no side effects, safe to call from any goroutine.
//
// minDuration is the floor applied to the block duration for the
// transactions-per-second rate, so near-instant blocks do not produce
// absurd rates. A duration of exactly zero (single fragment, or identical
// timestamps) short-circuits to a rate of zero instead.
func ComputeStats(block models.CompletedBlock, minDuration time.Duration) models.BlockStats {
	stats := models.BlockStats{
		BlockNumber:  block.BlockNumber,
		PayloadID:    block.PayloadID,
		Transactions: block.Transactions,
	}

	distinct := make(map[uint64]struct{}, len(block.Fragments))
	for _, frag := range block.Fragments {
		distinct[frag.Index] = struct{}{}
		stats.BalanceUpdates += len(frag.Metadata.NewAccountBalances)
		stats.Receipts += len(frag.Metadata.Receipts)
	}
	stats.SubBlocks = len(distinct)

	duration := block.Duration()
	if duration < 0 {
		duration = 0
	}
	stats.Duration = duration

	if stats.SubBlocks > 1 {
		stats.AvgInterval = duration / time.Duration(stats.SubBlocks-1)
	}

	if duration > 0 {
		floored := duration
		if floored < minDuration {
			floored = minDuration
		}
		stats.TxPerSec = float64(block.Transactions) / floored.Seconds()
	}

	return stats
}
