package models

import (
	"fmt"
	"time"
)

// BlockStats is the read-only statistics record derived from a
// CompletedBlock.
type BlockStats struct {
	BlockNumber  int64
	PayloadID    string
	SubBlocks    int
	Transactions int
	Duration     time.Duration
	// AvgInterval is Duration / (SubBlocks - 1); zero for single-fragment
	// blocks.
	AvgInterval time.Duration
	// TxPerSec is Transactions over the block duration, zero when the
	// duration is zero.
	TxPerSec float64
	// Balance and receipt entries reported by the builder across all
	// fragments of the block.
	BalanceUpdates int
	Receipts       int
}

func (s BlockStats) String() string {
	return fmt.Sprintf("block=%d payload=%s subBlocks=%d txs=%d duration=%s avgInterval=%s txPerSec=%.2f",
		s.BlockNumber, s.PayloadID, s.SubBlocks, s.Transactions, s.Duration, s.AvgInterval, s.TxPerSec)
}
