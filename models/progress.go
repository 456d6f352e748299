package models

import (
	"time"
)

// StreamProgress is a point-in-time summary of the stream's health,
// produced by the supervisor's periodic progress report.
type StreamProgress struct {
	LatestBlockNumber int64
	BlocksCompleted   int64
	FragmentsSeen     int64
	TransactionsSeen  int64
	DecodeErrors      int64
	Reconnects        int64
	Since             time.Time
}
