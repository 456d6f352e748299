package jsonrpc

import (
	"time"
)

type Config struct {
	URL            string
	HTTPHeaders    map[string]string
	RequestTimeout time.Duration
}

// PendingBlock is the preconfirmation view of the block currently being
// built, as returned by eth_getBlockByNumber with the "pending" tag.
type PendingBlock struct {
	Number  int64
	Hash    string
	GasUsed string
	TxCount int
}

// Receipt is the subset of a transaction receipt the monitor surfaces.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	Status      int64
	GasUsed     int64
}

// Snapshot pairs the confirmed chain head with the pending flashblock.
type Snapshot struct {
	LatestBlockNumber int64
	Pending           PendingBlock
}
