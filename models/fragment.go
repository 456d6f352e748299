package models

import (
	"encoding/json"
	"time"

	"github.com/basewatch/flashblocks-ingester/lib/hexutils"
)

// FragmentBase carries the block header fields that only the first
// fragment of a block includes.
type FragmentBase struct {
	ParentHash    string `json:"parent_hash"`
	FeeRecipient  string `json:"fee_recipient"`
	BlockNumber   string `json:"block_number"`
	GasLimit      string `json:"gas_limit"`
	Timestamp     string `json:"timestamp"`
	BaseFeePerGas string `json:"base_fee_per_gas"`
}

// FragmentDiff is the incremental state carried by every fragment.
type FragmentDiff struct {
	StateRoot    string            `json:"state_root,omitempty"`
	BlockHash    string            `json:"block_hash,omitempty"`
	GasUsed      string            `json:"gas_used,omitempty"`
	Transactions []string          `json:"transactions,omitempty"`
	Withdrawals  []json.RawMessage `json:"withdrawals,omitempty"`
}

// FragmentMetadata is builder-provided bookkeeping attached to a fragment.
type FragmentMetadata struct {
	BlockNumber        uint64                    `json:"block_number,omitempty"`
	NewAccountBalances map[string]string         `json:"new_account_balances,omitempty"`
	Receipts           map[string]map[string]any `json:"receipts,omitempty"`
}

// Fragment is one decoded flashblock message. All fragments sharing a
// PayloadID belong to the same logical block; Index is the fragment's
// position within that block.
type Fragment struct {
	PayloadID string            `json:"payload_id"`
	Index     uint64            `json:"index"`
	Base      *FragmentBase     `json:"base,omitempty"`
	Diff      FragmentDiff      `json:"diff"`
	Metadata  FragmentMetadata  `json:"metadata"`
	Final     bool              `json:"final,omitempty"`

	// ReceivedAt is stamped by the receive loop, not part of the wire format.
	ReceivedAt time.Time `json:"-"`
}

// IsInitial reports whether this is the first fragment of a block.
func (f Fragment) IsInitial() bool {
	return f.Index == 0
}

// TxCount returns the number of transactions this fragment adds.
func (f Fragment) TxCount() int {
	return len(f.Diff.Transactions)
}

// BlockNumber returns the block number from the metadata, falling back to
// the hex-encoded header field when the metadata omits it. Returns 0 when
// neither is present.
func (f Fragment) BlockNumber() int64 {
	if f.Metadata.BlockNumber > 0 {
		return int64(f.Metadata.BlockNumber)
	}
	if f.Base != nil {
		if n, err := hexutils.IntFromHex(f.Base.BlockNumber); err == nil {
			return n
		}
	}
	return 0
}

// CompletedBlock is the immutable snapshot of a fully assembled block,
// produced once per payload id when the assembler closes it.
type CompletedBlock struct {
	PayloadID    string
	BlockNumber  int64
	Fragments    []Fragment
	Transactions int
	FirstSeen    time.Time
	LastSeen     time.Time
	// Superseded is set when the block was closed because a newer payload id
	// arrived rather than by an explicit finality marker.
	Superseded bool
}

// Duration is the span between the first and last fragment arrival.
func (b CompletedBlock) Duration() time.Duration {
	return b.LastSeen.Sub(b.FirstSeen)
}
