package ingester

import (
	"log/slog"

	"github.com/basewatch/flashblocks-ingester/models"
)

// Assembler folds the fragment stream into completed blocks. It owns one
// block-in-progress at a time and must only be driven from a single
// goroutine, in fragment arrival order.
type Assembler struct {
	log     *slog.Logger
	current *blockInProgress
	// recently closed payload ids, so stragglers arriving several blocks
	// late still cannot reopen or re-emit a block
	closed      map[string]struct{}
	closedOrder []string
}

// closedPayloadMemory bounds how many closed payload ids are remembered.
// Stragglers older than this window are indistinguishable from new
// payloads, which at ~200ms per block is minutes of lag.
const closedPayloadMemory = 32

type blockInProgress struct {
	payloadID   string
	blockNumber int64
	fragments   []models.Fragment
	seenIndexes map[uint64]struct{}
	maxIndex    uint64
	txCount     int
}

func NewAssembler(log *slog.Logger) *Assembler {
	return &Assembler{
		log:    log.With("module", "assembler"),
		closed: make(map[string]struct{}, closedPayloadMemory),
	}
}

// Ingest processes one fragment and returns the block it completed, if
// any. Receiving a fragment for a new payload id closes the open block
// first; the new fragment then opens the next block, so a single call
// never completes more than one block.
func (a *Assembler) Ingest(frag models.Fragment) *models.CompletedBlock {
	// A fragment for a payload we already closed cannot reopen it: the
	// block was emitted once and must not be emitted again.
	if _, done := a.closed[frag.PayloadID]; done {
		a.log.Warn("Dropping fragment for already-completed block",
			"payloadID", frag.PayloadID,
			"index", frag.Index,
		)
		return nil
	}

	if a.current != nil && a.current.payloadID != frag.PayloadID {
		completed := a.close(true)
		a.open(frag)
		return completed
	}

	if a.current == nil {
		a.open(frag)
		if frag.Final {
			return a.close(false)
		}
		return nil
	}

	if _, dup := a.current.seenIndexes[frag.Index]; dup {
		a.log.Debug("Ignoring duplicate fragment",
			"payloadID", frag.PayloadID,
			"index", frag.Index,
		)
		return nil
	}
	if frag.Index <= a.current.maxIndex {
		// tolerated, the stats only need counts and first/last timestamps
		a.log.Warn("Fragment index out of order",
			"payloadID", frag.PayloadID,
			"index", frag.Index,
			"maxIndexSeen", a.current.maxIndex,
		)
	}
	a.append(frag)

	if frag.Final {
		return a.close(false)
	}
	return nil
}

// Flush closes and returns the open block, if any. Called on disconnect
// and shutdown so partially received blocks still produce best-effort
// stats.
func (a *Assembler) Flush() *models.CompletedBlock {
	if a.current == nil {
		return nil
	}
	return a.close(true)
}

// OpenFragments reports the number of fragments accumulated in the block
// currently being assembled.
func (a *Assembler) OpenFragments() int {
	if a.current == nil {
		return 0
	}
	return len(a.current.fragments)
}

func (a *Assembler) open(frag models.Fragment) {
	if !frag.IsInitial() {
		a.log.Warn("Block opened by a non-initial fragment",
			"payloadID", frag.PayloadID,
			"index", frag.Index,
		)
	}
	a.current = &blockInProgress{
		payloadID:   frag.PayloadID,
		seenIndexes: make(map[uint64]struct{}, 16),
	}
	a.append(frag)
}

func (a *Assembler) append(frag models.Fragment) {
	b := a.current
	b.fragments = append(b.fragments, frag)
	b.seenIndexes[frag.Index] = struct{}{}
	if frag.Index > b.maxIndex {
		b.maxIndex = frag.Index
	}
	b.txCount += frag.TxCount()
	if n := frag.BlockNumber(); n > 0 {
		b.blockNumber = n
	}
}

func (a *Assembler) close(superseded bool) *models.CompletedBlock {
	b := a.current
	a.current = nil
	a.closed[b.payloadID] = struct{}{}
	a.closedOrder = append(a.closedOrder, b.payloadID)
	if len(a.closedOrder) > closedPayloadMemory {
		delete(a.closed, a.closedOrder[0])
		a.closedOrder = a.closedOrder[1:]
	}

	completed := &models.CompletedBlock{
		PayloadID:    b.payloadID,
		BlockNumber:  b.blockNumber,
		Fragments:    b.fragments,
		Transactions: b.txCount,
		FirstSeen:    b.fragments[0].ReceivedAt,
		LastSeen:     b.fragments[len(b.fragments)-1].ReceivedAt,
		Superseded:   superseded,
	}
	a.log.Debug("Block completed",
		"payloadID", completed.PayloadID,
		"blockNumber", completed.BlockNumber,
		"fragments", len(completed.Fragments),
		"transactions", completed.Transactions,
		"superseded", completed.Superseded,
	)
	return completed
}
