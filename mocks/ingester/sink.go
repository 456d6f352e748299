// Package ingester_mock provides hand-rolled mocks for the ingester's
// outbound interfaces.
package ingester_mock

import (
	"context"
	"sync"

	"github.com/basewatch/flashblocks-ingester/models"
)

// SinkMock implements ingester.Sink through a configurable function and
// records every emitted block in order.
type SinkMock struct {
	EmitBlockFunc func(ctx context.Context, block models.CompletedBlock, stats models.BlockStats) error

	mu      sync.Mutex
	emitted []EmittedBlock
}

type EmittedBlock struct {
	Block models.CompletedBlock
	Stats models.BlockStats
}

func (m *SinkMock) EmitBlock(ctx context.Context, block models.CompletedBlock, stats models.BlockStats) error {
	m.mu.Lock()
	m.emitted = append(m.emitted, EmittedBlock{Block: block, Stats: stats})
	m.mu.Unlock()
	if m.EmitBlockFunc == nil {
		return nil
	}
	return m.EmitBlockFunc(ctx, block, stats)
}

// Emitted returns a copy of the blocks emitted so far, in emission order.
func (m *SinkMock) Emitted() []EmittedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmittedBlock, len(m.emitted))
	copy(out, m.emitted)
	return out
}
