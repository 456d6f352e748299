// Package wsstream_mock provides hand-rolled mocks for the stream
// transport interfaces.
package wsstream_mock

import (
	"context"
	"sync"

	"github.com/basewatch/flashblocks-ingester/client/wsstream"
)

// DialerMock implements wsstream.Dialer through configurable functions.
type DialerMock struct {
	DialFunc func(ctx context.Context) (wsstream.StreamConnection, error)

	mu        sync.Mutex
	dialCalls int
}

func (m *DialerMock) Dial(ctx context.Context) (wsstream.StreamConnection, error) {
	m.mu.Lock()
	m.dialCalls++
	m.mu.Unlock()
	return m.DialFunc(ctx)
}

// DialCalls reports how many times Dial was invoked.
func (m *DialerMock) DialCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dialCalls
}

// StreamConnectionMock implements wsstream.StreamConnection through
// configurable functions.
type StreamConnectionMock struct {
	ReadMessageFunc func(ctx context.Context) ([]byte, error)
	CloseFunc       func() error

	mu         sync.Mutex
	readCalls  int
	closeCalls int
}

func (m *StreamConnectionMock) ReadMessage(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	m.readCalls++
	m.mu.Unlock()
	return m.ReadMessageFunc(ctx)
}

func (m *StreamConnectionMock) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *StreamConnectionMock) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCalls
}

func (m *StreamConnectionMock) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
