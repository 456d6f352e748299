// Package jsonrpc_mock provides a hand-rolled mock for the RPC client's
// HTTP transport.
package jsonrpc_mock

import (
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPClientMock implements jsonrpc.HTTPClient through a configurable
// function.
type HTTPClientMock struct {
	DoFunc func(req *retryablehttp.Request) (*http.Response, error)

	mu      sync.Mutex
	doCalls int
}

func (m *HTTPClientMock) Do(req *retryablehttp.Request) (*http.Response, error) {
	m.mu.Lock()
	m.doCalls++
	m.mu.Unlock()
	return m.DoFunc(req)
}

func (m *HTTPClientMock) DoCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doCalls
}
