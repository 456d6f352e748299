package wsstream

import (
	"time"
)

type Config struct {
	// URL of the flashblocks websocket feed, ws:// or wss://.
	URL string
	// HandshakeTimeout bounds the websocket upgrade. Defaults to 10s.
	HandshakeTimeout time.Duration
	// ReadLimit caps a single message's size in bytes. Defaults to 16 MiB;
	// full diff fragments with receipts can be large.
	ReadLimit int64
	// HTTPHeaders are sent with the upgrade request (auth tokens etc).
	HTTPHeaders map[string]string
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 16 << 20
)

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = defaultReadLimit
	}
	return c
}
