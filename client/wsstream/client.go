package wsstream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/websocket"
)

// StreamConnection is one established subscription to the fragment feed.
// ReadMessage blocks until the next message, a transport error, or context
// cancellation. Implementations deliver messages in the order the remote
// sends them.
type StreamConnection interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer establishes stream connections. The supervisor redials through
// this after every disconnect.
type Dialer interface {
	Dial(ctx context.Context) (StreamConnection, error)
}

type wsDialer struct {
	log    *slog.Logger
	cfg    Config
	dialer *websocket.Dialer
}

func NewDialer(log *slog.Logger, cfg Config) Dialer {
	cfg = cfg.withDefaults()
	return &wsDialer{
		log: log.With("module", "wsstream"),
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
	}
}

func (d *wsDialer) Dial(ctx context.Context) (StreamConnection, error) {
	start := time.Now()
	header := http.Header{}
	for k, v := range d.cfg.HTTPHeaders {
		header.Set(k, v)
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		observeDial(false, start)
		return nil, errors.Errorf("dialing %s (status %d): %w", d.cfg.URL, status, err)
	}
	conn.SetReadLimit(d.cfg.ReadLimit)
	observeDial(true, start)
	d.log.Info("Stream connection established", "url", d.cfg.URL, "elapsed", time.Since(start))

	return newConn(conn), nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, closed: make(chan struct{})}
}

// ReadMessage returns the next data message. Control frames (ping, pong,
// close) are handled inside the websocket library's read loop. A canceled
// context tears the connection down so the blocked read returns promptly.
func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	// unblock the read on cancellation by closing the underlying socket
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-c.closed:
		case <-watchDone:
		}
	}()

	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Errorf("reading stream message: %w", err)
	}
	observeMessage(msgType, len(data))
	return data, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		// best effort: tell the peer we are going away before dropping TCP
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		err = c.conn.Close()
	})
	return err
}
