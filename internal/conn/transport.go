package conn

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live socket. ReadMessage and WriteJSON may run
// concurrently; Close must unblock a pending read.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens sockets. The manager holds at most one open Conn at a
// time and never dials while an attempt is pending.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials real websocket endpoints.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

var _ Dialer = (*WSDialer)(nil)

func (d *WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	c, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return &wsConn{c: c}, nil
}

// wsConn wraps a gorilla connection. The write mutex exists because
// gorilla allows at most one concurrent writer and both the heartbeat
// and future callers share this handle.
type wsConn struct {
	writeMu sync.Mutex
	c       *websocket.Conn
}

var _ Conn = (*wsConn)(nil)

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) WriteJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

// buildURL appends the bearer token as a query parameter. The transport
// does not support connection-time headers, so the query string is the
// only place the token can ride.
func buildURL(base, token string) string {
	if token == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
