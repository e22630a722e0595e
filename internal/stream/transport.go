package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live connection. WriteJSON and ReadMessage may be called from
// different goroutines.
type Conn interface {
	WriteJSON(v any) error
	// ReadMessage returns io.EOF when the peer closed the connection cleanly.
	ReadMessage() ([]byte, error)
	Close() error
}

type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials a websocket endpoint with gorilla/websocket.
type WSDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

func (d WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	c, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	return &wsConn{c: c, readTimeout: d.ReadTimeout, writeTimeout: wt}, nil
}

type wsConn struct {
	c            *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) WriteJSON(v any) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	if w.readTimeout > 0 {
		_ = w.c.SetReadDeadline(time.Now().Add(w.readTimeout))
	}
	_, b, err := w.c.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return b, nil
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.wmu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.wmu.Unlock()
		w.closeErr = w.c.Close()
		if errors.Is(w.closeErr, net.ErrClosed) {
			w.closeErr = nil
		}
	})
	return w.closeErr
}
