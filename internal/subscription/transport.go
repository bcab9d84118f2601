package subscription

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/websocket"
)

// Socket is one live connection carrying text frames.
type Socket interface {
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until a frame arrives or the socket fails. It returns
	// once Close has been called.
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens sockets. Dial must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context) (Socket, error)
}

// WebsocketDialer dials the server's subscription endpoint.
type WebsocketDialer struct {
	URL    string
	Origin string
	Header http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context) (Socket, error) {
	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	cfg, err := websocket.NewConfig(d.URL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	cfg.Protocol = []string{SubProtocol}
	for k, vs := range d.Header {
		for _, v := range vs {
			cfg.Header.Add(k, v)
		}
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Send(ctx context.Context, msg []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	return websocket.Message.Send(s.conn, string(msg))
}

func (s *wsSocket) Receive() ([]byte, error) {
	var msg string
	if err := websocket.Message.Receive(s.conn, &msg); err != nil {
		return nil, err
	}
	return []byte(msg), nil
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}
