package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

var errSocketClosed = errors.New("socket closed")

// fakeSocket is the client end of an in-memory connection. The test plays
// the server through toClient and fromClient.
type fakeSocket struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		toClient:   make(chan []byte, 16),
		fromClient: make(chan []byte, 16),
		closed:     make(chan struct{}),
	}
}

func (s *fakeSocket) Send(_ context.Context, msg []byte) error {
	select {
	case <-s.closed:
		return errSocketClosed
	default:
	}
	select {
	case s.fromClient <- msg:
		return nil
	case <-s.closed:
		return errSocketClosed
	}
}

func (s *fakeSocket) Receive() ([]byte, error) {
	select {
	case msg := <-s.toClient:
		return msg, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// push sends a frame to the client.
func (s *fakeSocket) push(t *testing.T, f any) {
	t.Helper()
	var raw []byte
	switch v := f.(type) {
	case string:
		raw = []byte(v)
	default:
		var err error
		raw, err = json.Marshal(v)
		require.NoError(t, err)
	}
	select {
	case s.toClient <- raw:
	case <-time.After(waitTimeout):
		t.Fatal("client did not read frame")
	}
}

// next returns the next frame the client sent.
func (s *fakeSocket) next(t *testing.T) frame {
	t.Helper()
	select {
	case raw := <-s.fromClient:
		f, err := decodeFrame(raw)
		require.NoError(t, err)
		return f
	case <-time.After(waitTimeout):
		t.Fatal("client sent nothing")
		return frame{}
	}
}

type fakeDialer struct {
	fails   atomic.Int32 // dial attempts to fail before succeeding
	dialed  chan *fakeSocket
	attempt atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSocket, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context) (Socket, error) {
	d.attempt.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.fails.Load() > 0 {
		d.fails.Add(-1)
		return nil, errors.New("connection refused")
	}
	s := newFakeSocket()
	d.dialed <- s
	return s, nil
}

func (d *fakeDialer) accept(t *testing.T) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.dialed:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no dial")
		return nil
	}
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(waitTimeout):
		t.Fatal("handle did not stop")
	}
}

func waitState(t *testing.T, h *Handle, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.State() == want }, waitTimeout, time.Millisecond,
		"state %s, want %s", h.State(), want)
}
