// Package subscription maintains graphql-ws subscriptions to the server's
// pipeline event stream. Each subscription is driven by a Handle whose
// single dispatch goroutine owns the connection state machine, so handler
// invocations never overlap and transitions never race.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

const DefaultAckTimeout = 10 * time.Second

// Handler receives decoded pipeline events. It runs on the handle's dispatch
// goroutine and should not block for long.
type Handler func(h *Handle, ev model.PipelineEvent)

type Config struct {
	Dialer     Dialer
	Reconnect  ReconnectPolicy // defaults to ConstantReconnect(1s)
	AckTimeout time.Duration   // defaults to DefaultAckTimeout
	Logger     zerolog.Logger
	// NewID generates correlation ids; defaults to random UUIDs.
	NewID func() string
}

type Manager struct {
	cfg Config

	mu      sync.Mutex
	handles map[*Handle]struct{}
}

func NewManager(cfg Config) *Manager {
	if cfg.Reconnect == nil {
		cfg.Reconnect = ConstantReconnect(DefaultReconnectDelay)
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Manager{cfg: cfg, handles: make(map[*Handle]struct{})}
}

type OpenOption func(*Handle)

// WithStateListener registers fn to be called, on the dispatch goroutine,
// after every state transition of the handle.
func WithStateListener(fn func(*Handle, State)) OpenOption {
	return func(h *Handle) { h.onState = fn }
}

// Open starts a subscription and returns immediately. Connection failures
// are never reported to the caller; the handle keeps reconnecting until it
// is closed or ctx is cancelled.
func (m *Manager) Open(ctx context.Context, sub Subscription, handler Handler, opts ...OpenOption) *Handle {
	h := newHandle(ctx, m, sub, handler)
	for _, opt := range opts {
		opt(h)
	}

	m.mu.Lock()
	m.handles[h] = struct{}{}
	m.mu.Unlock()

	go func() {
		h.run()
		m.mu.Lock()
		delete(m.handles, h)
		m.mu.Unlock()
	}()
	return h
}

// Close stops h. It is equivalent to h.Close.
func (m *Manager) Close(h *Handle) {
	h.Close()
}

// Shutdown closes every open handle and waits until they have stopped or ctx
// expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Handle, 0, len(m.handles))
	for h := range m.handles {
		open = append(open, h)
	}
	m.mu.Unlock()

	for _, h := range open {
		h.Close()
	}
	for _, h := range open {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
