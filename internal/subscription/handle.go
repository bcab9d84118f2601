package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/rusty-ci/rusty-tui/internal/metrics"
	"github.com/rusty-ci/rusty-tui/internal/model"
)

const stopSendTimeout = time.Second

var errAckTimeout = errors.New("no connection_ack before timeout")

type inboundKind int

const (
	inboundDialed inboundKind = iota
	inboundFrame
	inboundClosed
)

// inbound is what dial and reader goroutines report to the dispatch loop.
// attempt ties it to the connection attempt that produced it.
type inbound struct {
	attempt uint64
	kind    inboundKind
	socket  Socket
	frame   []byte
	err     error
}

// Handle is one open subscription.
type Handle struct {
	m       *Manager
	sub     Subscription
	handler Handler
	onState func(*Handle, State)
	log     zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	inbox     chan inbound
	done      chan struct{}
	workers   sync.WaitGroup

	stateMu       sync.Mutex
	closed        bool
	state         atomic.Int32
	correlationID atomic.Value

	// owned by the dispatch goroutine
	attempt  uint64
	socket   Socket
	backoff  backoff.BackOff
	retry    *time.Timer
	ackTimer *time.Timer
}

func newHandle(parent context.Context, m *Manager, sub Subscription, handler Handler) *Handle {
	ctx, cancel := context.WithCancel(parent)
	if handler == nil {
		handler = func(*Handle, model.PipelineEvent) {}
	}
	h := &Handle{
		m:       m,
		sub:     sub,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan inbound, 64),
		done:    make(chan struct{}),
		backoff: m.cfg.Reconnect(),
		log:     m.cfg.Logger.With().Str("scope", sub.ScopeID).Logger(),
	}
	h.correlationID.Store("")
	return h
}

// State returns the current state. It may be read from any goroutine.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// CorrelationID returns the id of the current connection attempt.
func (h *Handle) CorrelationID() string {
	return h.correlationID.Load().(string)
}

// Close moves the handle to Closing: a stop message is sent if subscribed,
// the socket is closed and no reconnect follows. No handler invocation
// starts after Close returns. Close does not wait; use Done for that. It
// is safe to call more than once and from a Handler.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.stateMu.Lock()
		h.closed = true
		h.stateMu.Unlock()
		h.cancel()
	})
}

// closing reports whether Close was called or the parent context ended.
func (h *Handle) closing() bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.closed || h.ctx.Err() != nil
}

// Done is closed once the handle has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// setState refuses every state but Closing once the handle is closing.
func (h *Handle) setState(s State) bool {
	h.stateMu.Lock()
	if s != Closing && (h.closed || h.ctx.Err() != nil) {
		h.stateMu.Unlock()
		return false
	}
	prev := State(h.state.Swap(int32(s)))
	h.stateMu.Unlock()
	if prev == s {
		return true
	}
	metrics.StateTransitionsTotal.WithLabelValues(s.String()).Inc()
	h.log.Debug().Str("state", s.String()).Msg("subscription state changed")
	if h.onState != nil {
		h.onState(h, s)
	}
	return true
}

func (h *Handle) run() {
	defer close(h.done)
	defer h.workers.Wait()

	h.connect()
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return
		case ev := <-h.inbox:
			h.handleInbound(ev)
		case <-timerC(h.retry):
			h.retry = nil
			h.connect()
		case <-timerC(h.ackTimer):
			h.ackTimer = nil
			if !h.closing() {
				h.fail(errAckTimeout)
			}
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// post delivers ev to the dispatch loop unless the handle is closing.
func (h *Handle) post(ev inbound) bool {
	select {
	case h.inbox <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Handle) connect() {
	if h.closing() {
		return
	}
	h.attempt++
	attempt := h.attempt
	id := h.m.cfg.NewID()
	h.correlationID.Store(id)
	if !h.setState(Connecting) {
		return
	}
	h.log.Debug().Uint64("attempt", attempt).Str("correlation_id", id).Msg("connecting")

	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		sock, err := h.m.cfg.Dialer.Dial(h.ctx)
		if !h.post(inbound{attempt: attempt, kind: inboundDialed, socket: sock, err: err}) && sock != nil {
			_ = sock.Close()
		}
	}()
}

func (h *Handle) handleInbound(ev inbound) {
	if h.closing() {
		if ev.kind == inboundDialed && ev.socket != nil {
			_ = ev.socket.Close()
		}
		return
	}
	if ev.attempt != h.attempt {
		// Left over from a superseded connection.
		if ev.kind == inboundDialed && ev.socket != nil {
			_ = ev.socket.Close()
		}
		return
	}
	switch ev.kind {
	case inboundDialed:
		h.onDialed(ev)
	case inboundFrame:
		h.onFrame(ev.frame)
	case inboundClosed:
		h.fail(ev.err)
	}
}

func (h *Handle) onDialed(ev inbound) {
	if ev.err != nil {
		h.fail(ev.err)
		return
	}
	h.socket = ev.socket

	msg, err := encodeInit(h.sub)
	if err == nil {
		err = h.socket.Send(h.ctx, msg)
	}
	if err != nil {
		h.fail(err)
		return
	}
	if !h.setState(AwaitingAck) {
		return
	}
	h.ackTimer = time.NewTimer(h.m.cfg.AckTimeout)

	sock, attempt := h.socket, h.attempt
	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		for {
			msg, err := sock.Receive()
			if err != nil {
				h.post(inbound{attempt: attempt, kind: inboundClosed, err: err})
				return
			}
			if !h.post(inbound{attempt: attempt, kind: inboundFrame, frame: msg}) {
				return
			}
		}
	}()
}

func (h *Handle) onFrame(raw []byte) {
	f, err := decodeFrame(raw)
	if err != nil {
		h.drop(metrics.DropMalformed, err)
		return
	}

	switch f.Type {
	case typeConnectionAck:
		if h.State() != AwaitingAck {
			h.drop(metrics.DropNotReady, errors.New("unexpected connection_ack"))
			return
		}
		stopTimer(h.ackTimer)
		h.ackTimer = nil
		if h.closing() {
			return
		}
		msg, err := encodeStart(h.CorrelationID(), h.sub)
		if err == nil {
			err = h.socket.Send(h.ctx, msg)
		}
		if err != nil {
			h.fail(err)
			return
		}
		h.backoff.Reset()
		h.setState(Subscribed)

	case typeData:
		if h.State() != Subscribed {
			h.drop(metrics.DropNotReady, errors.New("data before subscription"))
			return
		}
		if f.ID != "" && f.ID != h.CorrelationID() {
			h.drop(metrics.DropStaleID, errors.New("data for another subscription id"))
			return
		}
		events, err := decodeEvents(f.Payload)
		if err != nil {
			reason := metrics.DropMalformed
			if errors.Is(err, errNoKnownField) {
				reason = metrics.DropUnknownField
			}
			h.drop(reason, err)
			return
		}
		for _, ev := range events {
			if h.ctx.Err() != nil {
				return
			}
			metrics.EventsDeliveredTotal.WithLabelValues(ev.Kind.String()).Inc()
			h.handler(h, ev)
		}

	case typeKeepAlive:

	case typeError:
		h.log.Warn().RawJSON("payload", nonEmpty(f.Payload)).Msg("subscription error from server")

	case typeConnectionError, typeComplete:
		h.fail(errors.New("server ended subscription: " + f.Type))

	default:
		h.drop(metrics.DropUnknownType, errors.New("unknown frame type "+f.Type))
	}
}

func nonEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

func (h *Handle) drop(reason string, err error) {
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
	h.log.Warn().Err(err).Str("reason", reason).Msg("subscription frame dropped")
}

// fail tears down the current connection and schedules the next attempt.
func (h *Handle) fail(err error) {
	h.log.Debug().Err(err).Uint64("attempt", h.attempt).Msg("subscription transport failed")
	stopTimer(h.ackTimer)
	h.ackTimer = nil
	if h.socket != nil {
		_ = h.socket.Close()
		h.socket = nil
	}
	// Anything still queued for this attempt is now stale.
	h.attempt++
	if !h.setState(Disconnected) || h.closing() {
		return
	}

	delay := h.backoff.NextBackOff()
	if delay == backoff.Stop {
		h.log.Warn().Msg("reconnect policy exhausted; subscription stays disconnected")
		return
	}
	metrics.ReconnectsTotal.Inc()
	h.retry = time.NewTimer(delay)
}

func (h *Handle) shutdown() {
	wasSubscribed := h.State() == Subscribed
	h.setState(Closing)
	stopTimer(h.retry)
	stopTimer(h.ackTimer)
	h.retry, h.ackTimer = nil, nil

	if h.socket == nil {
		return
	}
	if wasSubscribed {
		if msg, err := encodeStop(h.CorrelationID()); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), stopSendTimeout)
			if err := h.socket.Send(ctx, msg); err != nil {
				h.log.Debug().Err(err).Msg("send stop")
			}
			cancel()
		}
	}
	_ = h.socket.Close()
	h.socket = nil
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
