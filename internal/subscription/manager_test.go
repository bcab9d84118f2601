package subscription

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rusty-ci/rusty-tui/internal/metrics"
	"github.com/rusty-ci/rusty-tui/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	events []model.PipelineEvent
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 64)}
}

func (r *recorder) handle(_ *Handle, ev model.PipelineEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) wait(t *testing.T) model.PipelineEvent {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(waitTimeout):
		t.Fatal("no event delivered")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testManager(d Dialer) *Manager {
	return NewManager(Config{
		Dialer:     d,
		Reconnect:  ConstantReconnect(10 * time.Millisecond),
		AckTimeout: time.Second,
		Logger:     zerolog.Nop(),
		NewID:      sequentialIDs(),
	})
}

var testSub = Subscription{
	Credential: "secret-token",
	ScopeID:    "job-1",
	Selection:  SelectLogs,
}

func dataFrame(id string, data map[string]any) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    "data",
		"payload": map[string]any{"data": data},
	}
}

// subscribe drives the handshake on sock and returns the start frame.
func subscribe(t *testing.T, h *Handle, sock *fakeSocket) frame {
	t.Helper()
	init := sock.next(t)
	require.Equal(t, "connection_init", init.Type)
	sock.push(t, map[string]string{"type": "connection_ack"})
	start := sock.next(t)
	require.Equal(t, "start", start.Type)
	waitState(t, h, Subscribed)
	return start
}

func TestHandshakeAndDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	m := testManager(d)
	rec := newRecorder()
	h := m.Open(context.Background(), testSub, rec.handle)

	sock := d.accept(t)
	init := sock.next(t)
	assert.Equal(t, "connection_init", init.Type)
	assert.JSONEq(t, `{"auth":"secret-token","extra":{"jobId":"job-1"}}`, string(init.Payload))
	waitState(t, h, AwaitingAck)

	sock.push(t, map[string]string{"type": "connection_ack"})
	start := sock.next(t)
	assert.Equal(t, "start", start.Type)
	assert.Equal(t, "id-1", start.ID)
	assert.Equal(t, h.CorrelationID(), start.ID)
	assert.JSONEq(t, `{"query":"subscription { pipelineLogs }"}`, string(start.Payload))
	waitState(t, h, Subscribed)

	sock.push(t, dataFrame("id-1", map[string]any{
		"pipelineLogs": `{"stage":"rusty-before","line":"cloning"}`,
	}))
	ev := rec.wait(t)
	assert.Equal(t, model.PipelineLogAppended, ev.Kind)
	assert.Equal(t, model.LogRecord{Stage: "before", Line: "cloning"}, *ev.Log)

	sock.push(t, dataFrame("id-1", map[string]any{
		"pipelineInserted": map[string]any{"id": "p1", "number": 3, "status": "DEFINED", "jobId": "job-1"},
	}))
	ev = rec.wait(t)
	assert.Equal(t, model.PipelineInserted, ev.Kind)
	assert.Equal(t, "p1", ev.Pipeline.ID)

	h.Close()
	stop := sock.next(t)
	assert.Equal(t, "stop", stop.Type)
	assert.Equal(t, "id-1", stop.ID)
	waitDone(t, h)
	assert.Equal(t, Closing, h.State())
	assert.True(t, sock.isClosed())
}

func TestReconnectUsesFreshCorrelationID(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reconnects := testutil.ToFloat64(metrics.ReconnectsTotal)
	stale := testutil.ToFloat64(metrics.FramesDroppedTotal.WithLabelValues(metrics.DropStaleID))

	d := newFakeDialer()
	m := testManager(d)
	rec := newRecorder()
	h := m.Open(context.Background(), testSub, rec.handle)
	defer func() {
		h.Close()
		waitDone(t, h)
	}()

	first := d.accept(t)
	start := subscribe(t, h, first)
	assert.Equal(t, "id-1", start.ID)

	require.NoError(t, first.Close())

	second := d.accept(t)
	start = subscribe(t, h, second)
	assert.Equal(t, "id-2", start.ID)
	assert.Equal(t, reconnects+1, testutil.ToFloat64(metrics.ReconnectsTotal))

	second.push(t, dataFrame("id-1", map[string]any{
		"pipelineUpdated": map[string]any{"id": "old"},
	}))
	second.push(t, dataFrame("id-2", map[string]any{
		"pipelineUpdated": map[string]any{"id": "new", "status": "SUCCESS"},
	}))
	ev := rec.wait(t)
	assert.Equal(t, "new", ev.Pipeline.ID)
	assert.Equal(t, model.PipelineSuccess, ev.Pipeline.Status)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, stale+1, testutil.ToFloat64(metrics.FramesDroppedTotal.WithLabelValues(metrics.DropStaleID)))
}

func TestMalformedFramesAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	malformed := testutil.ToFloat64(metrics.FramesDroppedTotal.WithLabelValues(metrics.DropMalformed))
	unknown := testutil.ToFloat64(metrics.FramesDroppedTotal.WithLabelValues(metrics.DropUnknownType))

	d := newFakeDialer()
	m := testManager(d)
	rec := newRecorder()
	h := m.Open(context.Background(), testSub, rec.handle)
	defer func() {
		h.Close()
		waitDone(t, h)
	}()

	sock := d.accept(t)
	subscribe(t, h, sock)

	sock.push(t, "{not json")
	sock.push(t, map[string]string{"type": "mystery"})
	sock.push(t, dataFrame("id-1", map[string]any{"pipelineLogs": "also not json"}))
	sock.push(t, dataFrame("id-1", map[string]any{
		"pipelineLogs": `{"stage":"build","line":"ok"}`,
	}))

	ev := rec.wait(t)
	assert.Equal(t, "build", ev.Log.Stage)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, Subscribed, h.State())
	assert.False(t, sock.isClosed())
	assert.Equal(t, malformed+2, testutil.ToFloat64(metrics.FramesDroppedTotal.WithLabelValues(metrics.DropMalformed)))
	assert.Equal(t, unknown+1, testutil.ToFloat64(metrics.FramesDroppedTotal.WithLabelValues(metrics.DropUnknownType)))
}

func TestDataBeforeAckIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	m := testManager(d)
	rec := newRecorder()
	h := m.Open(context.Background(), testSub, rec.handle)

	sock := d.accept(t)
	sock.next(t)
	sock.push(t, dataFrame("", map[string]any{"pipelineLogs": `{"stage":"a","line":"early"}`}))
	sock.push(t, map[string]string{"type": "connection_ack"})
	sock.next(t)
	waitState(t, h, Subscribed)
	sock.push(t, dataFrame("", map[string]any{"pipelineLogs": `{"stage":"a","line":"late"}`}))

	ev := rec.wait(t)
	assert.Equal(t, "late", ev.Log.Line)
	assert.Equal(t, 1, rec.count())

	h.Close()
	waitDone(t, h)
}

func TestAckTimeoutTriggersReconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	m := NewManager(Config{
		Dialer:     d,
		Reconnect:  ConstantReconnect(5 * time.Millisecond),
		AckTimeout: 20 * time.Millisecond,
		Logger:     zerolog.Nop(),
		NewID:      sequentialIDs(),
	})
	h := m.Open(context.Background(), testSub, nil)

	first := d.accept(t)
	first.next(t)
	second := d.accept(t)
	assert.True(t, first.isClosed())
	second.next(t)

	h.Close()
	waitDone(t, h)
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	d.fails.Store(1 << 20)
	m := NewManager(Config{
		Dialer:    d,
		Reconnect: ConstantReconnect(50 * time.Millisecond),
		Logger:    zerolog.Nop(),
	})
	var states []State
	var mu sync.Mutex
	h := m.Open(context.Background(), testSub, nil, WithStateListener(func(_ *Handle, s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))

	require.Eventually(t, func() bool { return d.attempt.Load() >= 1 }, waitTimeout, time.Millisecond)
	waitState(t, h, Disconnected)
	h.Close()
	h.Close()
	waitDone(t, h)

	attempts := d.attempt.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, attempts, d.attempt.Load(), "no dial after close")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, Closing, states[len(states)-1])
	assert.NotContains(t, states, Subscribed)
}

func TestCloseDuringImmediateRetry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	d.fails.Store(1 << 20)
	m := NewManager(Config{
		Dialer:    d,
		Reconnect: ConstantReconnect(time.Nanosecond),
		Logger:    zerolog.Nop(),
	})

	for i := 0; i < 200; i++ {
		var mu sync.Mutex
		var closed bool
		var after []State
		h := m.Open(context.Background(), testSub, nil, WithStateListener(func(h *Handle, s State) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				after = append(after, s)
				return
			}
			if s == Disconnected {
				closed = true
				h.Close()
			}
		}))
		waitDone(t, h)

		mu.Lock()
		require.Equal(t, []State{Closing}, after, "handle %d", i)
		mu.Unlock()
	}
}

func TestCloseFromHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	m := testManager(d)
	calls := 0
	h := m.Open(context.Background(), testSub, func(h *Handle, _ model.PipelineEvent) {
		calls++
		h.Close()
	})

	sock := d.accept(t)
	subscribe(t, h, sock)
	payload := map[string]any{
		"pipelineInserted": map[string]any{"id": "a"},
		"pipelineUpdated":  map[string]any{"id": "a"},
	}
	sock.push(t, dataFrame("id-1", payload))
	waitDone(t, h)
	assert.Equal(t, 1, calls, "no delivery after close")
}

func TestContextCancelClosesHandle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	m := testManager(d)
	ctx, cancel := context.WithCancel(context.Background())
	h := m.Open(ctx, testSub, nil)
	sock := d.accept(t)
	sock.next(t)

	cancel()
	waitDone(t, h)
	assert.True(t, sock.isClosed())
}

func TestShutdownStopsAllHandles(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newFakeDialer()
	m := testManager(d)
	a := m.Open(context.Background(), testSub, nil)
	b := m.Open(context.Background(), Subscription{ScopeID: "job-2", Selection: SelectPipelines}, nil)
	d.accept(t)
	d.accept(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	waitDone(t, a)
	waitDone(t, b)
}

func TestSelectionsRenderAsSubscriptionQuery(t *testing.T) {
	msg, err := encodeStart("x", Subscription{Selection: "  pipelineLogs\n"})
	require.NoError(t, err)
	var f struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Payload struct {
			Query string `json:"query"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &f))
	assert.Equal(t, "x", f.ID)
	assert.Equal(t, "start", f.Type)
	assert.Equal(t, "subscription { pipelineLogs }", f.Payload.Query)
}
