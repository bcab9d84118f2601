package subscription

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/websocket"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

// graphqlWSServer acknowledges every connection, answers start with one log
// line, then waits for stop.
func graphqlWSServer(t *testing.T, stops chan<- string) *httptest.Server {
	return httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		var init frame
		if err := websocket.JSON.Receive(ws, &init); err != nil || init.Type != typeConnectionInit {
			return
		}
		if err := websocket.JSON.Send(ws, frame{Type: typeConnectionAck}); err != nil {
			return
		}
		var start frame
		if err := websocket.JSON.Receive(ws, &start); err != nil {
			return
		}
		data := `{"id":"` + start.ID + `","type":"data","payload":{"data":{"pipelineLogs":"{\"stage\":\"rusty-after\",\"line\":\"done\"}"}}}`
		if err := websocket.Message.Send(ws, data); err != nil {
			return
		}
		var stop frame
		if err := websocket.JSON.Receive(ws, &stop); err == nil && stop.Type == typeStop {
			stops <- stop.ID
		}
	}))
}

func TestWebsocketTransport(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stops := make(chan string, 1)
	srv := graphqlWSServer(t, stops)
	defer srv.Close()

	m := NewManager(Config{
		Dialer:    WebsocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"},
		Reconnect: ConstantReconnect(20 * time.Millisecond),
		Logger:    zerolog.Nop(),
	})

	events := make(chan model.PipelineEvent, 1)
	h := m.Open(context.Background(), Subscription{Credential: "tok", ScopeID: "job", Selection: SelectLogs},
		func(_ *Handle, ev model.PipelineEvent) { events <- ev })

	select {
	case ev := <-events:
		require.NotNil(t, ev.Log)
		assert.Equal(t, model.LogRecord{Stage: "after", Line: "done"}, *ev.Log)
	case <-time.After(waitTimeout):
		t.Fatal("no event over websocket")
	}

	id := h.CorrelationID()
	h.Close()
	waitDone(t, h)

	select {
	case got := <-stops:
		assert.Equal(t, id, got)
	case <-time.After(waitTimeout):
		t.Fatal("server saw no stop")
	}
}

func TestWebsocketDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := WebsocketDialer{URL: "ws://127.0.0.1:1/ws"}.Dial(ctx)
	assert.Error(t, err)

	_, err = WebsocketDialer{URL: "::bad"}.Dial(ctx)
	assert.Error(t, err)
}
