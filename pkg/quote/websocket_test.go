package quote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuoteServer(t *testing.T, subs chan<- SubscribeMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub SubscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub

		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteJSON(map[string]any{"type": "heartbeat"})
		conn.WriteJSON(TicksMessage{
			Type: MessageTypeTicks,
			Ticks: []models.Tick{
				{Code: "600000", Name: "浦发银行", Price: 10.8},
				{Code: "000001.SZ", Name: "平安银行", Price: 12.1},
			},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketClientDeliversTicks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	subs := make(chan SubscribeMessage, 1)
	srv := newQuoteServer(t, subs)

	var mu sync.Mutex
	var got map[string]models.Tick

	ws := NewWebSocketClient(wsURL(srv), logger, WithReconnect(10*time.Millisecond, 1))
	require.NoError(t, ws.Subscribe([]string{"600000.SH", "000001.SZ"}))
	ws.RegisterHandler(MessageTypeTicks, TicksHandler(func(ticks map[string]models.Tick) {
		mu.Lock()
		defer mu.Unlock()
		got = ticks
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()

	select {
	case sub := <-subs:
		assert.Equal(t, "subscribe", sub.Type)
		assert.Equal(t, []string{"600000.SH", "000001.SZ"}, sub.Codes)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message")
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 10.8, got["600000.SH"].Price)
	assert.Equal(t, 12.1, got["000001.SZ"].Price)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestWebSocketClientGivesUp(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ws := NewWebSocketClient("ws://127.0.0.1:1/quotes", logger, WithReconnect(time.Millisecond, 2))

	err := ws.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after 2 reconnects")
}

func TestTicksHandlerRejectsBadPayload(t *testing.T) {
	handler := TicksHandler(func(map[string]models.Tick) {
		t.Fatal("should not be called")
	})
	assert.Error(t, handler(json.RawMessage(`{"type":"ticks","ticks":"oops"}`)))
}
