// Package quote streams real time ticks from the quote server.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/gregtusar/thstrader/pkg/stockcode"
	"github.com/sirupsen/logrus"
)

const MessageTypeTicks = "ticks"

type MessageHandler func(message json.RawMessage) error

type WSMessage struct {
	Type string `json:"type"`
}

type SubscribeMessage struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

type TicksMessage struct {
	Type  string        `json:"type"`
	Ticks []models.Tick `json:"ticks"`
}

type WebSocketClient struct {
	url            string
	codes          []string
	conn           *websocket.Conn
	mu             sync.Mutex
	connected      bool
	handlers       map[string]MessageHandler
	reconnectDelay time.Duration
	maxReconnects  int
	pingInterval   time.Duration
	logger         *logrus.Logger
}

type Option func(*WebSocketClient)

// WithReconnect sets the pause between reconnects and how many consecutive
// failures are tolerated. A negative max retries forever.
func WithReconnect(delay time.Duration, max int) Option {
	return func(ws *WebSocketClient) {
		ws.reconnectDelay = delay
		ws.maxReconnects = max
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(ws *WebSocketClient) {
		ws.pingInterval = d
	}
}

func NewWebSocketClient(url string, logger *logrus.Logger, opts ...Option) *WebSocketClient {
	ws := &WebSocketClient{
		url:            url,
		handlers:       make(map[string]MessageHandler),
		reconnectDelay: 5 * time.Second,
		maxReconnects:  10,
		pingInterval:   30 * time.Second,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

func (ws *WebSocketClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.connected {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	ws.conn = conn
	ws.connected = true
	return nil
}

// Subscribe replaces the subscribed codes. When connected the new list is
// sent right away, otherwise it goes out on the next connect.
func (ws *WebSocketClient) Subscribe(codes []string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.codes = append([]string(nil), codes...)
	if !ws.connected {
		return nil
	}
	return ws.sendSubscribe()
}

func (ws *WebSocketClient) sendSubscribe() error {
	sub := SubscribeMessage{
		Type:  "subscribe",
		Codes: ws.codes,
	}
	if err := ws.conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func (ws *WebSocketClient) RegisterHandler(messageType string, handler MessageHandler) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.handlers[messageType] = handler
}

// Run keeps the feed connected until ctx is done or reconnects run out.
func (ws *WebSocketClient) Run(ctx context.Context) error {
	failures := 0
	for {
		established, err := ws.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			failures = 0
		}
		failures++

		if ws.maxReconnects >= 0 && failures > ws.maxReconnects {
			return fmt.Errorf("quote feed gave up after %d reconnects: %w", ws.maxReconnects, err)
		}

		ws.logger.WithError(err).WithField("attempt", failures).Warn("Quote feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ws.reconnectDelay):
		}
	}
}

func (ws *WebSocketClient) session(ctx context.Context) (bool, error) {
	if err := ws.Connect(ctx); err != nil {
		return false, err
	}
	defer ws.handleDisconnect()

	ws.mu.Lock()
	conn := ws.conn
	err := ws.sendSubscribe()
	ws.mu.Unlock()
	if err != nil {
		return false, err
	}

	ws.logger.WithField("url", ws.url).Info("Quote feed connected")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go ws.keepAlive(sessCtx)
	go func() {
		// unblocks ReadMessage on shutdown
		<-sessCtx.Done()
		conn.Close()
	}()

	return true, ws.readLoop(conn)
}

func (ws *WebSocketClient) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read websocket message: %w", err)
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.logger.WithError(err).Warn("Malformed quote message")
			continue
		}

		ws.mu.Lock()
		handler, ok := ws.handlers[msg.Type]
		ws.mu.Unlock()

		if ok {
			if err := handler(data); err != nil {
				ws.logger.WithError(err).WithField("type", msg.Type).Error("Handler error")
			}
		}
	}
}

func (ws *WebSocketClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(ws.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.mu.Lock()
			if ws.connected {
				if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					ws.logger.WithError(err).Error("Failed to send ping")
				}
			}
			ws.mu.Unlock()
		}
	}
}

func (ws *WebSocketClient) handleDisconnect() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.connected = false
	if ws.conn != nil {
		ws.conn.Close()
		ws.conn = nil
	}
}

// TicksHandler decodes tick batches and hands them over keyed by platform code.
func TicksHandler(onTicks func(map[string]models.Tick)) MessageHandler {
	return func(message json.RawMessage) error {
		var msg TicksMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return fmt.Errorf("decode ticks: %w", err)
		}

		ticks := make(map[string]models.Tick, len(msg.Ticks))
		for _, tick := range msg.Ticks {
			tick.Code = stockcode.ToPlatform(tick.Code)
			ticks[tick.Code] = tick
		}
		onTicks(ticks)
		return nil
	}
}
