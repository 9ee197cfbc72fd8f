package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tc.com/oracle-feeder/pkg/aggregator"
	"tc.com/oracle-feeder/pkg/logging"
)

// RateStream pushes aggregated rate updates to WebSocket clients. It
// implements the sampler's sink interface, so every sampling pass is
// broadcast as it happens.
type RateStream struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*streamClient]bool

	updates chan []aggregator.ExchangeRate
}

// streamClient is one connected WebSocket client.
type streamClient struct {
	conn            *websocket.Conn
	send            chan []byte
	stream          *RateStream
	subscribedAll   bool
	subscribedPairs map[string]bool
	mu              sync.RWMutex
}

// clientMessage is a message from a client.
type clientMessage struct {
	Type    string   `json:"type"` // "subscribe", "unsubscribe", "ping"
	Symbols []string `json:"symbols"`
}

// rateUpdateMessage is sent to clients.
type rateUpdateMessage struct {
	Type      string       `json:"type"` // "rate_update"
	Timestamp string       `json:"timestamp"`
	Rates     []priceEntry `json:"rates"`
}

// NewRateStream creates a RateStream.
func NewRateStream(logger *logging.Logger) *RateStream {
	return &RateStream{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*streamClient]bool),
		updates: make(chan []aggregator.ExchangeRate, 100),
	}
}

// Run broadcasts queued updates until the context is canceled.
func (s *RateStream) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case rates := <-s.updates:
			s.broadcast(rates)
		}
	}
}

// ApplyRates queues a rate batch for broadcast. It never blocks the
// sampler for long.
func (s *RateStream) ApplyRates(rates []aggregator.ExchangeRate, _ time.Time) {
	select {
	case s.updates <- rates:
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping rate update")
	}
}

// HandleWS upgrades a connection and starts its pumps.
func (s *RateStream) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &streamClient{
		conn:            conn,
		send:            make(chan []byte, 256),
		stream:          s,
		subscribedAll:   true,
		subscribedPairs: make(map[string]bool),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()

	s.logger.Info("WebSocket client connected", "remote", conn.RemoteAddr())
}

func (s *RateStream) unregister(client *streamClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *RateStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *RateStream) broadcast(rates []aggregator.ExchangeRate) {
	if len(rates) == 0 {
		return
	}

	entries := make([]priceEntry, 0, len(rates))
	for _, rate := range rates {
		entries = append(entries, priceEntry{
			Symbol:     rate.Symbol,
			Rate:       rate.Rate.String(),
			Sources:    rate.Sources,
			ComputedAt: rate.ComputedAt.Format(time.RFC3339),
		})
	}

	message := rateUpdateMessage{
		Type:      "rate_update",
		Timestamp: time.Now().Format(time.RFC3339),
		Rates:     entries,
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal rate update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(rates) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.stream.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *streamClient) readPump() {
	defer func() {
		c.stream.unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.stream.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *streamClient) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.stream.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Symbols)
	case "unsubscribe":
		c.unsubscribe(msg.Symbols)
	case "ping":
		c.sendPong()
	default:
		c.stream.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

func (c *streamClient) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.subscribedAll = true
		c.subscribedPairs = make(map[string]bool)
	} else {
		c.subscribedAll = false
		for _, symbol := range symbols {
			c.subscribedPairs[symbol] = true
		}
	}
}

func (c *streamClient) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.subscribedAll = false
		c.subscribedPairs = make(map[string]bool)
	} else {
		for _, symbol := range symbols {
			delete(c.subscribedPairs, symbol)
		}
	}
}

func (c *streamClient) shouldReceive(rates []aggregator.ExchangeRate) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subscribedAll {
		return true
	}

	for _, rate := range rates {
		if c.subscribedPairs[rate.Symbol] {
			return true
		}
	}

	return false
}

func (c *streamClient) sendPong() {
	pong := map[string]string{"type": "pong"}
	data, _ := json.Marshal(pong)
	select {
	case c.send <- data:
	default:
	}
}
