package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"okx-candle-lab/internal/domain"
)

// DefaultWSEndpoint is the OKX business WebSocket endpoint serving candle
// channels.
const DefaultWSEndpoint = "wss://ws.okx.com:8443/ws/v5/business"

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for keepalive pings. OKX drops
	// connections idle for 30 seconds.
	PingInterval time.Duration
	// ReadTimeout bounds a single read.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns the default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// CandleUpdate is a single streamed candle. Partial updates for the same
// open time arrive repeatedly until Candle.IsClosed is true.
type CandleUpdate struct {
	Instrument string
	Interval   string
	Candle     domain.Candle
}

type wsSubArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsRequest struct {
	Op   string     `json:"op"`
	Args []wsSubArg `json:"args"`
}

type wsMessage struct {
	Event string     `json:"event,omitempty"`
	Code  string     `json:"code,omitempty"`
	Msg   string     `json:"msg,omitempty"`
	Arg   wsSubArg   `json:"arg"`
	Data  [][]string `json:"data,omitempty"`
}

// WSClient streams candle updates over the OKX WebSocket API using
// gorilla/websocket, reconnecting and resubscribing on connection loss.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// subs maps "channel|instId" to the delivery channel.
	subs   map[string]chan CandleUpdate
	subsMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient connects to the endpoint and starts the read and ping loops.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig, logger *log.Logger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[string]chan CandleUpdate),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

func candleChannel(interval domain.Interval) string {
	return "candle" + interval.Bar
}

func subKey(channel, instID string) string {
	return channel + "|" + instID
}

// SubscribeCandles subscribes to the candle channel for an instrument.
// Updates are delivered until Close; a slow consumer blocks delivery
// rather than losing updates.
func (c *WSClient) SubscribeCandles(ctx context.Context, instrument string, interval domain.Interval) (<-chan CandleUpdate, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	channel := candleChannel(interval)
	arg := wsSubArg{Channel: channel, InstID: instrument}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(wsRequest{Op: "subscribe", Args: []wsSubArg{arg}})
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	ch := make(chan CandleUpdate, 1024)
	c.subsMu.Lock()
	c.subs[subKey(channel, instrument)] = ch
	c.subsMu.Unlock()

	return ch, nil
}

// Close closes the connection and all subscription channels. The delivery
// channels stay open until every loop has stopped, so an in-flight send
// never races a close.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for key, ch := range c.subs {
		close(ch)
		delete(c.subs, key)
	}
	c.subsMu.Unlock()
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			// Reconnect in progress; wait for a fresh connection.
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.wg.Add(1)
				go c.reconnect(conn)
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		c.handleMessage(message)
	}
}

func (c *WSClient) handleMessage(message []byte) {
	// OKX answers pings with a literal "pong".
	if string(message) == "pong" {
		return
	}

	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Printf("okx ws: malformed message: %v", err)
		return
	}

	switch msg.Event {
	case "error":
		c.logger.Printf("okx ws: error %s: %s", msg.Code, msg.Msg)
		return
	case "subscribe", "unsubscribe":
		return
	}
	if len(msg.Data) == 0 {
		return
	}

	candles, err := parseKlines(msg.Data)
	if err != nil {
		c.logger.Printf("okx ws: bad candle payload on %s %s: %v", msg.Arg.Channel, msg.Arg.InstID, err)
		return
	}

	c.subsMu.RLock()
	ch := c.subs[subKey(msg.Arg.Channel, msg.Arg.InstID)]
	c.subsMu.RUnlock()
	if ch == nil {
		return
	}

	for _, candle := range candles {
		update := CandleUpdate{
			Instrument: msg.Arg.InstID,
			Interval:   msg.Arg.Channel,
			Candle:     candle,
		}
		select {
		case ch <- update:
		case <-c.done:
			return
		}
	}
}

// reconnect redials with capped exponential backoff until a dial succeeds
// or the client closes, then resubscribes every active channel on the
// fresh connection. The dead connection is torn down first so readLoop
// parks on its nil-conn branch instead of re-reading a broken socket.
func (c *WSClient) reconnect(dead *websocket.Conn) {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	c.connMu.Lock()
	if c.conn == dead && c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	delay := c.config.ReconnectDelay
	for !c.closed.Load() {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.logger.Printf("okx ws: reconnect failed, retrying in %s: %v", delay, err)
			continue
		}
		if c.closed.Load() {
			// Closed while the dial was in flight.
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()
			return
		}
		c.logger.Printf("okx ws: reconnected")
		c.resubscribe()
		return
	}
}

// resubscribe replays every active subscription on the current connection.
func (c *WSClient) resubscribe() {
	c.subsMu.RLock()
	args := make([]wsSubArg, 0, len(c.subs))
	for key := range c.subs {
		for i := 0; i < len(key); i++ {
			if key[i] == '|' {
				args = append(args, wsSubArg{Channel: key[:i], InstID: key[i+1:]})
				break
			}
		}
	}
	c.subsMu.RUnlock()
	if len(args) == 0 {
		return
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(wsRequest{Op: "subscribe", Args: args}); err != nil {
		c.logger.Printf("okx ws: resubscribe failed: %v", err)
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					c.logger.Printf("okx ws: ping failed: %v", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}
