// Package live provides the generic transport a real VenueAdapter plugs
// into: a reconnecting WebSocket client. It intentionally stops short of
// any exchange's concrete wire format (framing, auth, channel naming) —
// those are out of scope for this core — and only owns connect/reconnect/
// heartbeat/read-loop plumbing, handing each raw frame to the caller's
// MessageHandler.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/telemetry"
)

// MessageHandler processes one raw frame off the socket.
type MessageHandler func(message []byte)

// ClientConfig tunes reconnect/heartbeat behavior.
type ClientConfig struct {
	URL           string
	ReconnectWait time.Duration
	PingInterval  time.Duration
	PingWait      time.Duration
	PongWait      time.Duration
}

func (c *ClientConfig) setDefaults() {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingWait <= 0 {
		c.PingWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
}

// Client is a resilient WebSocket client: it reconnects on any read error
// or failed dial, with a fixed backoff, and runs a ping heartbeat while
// connected.
type Client struct {
	cfg     ClientConfig
	handler MessageHandler
	logger  telemetry.Logger

	conn *websocket.Conn
	mu   sync.Mutex

	onConnected func()
}

// NewClient builds a Client. Call Run to start connecting; Run blocks
// until ctx is cancelled.
func NewClient(cfg ClientConfig, handler MessageHandler, logger telemetry.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	return &Client{cfg: cfg, handler: handler, logger: logger}
}

// SetOnConnected registers a callback invoked after every successful
// (re)connect, the natural place for a caller to send subscription frames.
func (c *Client) SetOnConnected(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = cb
}

// Send writes a text frame (typically a JSON-encoded subscribe request).
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("venue/live: websocket not connected")
	}
	return c.conn.WriteJSON(v)
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Error("venue websocket connect failed", "url", c.cfg.URL, "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ReconnectWait):
			}
			continue
		}

		c.mu.Lock()
		onConnected := c.onConnected
		c.mu.Unlock()
		if onConnected != nil {
			onConnected()
		}

		heartbeatCtx, heartbeatCancel := context.WithCancel(ctx)
		go c.heartbeat(heartbeatCtx)

		c.readLoop(ctx)
		heartbeatCancel()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingWait)); err != nil {
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.closeConn()
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if c.handler != nil {
			c.handler(message)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
