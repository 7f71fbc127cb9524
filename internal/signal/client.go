package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("signal: send queue full")
	ErrClosed       = errors.New("signal: connection closed")
)

const writeTimeout = 5 * time.Second

// Client is the duplex pipe to the relay. A single reader goroutine delivers
// inbound frames to the handler in arrival order; writes go through a bounded
// queue drained by a single writer goroutine.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	pingPeriod time.Duration

	mu      sync.RWMutex
	closed  bool
	handler func(Message)
}

// Options tunes the connection. Zero values fall back to defaults.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// Dial connects to the relay's signaling endpoint.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("signal: dial %s: %w", url, err)
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Client{
		conn:       conn,
		send:       make(chan []byte, opts.SendBuffer),
		pingPeriod: opts.PingPeriod,
	}, nil
}

// OnMessage sets the inbound frame handler. Must be set before Run.
func (c *Client) OnMessage(fn func(Message)) {
	c.handler = fn
}

// TrySend marshals v and queues it for delivery. Never blocks.
func (c *Client) TrySend(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("signal: marshal: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run drives the read and write pumps until the connection drops or ctx is
// canceled. It returns the read error that ended the session, nil on clean
// shutdown.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	go c.keepalive(ctx)

	// unblocks the reader when the caller cancels
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("signal: read: %w", err)
		}
		c.dispatch(data)
	}
}

// dispatch parses one inbound frame. Malformed frames are logged and dropped,
// they must never crash the negotiator.
func (c *Client) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("malformed frame dropped")
		return
	}
	if msg.Type == "" {
		log.Warn().Str("module", "signal").Msg("frame without type dropped")
		return
	}
	if c.handler != nil {
		c.handler(msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.TrySend(Message{Type: MsgPing}); err != nil {
				return
			}
		}
	}
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}
