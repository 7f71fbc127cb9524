package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voicemesh/voicemesh/internal/core"
	"github.com/voicemesh/voicemesh/internal/signal"
)

var ErrBackpressure = errors.New("relay: backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns one room's WebSocket endpoints.
type Controller struct {
	room      *Room
	readLimit int64
	readWait  time.Duration
}

// NewController builds a controller. readWait bounds how long a member may
// stay silent before it is reaped; zero picks a default covering two missed
// keepalive pings.
func NewController(readLimit int64, readWait time.Duration) *Controller {
	if readWait <= 0 {
		readWait = 108 * time.Second
	}
	return &Controller{room: NewRoom(), readLimit: readLimit, readWait: readWait}
}

func (ctl *Controller) Room() *Room { return ctl.room }

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("relay: connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
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

// HandleSignal upgrades the connection, assigns a fresh id for this
// signaling epoch and runs the pumps until the participant drops.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	id := core.PeerID(uuid.NewString())
	conn := &wsConn{conn: ws, send: make(chan []byte, 32)}

	roster := ctl.room.Add(id, conn)
	log.Info().Str("module", "relay").Str("id", string(id)).Int("peers", len(roster)).Msg("participant joined")

	if err := conn.TrySend(signal.Message{Type: signal.MsgWelcome, ID: id, Users: roster}); err != nil {
		log.Error().Err(err).Str("module", "relay").Str("id", string(id)).Msg("send welcome")
	}
	ctl.broadcastExcept(id, signal.Message{Type: signal.MsgUserConnected, ID: id})

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, id, conn)
	cancel()

	ctl.room.Remove(id)
	conn.Close()
	ctl.broadcastExcept(id, signal.Message{Type: signal.MsgUserDisconnected, ID: id})
	log.Info().Str("module", "relay").Str("id", string(id)).Msg("participant left")
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, id core.PeerID, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// any inbound frame, ping included, refreshes the deadline; a
		// silently dead member is reaped instead of lingering in the roster
		if err := c.conn.SetReadDeadline(time.Now().Add(ctl.readWait)); err != nil {
			log.Error().Err(err).Str("module", "relay").Str("id", string(id)).Msg("readPump set deadline")
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "relay").Str("id", string(id)).Msg("readPump done")
			return
		}
		ctl.route(id, data)
	}
}

// route dispatches one inbound frame from sender. Malformed frames are
// logged and dropped.
func (ctl *Controller) route(sender core.PeerID, data []byte) {
	var msg signal.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("id", string(sender)).Msg("malformed frame dropped")
		return
	}

	switch msg.Type {
	case signal.MsgOffer, signal.MsgAnswer, signal.MsgICECandidate:
		ctl.forward(sender, msg)
	case signal.MsgMicStatus:
		msg.ID = sender
		ctl.broadcastExcept(sender, msg)
	case signal.MsgPing:
		if conn, ok := ctl.room.Get(sender); ok {
			_ = conn.TrySend(signal.Message{Type: signal.MsgPong})
		}
	default:
		log.Warn().Str("module", "relay").Str("type", string(msg.Type)).Msg("unknown signal")
	}
}

// forward delivers an addressed negotiation frame to its target, stamping
// the sender. The payload itself stays opaque to the relay.
func (ctl *Controller) forward(sender core.PeerID, msg signal.Message) {
	target := msg.To
	conn, ok := ctl.room.Get(target)
	if !ok {
		log.Debug().Str("module", "relay").Str("to", string(target)).Msg("forward target gone")
		return
	}
	msg.From = sender
	msg.To = ""
	if err := conn.TrySend(msg); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("to", string(target)).Msg("forward")
	}
}

func (ctl *Controller) broadcastExcept(sender core.PeerID, msg signal.Message) {
	for id, conn := range ctl.room.Snapshot() {
		if id == sender {
			continue
		}
		if err := conn.TrySend(msg); err != nil {
			log.Warn().Err(err).Str("module", "relay").Str("id", string(id)).Msg("broadcast")
		}
	}
}
