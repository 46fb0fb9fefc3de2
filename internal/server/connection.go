package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/tridice/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Connection wraps one WebSocket session. Outbound messages go through a
// buffered channel drained by writePump; a full buffer closes the connection
// rather than blocking a broadcast.
type Connection struct {
	conn   *websocket.Conn
	srv    *Server
	send   chan *protocol.Message
	logger zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex
	sessionID string
	playerID  string
	roomCode  string
}

func newConnection(conn *websocket.Conn, srv *Server, sessionID string, logger zerolog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:      conn,
		srv:       srv,
		send:      make(chan *protocol.Message, 256),
		logger:    logger.With().Str("session", sessionID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		sessionID: sessionID,
	}
}

func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		_ = c.conn.Close()
	})
}

// SessionID returns the opaque handle assigned at upgrade time.
func (c *Connection) SessionID() string {
	return c.sessionID
}

// Identity returns the player and room this session is bound to.
func (c *Connection) Identity() (playerID, roomCode string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID, c.roomCode
}

func (c *Connection) setIdentity(playerID, roomCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.roomCode = roomCode
}

func (c *Connection) clearIdentity() {
	c.setIdentity("", "")
}

// Send queues a message for delivery. Safe from any goroutine.
func (c *Connection) Send(msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug().Interface("reason", r).Msg("send on closed connection")
		}
	}()

	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		c.close()
	}
}

func (c *Connection) sendEvent(event protocol.EventType, data interface{}) {
	msg, err := protocol.NewMessage(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event.String()).Msg("marshaling event")
		return
	}
	c.Send(msg)
}

func (c *Connection) sendError(code, message string) {
	c.sendEvent(protocol.EventRoomError, protocol.RoomErrorData{
		Message: message,
		Code:    code,
	})
}

func (c *Connection) readPump() {
	defer func() {
		c.srv.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage parses the envelope and fans out to the server handlers.
// Malformed payloads get a generic room:error; everything else is validated
// by the registry or the state machine.
func (c *Connection) handleMessage(msg *protocol.Message) {
	c.logger.Debug().Str("event", msg.Event.String()).Msg("received event")

	switch msg.Event {
	case protocol.EventRoomCreate:
		var data protocol.RoomCreateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("INVALID_PAYLOAD", "failed to parse room:create data")
			return
		}
		c.srv.handleRoomCreate(c, data)

	case protocol.EventRoomJoin:
		var data protocol.RoomJoinData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("INVALID_PAYLOAD", "failed to parse room:join data")
			return
		}
		c.srv.handleRoomJoin(c, data)

	case protocol.EventRoomLeave:
		c.srv.handleRoomLeave(c)

	case protocol.EventRoomReconnect:
		var data protocol.RoomReconnectData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Token == "" {
			c.sendEvent(protocol.EventReconnectFailed, protocol.ReconnectFailedData{
				Message: "reconnect token required",
			})
			return
		}
		c.srv.handleReconnect(c, data)

	case protocol.EventGameReady:
		c.srv.handleReady(c, true)

	case protocol.EventGameUnready:
		c.srv.handleReady(c, false)

	case protocol.EventGameUpdateConfig:
		var data protocol.UpdateConfigData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("INVALID_PAYLOAD", "failed to parse game:updateConfig data")
			return
		}
		c.srv.handleUpdateConfig(c, data)

	case protocol.EventGameStart:
		c.srv.handleGameStart(c)

	case protocol.EventPredictionSubmit:
		var data protocol.PredictionSubmitData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("INVALID_PAYLOAD", "failed to parse prediction:submit data")
			return
		}
		c.srv.handlePredictionSubmit(c, data)

	case protocol.EventDiceSelect:
		var data protocol.DiceSelectData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("INVALID_PAYLOAD", "failed to parse dice:select data")
			return
		}
		c.srv.handleDiceSelect(c, data)

	case protocol.EventDiceConfirm:
		c.srv.handleDiceConfirm(c)

	case protocol.EventAcknowledge:
		c.srv.handleAcknowledge(c)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event: "+msg.Event.String())
	}
}
