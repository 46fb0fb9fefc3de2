// Package server is the session gateway: it upgrades WebSocket connections,
// validates and routes inbound events to the room registry and game engine,
// and broadcasts engine effects to room members with per-viewer visibility
// applied.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/tridice/internal/engine"
	"github.com/lox/tridice/internal/game"
	"github.com/lox/tridice/internal/protocol"
	"github.com/lox/tridice/internal/randutil"
	"github.com/lox/tridice/internal/room"
	"github.com/lox/tridice/internal/roomcode"
	"github.com/lox/tridice/internal/store"
)

// Config carries the gateway's runtime settings.
type Config struct {
	Addr        string
	CORSOrigins []string
	Environment string
	Version     string
	IdleTimeout time.Duration
}

// Server is the WebSocket gateway.
type Server struct {
	cfg      Config
	logger   zerolog.Logger
	registry *room.Registry
	engine   *engine.Manager
	clock    quartz.Clock
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.RWMutex
	sessions map[*Connection]bool
	groups   map[string]map[*Connection]bool

	httpSrv *http.Server
}

// New creates the gateway. The engine manager must be constructed with this
// server as its notifier; see cmd/tridice.
func New(cfg Config, registry *room.Registry, clock quartz.Clock, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "gateway").Logger(),
		registry: registry,
		clock:    clock,
		started:  time.Now(),
		sessions: make(map[*Connection]bool),
		groups:   make(map[string]map[*Connection]bool),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetEngine wires the engine manager in after construction. The manager
// needs the server as its notifier, so the two are built in two steps.
func (s *Server) SetEngine(mgr *engine.Manager) {
	s.engine = mgr
}

// Handler returns the HTTP handler serving /ws, /health and /ready.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReadyEndpoint)
	return mux
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// connections and stops every room actor.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	go s.sweepLoop(ctx)

	s.logger.Info().Str("addr", s.cfg.Addr).Str("env", s.cfg.Environment).Msg("gateway listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.sessions))
	for c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}

	if s.engine != nil {
		s.engine.StopAll()
	}
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConnection(ws, s, randutil.Hex(8), s.logger)
	s.mu.Lock()
	s.sessions[c] = true
	total := len(s.sessions)
	s.mu.Unlock()

	s.logger.Debug().Int("sessions", total).Msg("client connected")
	c.start()
}

// unregister handles a dropped connection: the player is marked disconnected
// but stays in their room pending reconnection.
func (s *Server) unregister(c *Connection) {
	s.mu.Lock()
	delete(s.sessions, c)
	total := len(s.sessions)
	s.mu.Unlock()

	playerID, code := c.Identity()
	s.leaveGroup(code, c)
	s.logger.Debug().Int("sessions", total).Msg("client disconnected")

	if playerID == "" || code == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.engine.HasGame(code) {
		if err := s.engine.Dispatch(ctx, code, game.PlayerDisconnected{PlayerID: playerID}); err != nil {
			s.logger.Debug().Err(err).Msg("marking player disconnected")
		}
		return
	}
	_, err := s.registry.MarkDisconnected(ctx, code, playerID)
	if errors.Is(err, game.ErrGameInProgress) {
		// The game started between the HasGame check and the registry call.
		err = s.engine.Dispatch(ctx, code, game.PlayerDisconnected{PlayerID: playerID})
	} else if err == nil {
		s.broadcast(code, protocol.EventPlayerDisconnected, protocol.PlayerDisconnectedData{PlayerID: playerID})
	}
	if err != nil {
		s.logger.Debug().Err(err).Msg("marking player disconnected")
	}
}

// Broadcast group management.

func (s *Server) joinGroup(code string, c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups[code] == nil {
		s.groups[code] = make(map[*Connection]bool)
	}
	s.groups[code][c] = true
}

func (s *Server) leaveGroup(code string, c *Connection) {
	if code == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.groups[code]; g != nil {
		delete(g, c)
		if len(g) == 0 {
			delete(s.groups, code)
		}
	}
}

func (s *Server) groupMembers(code string) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Connection, 0, len(s.groups[code]))
	for c := range s.groups[code] {
		out = append(out, c)
	}
	return out
}

// broadcast sends the same payload to every member of a room.
func (s *Server) broadcast(code string, event protocol.EventType, data interface{}) {
	msg, err := protocol.NewMessage(event, data)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event.String()).Msg("marshaling broadcast")
		return
	}
	for _, c := range s.groupMembers(code) {
		c.Send(msg)
	}
}

// broadcastPerViewer builds an individualized payload for every member.
func (s *Server) broadcastPerViewer(code string, event protocol.EventType, build func(viewerID string) interface{}) {
	for _, c := range s.groupMembers(code) {
		viewerID, _ := c.Identity()
		c.sendEvent(event, build(viewerID))
	}
}

// sendRuleError maps an error onto room:error for the initiating session.
func (s *Server) sendRuleError(c *Connection, err error) {
	var rule *game.RuleError
	if errors.As(err, &rule) {
		c.sendError(rule.Code, rule.Message)
		return
	}
	s.logger.Error().Err(err).Msg("internal error")
	c.sendError("INTERNAL_ERROR", "something went wrong")
}

// Inbound handlers.

func (s *Server) handleRoomCreate(c *Connection, data protocol.RoomCreateData) {
	ctx, cancel := s.opCtx()
	defer cancel()

	res, err := s.registry.CreateRoom(ctx, c.SessionID(), data.PlayerName, data.Config)
	if err != nil {
		s.sendRuleError(c, err)
		return
	}

	c.setIdentity(res.PlayerID, res.RoomCode)
	s.joinGroup(res.RoomCode, c)

	c.sendEvent(protocol.EventRoomCreated, protocol.RoomCreatedData{
		RoomCode:       res.RoomCode,
		PlayerID:       res.PlayerID,
		ReconnectToken: res.ReconnectToken,
		GameState:      sanitizeFor(res.State, res.PlayerID),
	})
}

func (s *Server) handleRoomJoin(c *Connection, data protocol.RoomJoinData) {
	code := roomcode.Normalize(data.RoomCode)
	if roomcode.Validate(code) != nil {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	res, err := s.registry.JoinRoom(ctx, code, c.SessionID(), data.PlayerName)
	if err != nil {
		s.sendRuleError(c, err)
		return
	}

	c.setIdentity(res.PlayerID, code)
	s.joinGroup(code, c)

	c.sendEvent(protocol.EventRoomJoined, protocol.RoomJoinedData{
		RoomCode:       code,
		PlayerID:       res.PlayerID,
		ReconnectToken: res.ReconnectToken,
		GameState:      sanitizeFor(res.State, res.PlayerID),
	})
	s.broadcastPerViewer(code, protocol.EventRoomPlayerJoined, func(viewerID string) interface{} {
		return protocol.PlayerJoinedData{
			Player:    res.Player,
			GameState: sanitizeFor(res.State, viewerID),
		}
	})
}

func (s *Server) handleRoomLeave(c *Connection) {
	playerID, code := c.Identity()
	if playerID == "" || code == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if s.engine.HasGame(code) {
		s.leaveRunningGame(ctx, c, code, playerID)
		return
	}

	res, err := s.registry.LeaveRoom(ctx, code, playerID)
	if errors.Is(err, game.ErrGameInProgress) {
		// The game started between the HasGame check and the registry call.
		s.leaveRunningGame(ctx, c, code, playerID)
		return
	}
	if err != nil {
		s.sendRuleError(c, err)
		return
	}

	s.leaveGroup(code, c)
	c.clearIdentity()

	if res.RoomDeleted {
		s.engine.StopRoom(code)
		return
	}

	s.broadcastPerViewer(code, protocol.EventRoomPlayerLeft, func(viewerID string) interface{} {
		return protocol.PlayerLeftData{
			PlayerID:  playerID,
			GameState: sanitizeFor(res.State, viewerID),
		}
	})
	if res.NewHostID != "" {
		s.broadcast(code, protocol.EventRoomHostChanged, protocol.HostChangedData{HostID: res.NewHostID})
	}
}

// leaveRunningGame routes a mid-game departure through the room's actor so
// the player is pruned from the turn order and acknowledgements atomically
// with everything else happening to the state.
func (s *Server) leaveRunningGame(ctx context.Context, c *Connection, code, playerID string) {
	s.leaveGroup(code, c)
	c.clearIdentity()
	if err := s.engine.Dispatch(ctx, code, game.PlayerLeft{PlayerID: playerID}); err != nil {
		s.sendRuleError(c, err)
	}
}

func (s *Server) handleReconnect(c *Connection, data protocol.RoomReconnectData) {
	ctx, cancel := s.opCtx()
	defer cancel()

	fail := func(msg string) {
		c.sendEvent(protocol.EventReconnectFailed, protocol.ReconnectFailedData{Message: msg})
	}

	rec, err := s.registry.LookupReconnect(ctx, data.Token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail("reconnect token expired or unknown")
		} else {
			fail("reconnect unavailable, try again")
		}
		return
	}

	c.setIdentity(rec.PlayerID, rec.RoomCode)
	s.joinGroup(rec.RoomCode, c)

	if s.engine.HasGame(rec.RoomCode) {
		// The actor applies the reconnect and broadcasts reconnect:success
		// from its own goroutine, so the snapshot the client receives is the
		// post-reconnect state.
		err = s.engine.Dispatch(ctx, rec.RoomCode, game.PlayerReconnected{
			PlayerID:  rec.PlayerID,
			SessionID: c.SessionID(),
		})
	} else {
		var snap *game.State
		snap, err = s.registry.MarkReconnected(ctx, rec.RoomCode, rec.PlayerID, c.SessionID())
		if errors.Is(err, game.ErrGameInProgress) {
			err = s.engine.Dispatch(ctx, rec.RoomCode, game.PlayerReconnected{
				PlayerID:  rec.PlayerID,
				SessionID: c.SessionID(),
			})
		} else if err == nil {
			s.broadcast(rec.RoomCode, protocol.EventPlayerReconnected, protocol.PlayerReconnectedData{
				PlayerID: rec.PlayerID,
			})
			c.sendEvent(protocol.EventReconnectSuccess, protocol.ReconnectSuccessData{
				PlayerID:  rec.PlayerID,
				GameState: sanitizeFor(snap, rec.PlayerID),
			})
		}
	}
	if err != nil {
		s.leaveGroup(rec.RoomCode, c)
		c.clearIdentity()
		if errors.Is(err, game.ErrRoomNotFound) || errors.Is(err, game.ErrPlayerNotFound) {
			fail("room or player no longer exists")
		} else {
			fail("reconnect rejected")
		}
	}
}

func (s *Server) handleReady(c *Connection, ready bool) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	state, err := s.registry.SetPlayerReady(ctx, code, playerID, ready)
	if err != nil {
		s.sendRuleError(c, err)
		return
	}
	s.broadcastPerViewer(code, protocol.EventGameStateUpdate, func(viewerID string) interface{} {
		return protocol.StateUpdateData{GameState: sanitizeFor(state, viewerID)}
	})
}

func (s *Server) handleUpdateConfig(c *Connection, data protocol.UpdateConfigData) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	cfg, err := s.registry.UpdateConfig(ctx, code, playerID, data.Config)
	if err != nil {
		s.sendRuleError(c, err)
		return
	}
	s.broadcast(code, protocol.EventRoomConfigUpdated, protocol.ConfigUpdatedData{Config: cfg})
}

func (s *Server) handleGameStart(c *Connection) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.engine.StartGame(ctx, code, playerID); err != nil {
		s.sendRuleError(c, err)
	}
}

func (s *Server) handlePredictionSubmit(c *Connection, data protocol.PredictionSubmitData) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	err := s.engine.Dispatch(ctx, code, game.SubmitPrediction{PlayerID: playerID, Type: data.Type})
	if err != nil {
		s.sendRuleError(c, err)
	}
}

func (s *Server) handleDiceSelect(c *Connection, data protocol.DiceSelectData) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}
	if len(data.DieIDs) != 3 {
		s.sendRuleError(c, game.ErrInvalidSelection)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	err := s.engine.Dispatch(ctx, code, game.SelectDice{PlayerID: playerID, DieIDs: data.DieIDs})
	if err != nil {
		s.sendRuleError(c, err)
	}
}

func (s *Server) handleDiceConfirm(c *Connection) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.engine.Dispatch(ctx, code, game.ConfirmSelection{PlayerID: playerID}); err != nil {
		s.sendRuleError(c, err)
	}
}

func (s *Server) handleAcknowledge(c *Connection) {
	playerID, code := c.Identity()
	if playerID == "" {
		s.sendRuleError(c, game.ErrRoomNotFound)
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.engine.Acknowledge(ctx, code, playerID); err != nil {
		s.sendRuleError(c, err)
	}
}

func (s *Server) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// sweepLoop deletes idle rooms and tears down their actors.
func (s *Server) sweepLoop(ctx context.Context) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := s.clock.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, code := range s.registry.SweepIdle(ctx, s.cfg.IdleTimeout) {
				s.engine.StopRoom(code)
				for _, c := range s.groupMembers(code) {
					s.leaveGroup(code, c)
					c.clearIdentity()
				}
			}
		}
	}
}

// HTTP endpoints.

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      string    `json:"uptime"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)
	writeJSON(w, healthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Version:     s.cfg.Version,
		Environment: s.cfg.Environment,
	})
}

func (s *Server) handleReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w, r)
	writeJSON(w, map[string]bool{"ready": true})
}

// setCORSHeaders applies the configured origin allow-list to plain HTTP
// responses, mirroring the check the WebSocket upgrader runs.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			return
		}
		if strings.EqualFold(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
