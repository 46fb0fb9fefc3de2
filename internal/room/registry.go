// Package room manages the lifecycle of rooms outside active play: creation,
// joining, leaving, host reassignment, lobby configuration and readiness, and
// reconnect tokens. All registry mutations happen under one lock so join
// races cannot overfill a room or duplicate a name.
package room

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/tridice/internal/game"
	"github.com/lox/tridice/internal/randutil"
	"github.com/lox/tridice/internal/roomcode"
	"github.com/lox/tridice/internal/store"
)

// ReconnectToken is the persisted record behind a reconnect token.
type ReconnectToken struct {
	Token     string    `json:"token"`
	PlayerID  string    `json:"playerId"`
	RoomCode  string    `json:"roomCode"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Registry holds every live room. Game snapshots and reconnect tokens are
// written through to the store on each mutation so a restart can be survived
// by reconnecting clients.
type Registry struct {
	logger zerolog.Logger
	store  store.Store
	clock  quartz.Clock
	codes  roomcode.RandSource

	mu         sync.Mutex
	rooms      map[string]*game.State
	lastActive map[string]time.Time
	started    map[string]bool
}

// NewRegistry creates an empty registry. codes drives room code generation
// and is injectable for deterministic tests.
func NewRegistry(st store.Store, clock quartz.Clock, codes roomcode.RandSource, logger zerolog.Logger) *Registry {
	return &Registry{
		logger:     logger.With().Str("component", "registry").Logger(),
		store:      st,
		clock:      clock,
		codes:      codes,
		rooms:      make(map[string]*game.State),
		lastActive: make(map[string]time.Time),
		started:    make(map[string]bool),
	}
}

// SetStarted hands ownership of a room's state to the engine actor (or back,
// when a start attempt is rejected). While a room is marked started every
// lobby mutation here returns ErrGameInProgress instead of touching state the
// actor may be writing concurrently.
func (r *Registry) SetStarted(code string, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = roomcode.Normalize(code)
	if started {
		r.started[code] = true
		return
	}
	delete(r.started, code)
}

// CreateResult is what a successful room creation hands back to the host.
type CreateResult struct {
	RoomCode       string
	PlayerID       string
	ReconnectToken string
	State          *game.State
}

// CreateRoom makes a new room with the caller as host.
func (r *Registry) CreateRoom(ctx context.Context, sessionID, playerName string, overrides *game.ConfigUpdate) (*CreateResult, error) {
	name, err := validateName(playerName)
	if err != nil {
		return nil, err
	}
	cfg, err := overrides.Apply(game.DefaultConfig())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code := r.uniqueCodeLocked()
	now := r.clock.Now()
	state := game.NewState(code, cfg, now)

	host := &game.Player{
		ID:        randutil.Hex(8),
		Name:      name,
		SessionID: sessionID,
		Connected: true,
		Host:      true,
	}
	state.Players = append(state.Players, host)
	state.HostID = host.ID

	r.rooms[code] = state
	r.lastActive[code] = now

	token := r.issueToken(ctx, host.ID, code)
	r.persist(ctx, state)

	r.logger.Info().Str("roomCode", code).Str("host", name).Msg("room created")
	return &CreateResult{
		RoomCode:       code,
		PlayerID:       host.ID,
		ReconnectToken: token,
		State:          state,
	}, nil
}

// JoinResult is what a successful join hands back to the joiner.
type JoinResult struct {
	PlayerID       string
	ReconnectToken string
	Player         *game.Player
	State          *game.State
}

// JoinRoom adds a player to a lobby-phase room.
func (r *Registry) JoinRoom(ctx context.Context, code, sessionID, playerName string) (*JoinResult, error) {
	name, err := validateName(playerName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return nil, err
	}
	if r.started[state.RoomCode] {
		return nil, game.ErrGameInProgress
	}
	if len(state.Players) >= state.Config.MaxPlayers {
		return nil, game.ErrRoomFull
	}
	if state.PlayerByName(name) != nil {
		return nil, game.ErrNameTaken
	}

	p := &game.Player{
		ID:        randutil.Hex(8),
		Name:      name,
		SessionID: sessionID,
		Connected: true,
	}
	state.Players = append(state.Players, p)
	r.touchLocked(state.RoomCode)

	token := r.issueToken(ctx, p.ID, state.RoomCode)
	r.persist(ctx, state)

	r.logger.Info().Str("roomCode", state.RoomCode).Str("player", name).Msg("player joined")
	snap := state.Clone()
	return &JoinResult{
		PlayerID:       p.ID,
		ReconnectToken: token,
		Player:         snap.Player(p.ID),
		State:          snap,
	}, nil
}

// LeaveResult describes what happened when a player left.
type LeaveResult struct {
	NewHostID   string
	RoomDeleted bool
	State       *game.State
}

// LeaveRoom removes a player. If the host leaves and others remain, the first
// remaining player becomes host. An emptied room is deleted outright. Started
// rooms are actor-owned; leaving them goes through the engine instead.
func (r *Registry) LeaveRoom(ctx context.Context, code, playerID string) (*LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return nil, err
	}
	if r.started[state.RoomCode] {
		return nil, game.ErrGameInProgress
	}
	idx := -1
	for i, p := range state.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, game.ErrPlayerNotFound
	}

	wasHost := state.Players[idx].ID == state.HostID
	state.Players = append(state.Players[:idx], state.Players[idx+1:]...)

	if len(state.Players) == 0 {
		delete(r.rooms, state.RoomCode)
		delete(r.lastActive, state.RoomCode)
		delete(r.started, state.RoomCode)
		if err := r.store.Delete(ctx, store.GameKey(state.RoomCode)); err != nil {
			r.logger.Warn().Err(err).Str("roomCode", state.RoomCode).Msg("deleting room snapshot")
		}
		r.logger.Info().Str("roomCode", state.RoomCode).Msg("room deleted")
		return &LeaveResult{RoomDeleted: true, State: state}, nil
	}

	res := &LeaveResult{State: state}
	if wasHost {
		next := state.Players[0]
		next.Host = true
		state.HostID = next.ID
		res.NewHostID = next.ID
		r.logger.Info().Str("roomCode", state.RoomCode).Str("newHost", next.Name).Msg("host reassigned")
	}

	r.touchLocked(state.RoomCode)
	r.persist(ctx, state)
	res.State = state.Clone()
	return res, nil
}

// UpdateConfig applies host-only, lobby-only config overrides.
func (r *Registry) UpdateConfig(ctx context.Context, code, playerID string, overrides game.ConfigUpdate) (game.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return game.Config{}, err
	}
	if r.started[state.RoomCode] {
		return game.Config{}, game.ErrGameInProgress
	}
	if playerID != state.HostID {
		return game.Config{}, game.ErrNotHost
	}

	cfg, err := overrides.Apply(state.Config)
	if err != nil {
		return game.Config{}, err
	}
	if cfg.MaxPlayers < len(state.Players) {
		return game.Config{}, game.ErrInvalidConfig
	}

	state.Config = cfg
	r.touchLocked(code)
	r.persist(ctx, state)
	return cfg, nil
}

// SetPlayerReady toggles a player's lobby readiness.
func (r *Registry) SetPlayerReady(ctx context.Context, code, playerID string, ready bool) (*game.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return nil, err
	}
	if r.started[state.RoomCode] {
		return nil, game.ErrGameInProgress
	}
	p := state.Player(playerID)
	if p == nil {
		return nil, game.ErrPlayerNotFound
	}

	p.Ready = ready
	r.touchLocked(code)
	r.persist(ctx, state)
	return state.Clone(), nil
}

// CanStartGame reports whether the room could start right now.
func (r *Registry) CanStartGame(code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return false, err
	}
	if r.started[state.RoomCode] {
		return false, game.ErrGameInProgress
	}
	return state.CanStart(), nil
}

// Room returns the live state for a room code.
func (r *Registry) Room(code string) (*game.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomLocked(code)
}

// Touch records activity on a room, deferring the idle sweep.
func (r *Registry) Touch(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; ok {
		r.touchLocked(code)
	}
}

// Persist writes the room's current snapshot through to the store. The
// engine calls this after every applied event.
func (r *Registry) Persist(ctx context.Context, state *game.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persist(ctx, state)
}

// MarkDisconnected flags a player as disconnected without removing them.
// Started rooms are actor-owned; disconnects there go through the engine.
func (r *Registry) MarkDisconnected(ctx context.Context, code, playerID string) (*game.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return nil, err
	}
	if r.started[state.RoomCode] {
		return nil, game.ErrGameInProgress
	}
	p := state.Player(playerID)
	if p == nil {
		return nil, game.ErrPlayerNotFound
	}
	p.Connected = false
	r.persist(ctx, state)
	return state.Clone(), nil
}

// MarkReconnected re-attaches a player to a new session handle. Started rooms
// are actor-owned; reconnects there go through the engine.
func (r *Registry) MarkReconnected(ctx context.Context, code, playerID, sessionID string) (*game.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.roomLocked(code)
	if err != nil {
		return nil, err
	}
	if r.started[state.RoomCode] {
		return nil, game.ErrGameInProgress
	}
	p := state.Player(playerID)
	if p == nil {
		return nil, game.ErrPlayerNotFound
	}
	p.Connected = true
	p.SessionID = sessionID
	r.touchLocked(code)
	r.persist(ctx, state)
	return state.Clone(), nil
}

// LookupReconnect resolves a reconnect token to its record. Expired or
// unknown tokens return store.ErrNotFound.
func (r *Registry) LookupReconnect(ctx context.Context, token string) (*ReconnectToken, error) {
	raw, err := r.store.Get(ctx, store.ReconnectKey(token))
	if err != nil {
		return nil, err
	}
	var rec ReconnectToken
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if r.clock.Now().After(rec.ExpiresAt) {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

// SweepIdle deletes rooms with no activity for maxIdle and returns their
// codes. Finished games sweep on the same schedule.
func (r *Registry) SweepIdle(ctx context.Context, maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-maxIdle)
	var swept []string
	for code, last := range r.lastActive {
		if last.After(cutoff) {
			continue
		}
		delete(r.rooms, code)
		delete(r.lastActive, code)
		delete(r.started, code)
		if err := r.store.Delete(ctx, store.GameKey(code)); err != nil {
			r.logger.Warn().Err(err).Str("roomCode", code).Msg("deleting idle room snapshot")
		}
		swept = append(swept, code)
	}
	if len(swept) > 0 {
		r.logger.Info().Strs("rooms", swept).Msg("swept idle rooms")
	}
	return swept
}

// RoomCount reports how many rooms are live.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) roomLocked(code string) (*game.State, error) {
	state, ok := r.rooms[roomcode.Normalize(code)]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return state, nil
}

func (r *Registry) uniqueCodeLocked() string {
	for {
		code := roomcode.GenerateWithRand(r.codes)
		if _, taken := r.rooms[code]; !taken {
			return code
		}
	}
}

func (r *Registry) touchLocked(code string) {
	r.lastActive[code] = r.clock.Now()
}

func (r *Registry) issueToken(ctx context.Context, playerID, code string) string {
	rec := ReconnectToken{
		Token:     randutil.Hex(16),
		PlayerID:  playerID,
		RoomCode:  code,
		ExpiresAt: r.clock.Now().Add(store.DefaultTTL),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		r.logger.Error().Err(err).Msg("marshaling reconnect token")
		return rec.Token
	}
	if err := r.store.Set(ctx, store.ReconnectKey(rec.Token), raw, store.DefaultTTL); err != nil {
		r.logger.Warn().Err(err).Msg("persisting reconnect token")
	}
	return rec.Token
}

func (r *Registry) persist(ctx context.Context, state *game.State) {
	raw, err := json.Marshal(state)
	if err != nil {
		r.logger.Error().Err(err).Str("roomCode", state.RoomCode).Msg("marshaling game state")
		return
	}
	if err := r.store.Set(ctx, store.GameKey(state.RoomCode), raw, store.DefaultTTL); err != nil {
		r.logger.Warn().Err(err).Str("roomCode", state.RoomCode).Msg("persisting game state")
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 || len(name) > game.MaxPlayerNameLen {
		return "", game.ErrInvalidName
	}
	return name, nil
}
