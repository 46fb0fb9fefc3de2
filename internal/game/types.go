// Package game holds the Tridice data model and the per-room state machine.
// Everything in this package is deterministic: dice rolls and auto-prediction
// choices come from an injected RNG, and nothing here does I/O. Timers,
// persistence and broadcasts are driven by the engine actor around it.
package game

import (
	"strings"
	"time"

	"github.com/lox/tridice/internal/dice"
	"github.com/lox/tridice/internal/scoring"
)

// Phase is a stage of the room lifecycle.
type Phase string

const (
	PhaseLobby        Phase = "LOBBY"
	PhaseInitialRoll  Phase = "INITIAL_ROLL"
	PhasePrediction   Phase = "PREDICTION"
	PhaseSetSelection Phase = "SET_SELECTION"
	PhaseSetReveal    Phase = "SET_REVEAL"
	PhaseRoundSummary Phase = "ROUND_SUMMARY"
	PhaseGameOver     Phase = "GAME_OVER"
)

// Config bounds.
const (
	MinPlayers       = 2
	MaxPlayersLimit  = 6
	MinRounds        = 3
	MaxRounds        = 10
	MinTurnTimer     = 15
	MaxTurnTimer     = 60
	MaxPlayerNameLen = 20
)

// Config is the per-room game configuration, adjustable by the host while
// the room is in the lobby.
type Config struct {
	MaxPlayers       int `json:"maxPlayers"`
	TotalRounds      int `json:"totalRounds"`
	TurnTimerSeconds int `json:"turnTimerSeconds"`
}

// DefaultConfig returns the configuration rooms start with.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:       4,
		TotalRounds:      5,
		TurnTimerSeconds: 30,
	}
}

// Validate checks the config against the allowed bounds.
func (c Config) Validate() error {
	if c.MaxPlayers < MinPlayers || c.MaxPlayers > MaxPlayersLimit {
		return ErrInvalidConfig
	}
	if c.TotalRounds < MinRounds || c.TotalRounds > MaxRounds {
		return ErrInvalidConfig
	}
	if c.TurnTimerSeconds < MinTurnTimer || c.TurnTimerSeconds > MaxTurnTimer {
		return ErrInvalidConfig
	}
	return nil
}

// ConfigUpdate is a partial config override; nil fields are left unchanged.
type ConfigUpdate struct {
	MaxPlayers       *int `json:"maxPlayers,omitempty"`
	TotalRounds      *int `json:"totalRounds,omitempty"`
	TurnTimerSeconds *int `json:"turnTimerSeconds,omitempty"`
}

// Apply overlays the update onto c and validates the result.
func (u *ConfigUpdate) Apply(c Config) (Config, error) {
	if u != nil {
		if u.MaxPlayers != nil {
			c.MaxPlayers = *u.MaxPlayers
		}
		if u.TotalRounds != nil {
			c.TotalRounds = *u.TotalRounds
		}
		if u.TurnTimerSeconds != nil {
			c.TurnTimerSeconds = *u.TurnTimerSeconds
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Player is a participant in a room.
type Player struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	SessionID       string             `json:"sessionId"`
	Dice            []dice.Die         `json:"dice"`
	CumulativeScore float64            `json:"cumulativeScore"`
	RoundScore      float64            `json:"roundScore"`
	Set1Score       float64            `json:"set1Score"`
	Set2Score       float64            `json:"set2Score"`
	Prediction      scoring.Prediction `json:"prediction"`
	Connected       bool               `json:"isConnected"`
	Ready           bool               `json:"isReady"`
	Host            bool               `json:"isHost"`
}

// PendingSelection is a player's tentative 3-die pick for the current set.
// Confirmed selections cannot be changed.
type PendingSelection struct {
	DieIDs    []string `json:"dieIds"`
	Confirmed bool     `json:"confirmed"`
}

// SetResult records one player's outcome for a set.
type SetResult struct {
	PlayerID  string                `json:"playerId"`
	Hand      scoring.EvaluatedHand `json:"hand"`
	DieIDs    []string              `json:"dieIds"`
	Values    []int                 `json:"values"`
	Placement int                   `json:"placement"`
	Points    float64               `json:"points"`
}

// PredictionOutcome records how a player's prediction resolved for a round.
type PredictionOutcome struct {
	PlayerID   string             `json:"playerId"`
	Prediction scoring.Prediction `json:"prediction"`
	RoundTotal float64            `json:"roundTotal"`
	Bonus      float64            `json:"bonus"`
}

// RoundResult is the complete record of one finished round.
type RoundResult struct {
	Round       int                 `json:"round"`
	Set1        []SetResult         `json:"set1"`
	Set2        []SetResult         `json:"set2"`
	Predictions []PredictionOutcome `json:"predictions"`
}

// FinalStanding is one row of the end-of-game leaderboard.
type FinalStanding struct {
	Placement int     `json:"placement"`
	PlayerID  string  `json:"playerId"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

// State is the full state of one room. A single actor owns all mutation
// once a game starts; before that the registry mutates it under its lock.
type State struct {
	RoomCode         string                       `json:"roomCode"`
	Phase            Phase                        `json:"phase"`
	Players          []*Player                    `json:"players"`
	Config           Config                       `json:"config"`
	CurrentRound     int                          `json:"currentRound"`
	CurrentSet       int                          `json:"currentSet"`
	TurnOrder        []string                     `json:"turnOrder"`
	CurrentTurnIndex int                          `json:"currentTurnIndex"`
	Pending          map[string]*PendingSelection `json:"pendingSelections"`
	SetResults       []SetResult                  `json:"setResults"`
	Set1Results      []SetResult                  `json:"set1Results"`
	RoundHistory     []RoundResult                `json:"roundHistory"`
	InitialRolls     []scoring.InitialRoll        `json:"initialRolls"`
	InitialOrder     []string                     `json:"initialOrder"`
	HostID           string                       `json:"hostId"`
	CreatedAt        time.Time                    `json:"createdAt"`
}

// NewState creates a lobby-phase room with no players.
func NewState(roomCode string, cfg Config, now time.Time) *State {
	return &State{
		RoomCode:  roomCode,
		Phase:     PhaseLobby,
		Config:    cfg,
		Pending:   make(map[string]*PendingSelection),
		CreatedAt: now,
	}
}

// Clone returns a deep copy of the state, safe to hand to another goroutine
// while the owner keeps mutating the original.
func (s *State) Clone() *State {
	out := *s
	out.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		cp := *p
		cp.Dice = append([]dice.Die(nil), p.Dice...)
		out.Players[i] = &cp
	}
	out.Pending = make(map[string]*PendingSelection, len(s.Pending))
	for id, sel := range s.Pending {
		out.Pending[id] = &PendingSelection{
			DieIDs:    append([]string(nil), sel.DieIDs...),
			Confirmed: sel.Confirmed,
		}
	}
	out.TurnOrder = append([]string(nil), s.TurnOrder...)
	out.InitialOrder = append([]string(nil), s.InitialOrder...)
	out.InitialRolls = append([]scoring.InitialRoll(nil), s.InitialRolls...)
	out.SetResults = cloneSetResults(s.SetResults)
	out.Set1Results = cloneSetResults(s.Set1Results)
	if s.RoundHistory != nil {
		out.RoundHistory = make([]RoundResult, len(s.RoundHistory))
		for i, r := range s.RoundHistory {
			out.RoundHistory[i] = RoundResult{
				Round:       r.Round,
				Set1:        cloneSetResults(r.Set1),
				Set2:        cloneSetResults(r.Set2),
				Predictions: append([]PredictionOutcome(nil), r.Predictions...),
			}
		}
	}
	return &out
}

func cloneSetResults(in []SetResult) []SetResult {
	if in == nil {
		return nil
	}
	out := make([]SetResult, len(in))
	for i, r := range in {
		r.DieIDs = append([]string(nil), r.DieIDs...)
		r.Values = append([]int(nil), r.Values...)
		out[i] = r
	}
	return out
}

// Player returns the player with the given id, or nil.
func (s *State) Player(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByName looks a player up by display name, case-insensitively.
func (s *State) PlayerByName(name string) *Player {
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// CurrentTurnPlayerID returns the id of the current turn-holder, or "" when
// everyone has acted this set.
func (s *State) CurrentTurnPlayerID() string {
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.TurnOrder) {
		return ""
	}
	return s.TurnOrder[s.CurrentTurnIndex]
}

// ConnectedPlayerIDs returns the ids of currently connected players.
func (s *State) ConnectedPlayerIDs() []string {
	out := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Connected {
			out = append(out, p.ID)
		}
	}
	return out
}

// CanStart reports whether the game can begin: enough players and every
// non-host player has readied up.
func (s *State) CanStart() bool {
	if s.Phase != PhaseLobby {
		return false
	}
	if len(s.Players) < MinPlayers {
		return false
	}
	for _, p := range s.Players {
		if p.ID != s.HostID && !p.Ready {
			return false
		}
	}
	return true
}

// InResultsPhase reports whether results acknowledgements are accepted.
func (s *State) InResultsPhase() bool {
	return s.Phase == PhaseSetReveal || s.Phase == PhaseRoundSummary
}
