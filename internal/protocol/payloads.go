package protocol

import (
	"github.com/lox/tridice/internal/dice"
	"github.com/lox/tridice/internal/game"
	"github.com/lox/tridice/internal/scoring"
)

// Client to server payloads.

type RoomCreateData struct {
	PlayerName string             `json:"playerName"`
	Config     *game.ConfigUpdate `json:"config,omitempty"`
}

type RoomJoinData struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type RoomReconnectData struct {
	Token string `json:"token"`
}

type UpdateConfigData struct {
	Config game.ConfigUpdate `json:"config"`
}

type PredictionSubmitData struct {
	Type scoring.Prediction `json:"type"`
}

type DiceSelectData struct {
	DieIDs []string `json:"dieIds"`
}

// Server to client payloads. GameState fields carry the per-viewer sanitized
// snapshot built by the gateway.

type RoomCreatedData struct {
	RoomCode       string      `json:"roomCode"`
	PlayerID       string      `json:"playerId"`
	ReconnectToken string      `json:"reconnectToken"`
	GameState      *game.State `json:"gameState"`
}

type RoomJoinedData struct {
	RoomCode       string      `json:"roomCode"`
	PlayerID       string      `json:"playerId"`
	ReconnectToken string      `json:"reconnectToken"`
	GameState      *game.State `json:"gameState"`
}

type PlayerJoinedData struct {
	Player    *game.Player `json:"player"`
	GameState *game.State  `json:"gameState"`
}

type PlayerLeftData struct {
	PlayerID  string      `json:"playerId"`
	GameState *game.State `json:"gameState"`
}

type RoomErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ConfigUpdatedData struct {
	Config game.Config `json:"config"`
}

type HostChangedData struct {
	HostID string `json:"hostId"`
}

type StateUpdateData struct {
	GameState *game.State `json:"gameState"`
}

type PhaseChangeData struct {
	Phase     game.Phase  `json:"phase"`
	GameState *game.State `json:"gameState"`
}

type TurnStartData struct {
	PlayerID      string `json:"playerId"`
	TimeRemaining int    `json:"timeRemaining"`
}

type TimerTickData struct {
	TimeRemaining int `json:"timeRemaining"`
}

type InitialRollData struct {
	Results   []scoring.InitialRoll `json:"results"`
	TurnOrder []string              `json:"turnOrder"`
}

type PredictionSubmittedData struct {
	PlayerID string `json:"playerId"`
}

type AutoSubmittingData struct {
	Countdown int `json:"countdown"`
}

type DiceSelectedData struct {
	PlayerID    string     `json:"playerId"`
	VisibleDice []dice.Die `json:"visibleDice"`
	HiddenCount int        `json:"hiddenCount"`
}

type DiceConfirmedData struct {
	PlayerID string `json:"playerId"`
}

type SetRevealData struct {
	Results   []game.SetResult `json:"results"`
	GameState *game.State      `json:"gameState"`
}

type RoundCompleteData struct {
	Result    game.RoundResult `json:"result"`
	GameState *game.State      `json:"gameState"`
}

type GameOverData struct {
	FinalStandings []game.FinalStanding `json:"finalStandings"`
}

type AcknowledgedData struct {
	PlayerID          string `json:"playerId"`
	AcknowledgedCount int    `json:"acknowledgedCount"`
	TotalCount        int    `json:"totalCount"`
}

type WaitingForData struct {
	WaitingForPlayerIDs []string `json:"waitingForPlayerIds"`
}

type PlayerDisconnectedData struct {
	PlayerID string `json:"playerId"`
}

type PlayerReconnectedData struct {
	PlayerID string `json:"playerId"`
}

type ReconnectSuccessData struct {
	PlayerID  string      `json:"playerId"`
	GameState *game.State `json:"gameState"`
}

type ReconnectFailedData struct {
	Message string `json:"message"`
}
