package game

import (
	"github.com/lox/tridice/internal/dice"
	"github.com/lox/tridice/internal/scoring"
)

// Event is something that happens to a room: a player action, a timer
// expiry, or an administrative step. Events are applied one at a time by the
// room's owner.
type Event interface {
	eventName() string
}

// StartGame begins the game. Host-only, lobby-only.
type StartGame struct {
	PlayerID string
}

// SubmitPrediction stores a player's round prediction.
type SubmitPrediction struct {
	PlayerID string
	Type     scoring.Prediction
}

// PredictionTimeout auto-assigns a prediction to every player still without
// one. Synthesized by the prediction timer after its grace period.
type PredictionTimeout struct{}

// SelectDice stores the turn-holder's tentative 3-die selection.
type SelectDice struct {
	PlayerID string
	DieIDs   []string
}

// ConfirmSelection locks in a previously selected hand.
type ConfirmSelection struct {
	PlayerID string
}

// TurnTimeout auto-selects and confirms for the current turn-holder.
type TurnTimeout struct{}

// NextSet advances out of SET_REVEAL, either to the second set or to the
// round summary. Driven by the acknowledgement coordinator.
type NextSet struct{}

// NextRound advances out of ROUND_SUMMARY to the next round or game over.
type NextRound struct{}

// PlayerDisconnected marks a player's connection as lost. The player stays
// in the room pending reconnection.
type PlayerDisconnected struct {
	PlayerID string
}

// PlayerReconnected re-attaches a player to a fresh session.
type PlayerReconnected struct {
	PlayerID  string
	SessionID string
}

// PlayerLeft removes a player for good. Mid-game the player is pruned from
// the turn order and pending selections so the remaining players keep
// playing; if too few remain the game ends.
type PlayerLeft struct {
	PlayerID string
}

func (StartGame) eventName() string          { return "START_GAME" }
func (SubmitPrediction) eventName() string   { return "SUBMIT_PREDICTION" }
func (PredictionTimeout) eventName() string  { return "PREDICTION_TIMEOUT" }
func (SelectDice) eventName() string         { return "SELECT_DICE" }
func (ConfirmSelection) eventName() string   { return "CONFIRM_SELECTION" }
func (TurnTimeout) eventName() string        { return "TURN_TIMEOUT" }
func (NextSet) eventName() string            { return "NEXT_SET" }
func (NextRound) eventName() string          { return "NEXT_ROUND" }
func (PlayerDisconnected) eventName() string { return "PLAYER_DISCONNECTED" }
func (PlayerReconnected) eventName() string  { return "PLAYER_RECONNECTED" }
func (PlayerLeft) eventName() string         { return "PLAYER_LEFT" }

// EventName returns the wire-loggable name of an event.
func EventName(ev Event) string {
	return ev.eventName()
}

// Effect is something the engine must do after an event applies: broadcast a
// payload, start or stop a timer. Effects for event N are dispatched before
// any effect of event N+1 on the same room.
type Effect interface {
	effectName() string
}

// PhaseChanged is emitted every time the room enters a new phase.
type PhaseChanged struct {
	Phase Phase
}

// InitialRolled carries the 2d6 turn-order rolls and the computed order.
type InitialRolled struct {
	Rolls     []scoring.InitialRoll
	TurnOrder []string
}

// PredictionStored is emitted when a player's prediction is accepted.
type PredictionStored struct {
	PlayerID string
	Auto     bool
}

// AllPredictionsIn is emitted once every player has a prediction.
type AllPredictionsIn struct{}

// TurnStarted is emitted when the turn-holder changes (including the first
// turn of a set). The engine starts the turn timer off this effect.
type TurnStarted struct {
	PlayerID string
}

// DiceSelected is emitted when a selection is stored. Selected carries the
// chosen dice; the gateway decides per-viewer visibility.
type DiceSelected struct {
	PlayerID string
	Selected []dice.Die
	Auto     bool
}

// SelectionConfirmed is emitted when a selection locks in.
type SelectionConfirmed struct {
	PlayerID string
	Auto     bool
}

// SetRevealed carries the scored results of a finished set.
type SetRevealed struct {
	Set     int
	Results []SetResult
}

// RoundCompleted carries the full result of a finished round.
type RoundCompleted struct {
	Result RoundResult
}

// GameEnded carries the final leaderboard.
type GameEnded struct {
	Standings []FinalStanding
}

// Disconnected mirrors PlayerDisconnected to the room.
type Disconnected struct {
	PlayerID string
}

// Reconnected mirrors PlayerReconnected to the room.
type Reconnected struct {
	PlayerID string
}

// Left mirrors PlayerLeft to the room.
type Left struct {
	PlayerID string
}

// HostChanged is emitted when the departing player was the host and the role
// passed to another player.
type HostChanged struct {
	PlayerID string
}

func (PhaseChanged) effectName() string       { return "phase_changed" }
func (InitialRolled) effectName() string      { return "initial_rolled" }
func (PredictionStored) effectName() string   { return "prediction_stored" }
func (AllPredictionsIn) effectName() string   { return "all_predictions_in" }
func (TurnStarted) effectName() string        { return "turn_started" }
func (DiceSelected) effectName() string       { return "dice_selected" }
func (SelectionConfirmed) effectName() string { return "selection_confirmed" }
func (SetRevealed) effectName() string        { return "set_revealed" }
func (RoundCompleted) effectName() string     { return "round_completed" }
func (GameEnded) effectName() string          { return "game_ended" }
func (Disconnected) effectName() string       { return "disconnected" }
func (Reconnected) effectName() string        { return "reconnected" }
func (Left) effectName() string               { return "left" }
func (HostChanged) effectName() string        { return "host_changed" }
