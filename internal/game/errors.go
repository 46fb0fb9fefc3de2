package game

// RuleError is a named rule violation surfaced to the initiating client as
// room:error{message, code}. Rule errors never mutate state and are never
// broadcast.
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrRoomNotFound      = &RuleError{"ROOM_NOT_FOUND", "room does not exist"}
	ErrGameInProgress    = &RuleError{"GAME_IN_PROGRESS", "game already in progress"}
	ErrRoomFull          = &RuleError{"ROOM_FULL", "room is full"}
	ErrNameTaken         = &RuleError{"NAME_TAKEN", "that name is already taken"}
	ErrPlayerNotFound    = &RuleError{"PLAYER_NOT_FOUND", "player is not in this room"}
	ErrNotHost           = &RuleError{"NOT_HOST", "only the host can do that"}
	ErrCannotStart       = &RuleError{"CANNOT_START", "not all players are ready"}
	ErrGameNotFound      = &RuleError{"GAME_NOT_FOUND", "no running game for this room"}
	ErrInvalidPhase      = &RuleError{"INVALID_PHASE", "action not allowed in the current phase"}
	ErrNotYourTurn       = &RuleError{"NOT_YOUR_TURN", "it is not your turn"}
	ErrInvalidSelection  = &RuleError{"INVALID_SELECTION", "select exactly 3 of your dice"}
	ErrInvalidDie        = &RuleError{"INVALID_DIE", "die does not belong to you"}
	ErrDieAlreadySpent   = &RuleError{"DIE_ALREADY_SPENT", "die was already used this round"}
	ErrNoSelection       = &RuleError{"NO_SELECTION", "no dice selection to confirm"}
	ErrAlreadyConfirmed  = &RuleError{"ALREADY_CONFIRMED", "selection already confirmed"}
	ErrPredictionTaken   = &RuleError{"PREDICTION_ALREADY_SUBMITTED", "prediction already submitted"}
	ErrInvalidPrediction = &RuleError{"INVALID_PREDICTION", "prediction type not available at this player count"}
	ErrInvalidConfig     = &RuleError{"INVALID_CONFIG", "config value out of bounds"}
	ErrInvalidName       = &RuleError{"INVALID_NAME", "player name must be 1-20 characters"}
)
