// Package protocol defines the JSON wire format between the Tridice server
// and its clients: a small envelope plus typed payloads for every event.
package protocol

import (
	"encoding/json"
	"time"
)

// EventType names a WebSocket event with type safety.
type EventType string

// Client to server events.
const (
	EventRoomCreate    EventType = "room:create"
	EventRoomJoin      EventType = "room:join"
	EventRoomLeave     EventType = "room:leave"
	EventRoomReconnect EventType = "room:reconnect"

	EventGameReady        EventType = "game:ready"
	EventGameUnready      EventType = "game:unready"
	EventGameUpdateConfig EventType = "game:updateConfig"
	EventGameStart        EventType = "game:start"

	EventPredictionSubmit EventType = "prediction:submit"
	EventDiceSelect       EventType = "dice:select"
	EventDiceConfirm      EventType = "dice:confirm"
	EventAcknowledge      EventType = "game:acknowledgeResults"
)

// Server to client events.
const (
	EventRoomCreated       EventType = "room:created"
	EventRoomJoined        EventType = "room:joined"
	EventRoomPlayerJoined  EventType = "room:playerJoined"
	EventRoomPlayerLeft    EventType = "room:playerLeft"
	EventRoomError         EventType = "room:error"
	EventRoomConfigUpdated EventType = "room:configUpdated"
	EventRoomHostChanged   EventType = "room:hostChanged"

	EventGameStateUpdate EventType = "game:stateUpdate"
	EventGamePhaseChange EventType = "game:phaseChange"
	EventGameTurnStart   EventType = "game:turnStart"
	EventGameTimerTick   EventType = "game:timerTick"
	EventGameInitialRoll EventType = "game:initialRoll"
	EventGameOver        EventType = "game:over"

	EventPredictionSubmitted      EventType = "prediction:submitted"
	EventPredictionAllSubmitted   EventType = "prediction:allSubmitted"
	EventPredictionAutoSubmitting EventType = "prediction:autoSubmitting"

	EventDiceSelected  EventType = "dice:selected"
	EventDiceConfirmed EventType = "dice:confirmed"
	EventSetReveal     EventType = "set:reveal"
	EventRoundComplete EventType = "round:complete"

	EventResultsAcknowledged EventType = "results:acknowledged"
	EventResultsWaitingFor   EventType = "results:waitingFor"

	EventPlayerDisconnected EventType = "player:disconnected"
	EventPlayerReconnected  EventType = "player:reconnected"
	EventReconnectSuccess   EventType = "reconnect:success"
	EventReconnectFailed    EventType = "reconnect:failed"
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	return string(et)
}

// Message is the wire envelope for every event in either direction.
type Message struct {
	Event     EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload in an envelope with the current timestamp.
func NewMessage(event EventType, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{
		Event:     event,
		Data:      raw,
		Timestamp: time.Now(),
	}, nil
}
