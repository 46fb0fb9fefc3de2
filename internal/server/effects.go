package server

import (
	"github.com/lox/tridice/internal/game"
	"github.com/lox/tridice/internal/protocol"
)

// HandleEffects implements engine.Notifier: it maps the machine's effect
// stream onto wire events. Runs on the room's actor goroutine, so effects of
// one event are always broadcast before those of the next.
func (s *Server) HandleEffects(state *game.State, fx []game.Effect) {
	code := state.RoomCode

	for _, f := range fx {
		switch e := f.(type) {
		case game.PhaseChanged:
			s.broadcastPerViewer(code, protocol.EventGamePhaseChange, func(viewerID string) interface{} {
				return protocol.PhaseChangeData{
					Phase:     e.Phase,
					GameState: sanitizeFor(state, viewerID),
				}
			})

		case game.InitialRolled:
			s.broadcast(code, protocol.EventGameInitialRoll, protocol.InitialRollData{
				Results:   e.Rolls,
				TurnOrder: e.TurnOrder,
			})

		case game.PredictionStored:
			s.broadcast(code, protocol.EventPredictionSubmitted, protocol.PredictionSubmittedData{
				PlayerID: e.PlayerID,
			})

		case game.AllPredictionsIn:
			s.broadcast(code, protocol.EventPredictionAllSubmitted, nil)

		case game.TurnStarted:
			s.broadcast(code, protocol.EventGameTurnStart, protocol.TurnStartData{
				PlayerID:      e.PlayerID,
				TimeRemaining: state.Config.TurnTimerSeconds,
			})

		case game.DiceSelected:
			s.broadcastSelection(code, e)

		case game.SelectionConfirmed:
			s.broadcast(code, protocol.EventDiceConfirmed, protocol.DiceConfirmedData{
				PlayerID: e.PlayerID,
			})

		case game.SetRevealed:
			s.broadcastPerViewer(code, protocol.EventSetReveal, func(viewerID string) interface{} {
				return protocol.SetRevealData{
					Results:   e.Results,
					GameState: sanitizeFor(state, viewerID),
				}
			})

		case game.RoundCompleted:
			s.broadcastPerViewer(code, protocol.EventRoundComplete, func(viewerID string) interface{} {
				return protocol.RoundCompleteData{
					Result:    e.Result,
					GameState: sanitizeFor(state, viewerID),
				}
			})

		case game.GameEnded:
			s.broadcast(code, protocol.EventGameOver, protocol.GameOverData{
				FinalStandings: e.Standings,
			})

		case game.Disconnected:
			s.broadcast(code, protocol.EventPlayerDisconnected, protocol.PlayerDisconnectedData{
				PlayerID: e.PlayerID,
			})

		case game.Reconnected:
			s.broadcastReconnected(code, state, e.PlayerID)

		case game.Left:
			s.broadcastPerViewer(code, protocol.EventRoomPlayerLeft, func(viewerID string) interface{} {
				return protocol.PlayerLeftData{
					PlayerID:  e.PlayerID,
					GameState: sanitizeFor(state, viewerID),
				}
			})

		case game.HostChanged:
			s.broadcast(code, protocol.EventRoomHostChanged, protocol.HostChangedData{
				HostID: e.PlayerID,
			})
		}
	}
}

// broadcastSelection applies the visibility policy: the selecting player sees
// their full pick, everyone else sees revealed dice plus a hidden count.
func (s *Server) broadcastSelection(code string, e game.DiceSelected) {
	visible, hidden := visibleSelection(e.Selected)
	for _, c := range s.groupMembers(code) {
		viewerID, _ := c.Identity()
		if viewerID == e.PlayerID {
			c.sendEvent(protocol.EventDiceSelected, protocol.DiceSelectedData{
				PlayerID:    e.PlayerID,
				VisibleDice: e.Selected,
			})
			continue
		}
		c.sendEvent(protocol.EventDiceSelected, protocol.DiceSelectedData{
			PlayerID:    e.PlayerID,
			VisibleDice: visible,
			HiddenCount: hidden,
		})
	}
}

// broadcastReconnected tells the room a player is back and hands the
// reconnecting session its own post-reconnect snapshot. Running on the actor
// goroutine keeps the snapshot consistent with the applied event.
func (s *Server) broadcastReconnected(code string, state *game.State, playerID string) {
	for _, c := range s.groupMembers(code) {
		viewerID, _ := c.Identity()
		if viewerID == playerID {
			c.sendEvent(protocol.EventReconnectSuccess, protocol.ReconnectSuccessData{
				PlayerID:  playerID,
				GameState: sanitizeFor(state, playerID),
			})
			continue
		}
		c.sendEvent(protocol.EventPlayerReconnected, protocol.PlayerReconnectedData{
			PlayerID: playerID,
		})
	}
}

// HandleTimerTick implements engine.Notifier.
func (s *Server) HandleTimerTick(roomCode string, remaining int) {
	s.broadcast(roomCode, protocol.EventGameTimerTick, protocol.TimerTickData{
		TimeRemaining: remaining,
	})
}

// HandleAutoSubmitWarning implements engine.Notifier.
func (s *Server) HandleAutoSubmitWarning(roomCode string, countdown int) {
	s.broadcast(roomCode, protocol.EventPredictionAutoSubmitting, protocol.AutoSubmittingData{
		Countdown: countdown,
	})
}

// HandleAckProgress implements engine.Notifier.
func (s *Server) HandleAckProgress(state *game.State, playerID string, acked, total int, waiting []string) {
	s.broadcast(state.RoomCode, protocol.EventResultsAcknowledged, protocol.AcknowledgedData{
		PlayerID:          playerID,
		AcknowledgedCount: acked,
		TotalCount:        total,
	})
	s.broadcast(state.RoomCode, protocol.EventResultsWaitingFor, protocol.WaitingForData{
		WaitingForPlayerIDs: waiting,
	})
}
