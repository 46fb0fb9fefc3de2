// Package engine owns active games. Each started room gets one actor
// goroutine that serializes every event against the state machine, wires the
// room's timers, persists the snapshot after each apply, and hands the
// resulting effects to the gateway for broadcast. The actor also runs the
// results acknowledgement coordinator.
package engine

import (
	"context"
	"errors"
	rand "math/rand/v2"
	"sync"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/tridice/internal/game"
	"github.com/lox/tridice/internal/randutil"
	"github.com/lox/tridice/internal/room"
	"github.com/lox/tridice/internal/timers"
)

// Notifier receives everything the engine wants pushed to clients. The
// gateway implements it. HandleEffects runs on the room's actor goroutine;
// tick callbacks run on timer goroutines.
type Notifier interface {
	HandleEffects(state *game.State, fx []game.Effect)
	HandleTimerTick(roomCode string, remaining int)
	HandleAutoSubmitWarning(roomCode string, countdown int)
	HandleAckProgress(state *game.State, playerID string, acked, total int, waiting []string)
}

// Manager tracks the actor for every room with a running game.
type Manager struct {
	logger   zerolog.Logger
	registry *room.Registry
	clock    quartz.Clock
	notifier Notifier

	mu     sync.Mutex
	seeds  *rand.Rand
	actors map[string]*actor
}

// NewManager creates an engine manager. seeds drives per-room RNGs; seed it
// for deterministic replays.
func NewManager(registry *room.Registry, clock quartz.Clock, notifier Notifier, seeds *rand.Rand, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:   logger.With().Str("component", "engine").Logger(),
		registry: registry,
		clock:    clock,
		notifier: notifier,
		seeds:    seeds,
		actors:   make(map[string]*actor),
	}
}

// HasGame reports whether a room has a running game actor.
func (m *Manager) HasGame(roomCode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.actors[roomCode]
	return ok
}

// StartGame spins up the room's actor (if needed) and applies START_GAME.
// The registry is told first that the room is actor-owned so no lobby
// mutation can race the apply; a rejected start hands ownership back and
// tears the fresh actor down again.
func (m *Manager) StartGame(ctx context.Context, roomCode, playerID string) error {
	state, err := m.registry.Room(roomCode)
	if err != nil {
		return err
	}
	m.registry.SetStarted(state.RoomCode, true)

	m.mu.Lock()
	a, existed := m.actors[roomCode]
	if !existed {
		a = newActor(state, m, randutil.New(m.seeds.Int64()))
		m.actors[roomCode] = a
		go a.run()
	}
	m.mu.Unlock()

	err = a.send(ctx, envelope{event: game.StartGame{PlayerID: playerID}})
	if err != nil && !existed {
		m.StopRoom(roomCode)
		m.registry.SetStarted(state.RoomCode, false)
	}
	return err
}

// Dispatch applies a gameplay event to a running game.
func (m *Manager) Dispatch(ctx context.Context, roomCode string, ev game.Event) error {
	a := m.actor(roomCode)
	if a == nil {
		return game.ErrGameNotFound
	}
	return a.send(ctx, envelope{event: ev})
}

// Acknowledge records a player's results acknowledgement.
func (m *Manager) Acknowledge(ctx context.Context, roomCode, playerID string) error {
	a := m.actor(roomCode)
	if a == nil {
		return game.ErrGameNotFound
	}
	return a.send(ctx, envelope{ack: playerID})
}

// StopRoom tears down a room's actor and timers. Safe to call for rooms
// without one.
func (m *Manager) StopRoom(roomCode string) {
	m.mu.Lock()
	a := m.actors[roomCode]
	delete(m.actors, roomCode)
	m.mu.Unlock()
	if a != nil {
		a.stop()
	}
}

// StopAll tears down every actor. Used on server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	actors := m.actors
	m.actors = make(map[string]*actor)
	m.mu.Unlock()
	for _, a := range actors {
		a.stop()
	}
}

func (m *Manager) actor(roomCode string) *actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actors[roomCode]
}

// envelope is one unit of mailbox work: a machine event, an ack, or a forced
// phase advance from the ack timeout.
type envelope struct {
	event        game.Event
	ack          string
	forceAdvance bool
	reply        chan error
}

type actor struct {
	mgr     *Manager
	logger  zerolog.Logger
	state   *game.State
	machine *game.Machine
	timers  *timers.RoomTimers

	mailbox chan envelope
	quit    chan struct{}
	done    chan struct{}

	// Ack coordinator state, only touched on the actor goroutine.
	acks       map[string]bool
	ackRunning bool
}

func newActor(state *game.State, mgr *Manager, rng *rand.Rand) *actor {
	return &actor{
		mgr:     mgr,
		logger:  mgr.logger.With().Str("roomCode", state.RoomCode).Logger(),
		state:   state,
		machine: game.NewMachine(rng),
		timers:  timers.New(mgr.clock),
		mailbox: make(chan envelope, 32),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		acks:    make(map[string]bool),
	}
}

func (a *actor) run() {
	defer close(a.done)
	defer a.timers.StopAll()
	for {
		select {
		case <-a.quit:
			return
		case env := <-a.mailbox:
			var err error
			switch {
			case env.ack != "":
				err = a.handleAck(env.ack)
			case env.forceAdvance:
				a.forceAdvance()
			default:
				err = a.applyEvent(env.event)
			}
			if env.reply != nil {
				env.reply <- err
			}
		}
	}
}

func (a *actor) stop() {
	close(a.quit)
	<-a.done
}

// send queues work and waits for the actor's verdict.
func (a *actor) send(ctx context.Context, env envelope) error {
	env.reply = make(chan error, 1)
	select {
	case a.mailbox <- env:
	case <-a.quit:
		return game.ErrGameNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-env.reply:
		return err
	case <-a.quit:
		return game.ErrGameNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues work from timer goroutines without waiting for a result.
func (a *actor) post(env envelope) {
	select {
	case a.mailbox <- env:
	case <-a.quit:
	}
}

func (a *actor) applyEvent(ev game.Event) error {
	fx, err := a.machine.Apply(a.state, ev)
	if err != nil {
		var rule *game.RuleError
		if errors.As(err, &rule) {
			a.logger.Debug().Str("event", game.EventName(ev)).Str("code", rule.Code).Msg("event rejected")
		}
		return err
	}
	if len(fx) == 0 {
		return nil
	}

	a.syncTimers(fx)
	a.mgr.registry.Persist(context.Background(), a.state)
	a.mgr.registry.Touch(a.state.RoomCode)
	a.mgr.notifier.HandleEffects(a.state, fx)
	a.recheckAcks()
	return nil
}

// syncTimers starts and stops timers off the effect stream. Timer callbacks
// post back into the mailbox so expiry is serialized like any other event.
func (a *actor) syncTimers(fx []game.Effect) {
	code := a.state.RoomCode
	seconds := a.state.Config.TurnTimerSeconds

	for _, f := range fx {
		switch e := f.(type) {
		case game.PhaseChanged:
			a.resetAcks()
			switch e.Phase {
			case game.PhasePrediction:
				a.timers.StopAll()
				a.timers.StartPrediction(seconds,
					func(remaining int) { a.mgr.notifier.HandleTimerTick(code, remaining) },
					func() { a.mgr.notifier.HandleAutoSubmitWarning(code, int(timers.PredictionGrace.Seconds())) },
					func() { a.post(envelope{event: game.PredictionTimeout{}}) },
				)
			case game.PhaseSetSelection:
				a.timers.StopPrediction()
			case game.PhaseSetReveal, game.PhaseRoundSummary:
				a.timers.StopTurn()
			case game.PhaseGameOver:
				a.timers.StopAll()
			}
		case game.AllPredictionsIn:
			a.timers.StopPrediction()
		case game.TurnStarted:
			a.timers.StartTurn(seconds,
				func(remaining int) { a.mgr.notifier.HandleTimerTick(code, remaining) },
				func() { a.post(envelope{event: game.TurnTimeout{}}) },
			)
		}
	}
}

// handleAck runs the acknowledgement coordinator for SET_REVEAL and
// ROUND_SUMMARY. Duplicate acks are sunk silently; disconnected players never
// block progression.
func (a *actor) handleAck(playerID string) error {
	if !a.state.InResultsPhase() {
		return game.ErrInvalidPhase
	}
	if a.state.Player(playerID) == nil {
		return game.ErrPlayerNotFound
	}
	if a.acks[playerID] {
		return nil
	}

	if !a.ackRunning {
		a.ackRunning = true
		a.timers.StartAck(timers.AckTimeout, func() {
			a.post(envelope{forceAdvance: true})
		})
	}
	a.acks[playerID] = true

	connected := a.state.ConnectedPlayerIDs()
	acked := 0
	waiting := make([]string, 0, len(connected))
	for _, id := range connected {
		if a.acks[id] {
			acked++
		} else {
			waiting = append(waiting, id)
		}
	}
	a.mgr.notifier.HandleAckProgress(a.state, playerID, acked, len(connected), waiting)

	if len(waiting) == 0 {
		a.advancePhase()
	}
	return nil
}

// recheckAcks re-evaluates coordinator completion after events that shrink
// the connected set (a disconnect or departure mid-results). Without it the
// room would sit out the full ack timeout waiting on a player who is gone.
func (a *actor) recheckAcks() {
	if !a.ackRunning || !a.state.InResultsPhase() {
		return
	}
	for _, id := range a.state.ConnectedPlayerIDs() {
		if !a.acks[id] {
			return
		}
	}
	a.advancePhase()
}

// forceAdvance is the ack timeout firing: advance regardless of outstanding
// acks, unless the room already moved on.
func (a *actor) forceAdvance() {
	if !a.state.InResultsPhase() {
		return
	}
	a.logger.Debug().Str("phase", string(a.state.Phase)).Msg("results ack timed out, advancing")
	a.advancePhase()
}

func (a *actor) advancePhase() {
	var ev game.Event
	if a.state.Phase == game.PhaseSetReveal {
		ev = game.NextSet{}
	} else {
		ev = game.NextRound{}
	}
	if err := a.applyEvent(ev); err != nil {
		a.logger.Error().Err(err).Str("event", game.EventName(ev)).Msg("phase advance failed")
	}
}

func (a *actor) resetAcks() {
	if a.ackRunning {
		a.timers.StopAck()
	}
	a.ackRunning = false
	a.acks = make(map[string]bool)
}
