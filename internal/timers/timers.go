// Package timers runs the per-room countdowns: the turn timer, the prediction
// timer with its grace period, and the results acknowledgement timeout. All
// scheduling goes through an injected quartz clock so tests drive time
// explicitly.
package timers

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// PredictionGrace is how long after the visible prediction countdown reaches
// zero before predictions are auto-filled. Gives in-flight submissions a
// moment to land.
const PredictionGrace = 3 * time.Second

// AckTimeout is how long the room waits on results acknowledgements before
// advancing anyway. Counted from the first acknowledgement.
const AckTimeout = 30 * time.Second

// countdown ticks once a second, reporting the remaining seconds, then fires
// expiry, optionally after a grace period. Stop is idempotent; a countdown
// stopped after expiry fired is a no-op.
type countdown struct {
	stop     chan struct{}
	stopOnce sync.Once
	ticker   *quartz.Ticker
}

// Stop halts the ticker synchronously so a replaced countdown never holds a
// mock clock waiting on an abandoned ticker.
func (c *countdown) Stop() {
	c.stopOnce.Do(func() {
		c.ticker.Stop()
		close(c.stop)
	})
}

func startCountdown(clock quartz.Clock, seconds int, grace time.Duration,
	onTick func(remaining int), onImminent func(), onExpire func()) *countdown {

	// The ticker is created here, not in the goroutine, so a mock clock
	// advanced immediately after Start sees it.
	ticker := clock.NewTicker(time.Second)
	c := &countdown{stop: make(chan struct{}), ticker: ticker}

	go func() {
		defer c.Stop()
		remaining := seconds
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
			}
			remaining--
			if remaining > 0 {
				if onTick != nil {
					onTick(remaining)
				}
				continue
			}

			ticker.Stop()
			if grace > 0 {
				timer := clock.NewTimer(grace)
				if onImminent != nil {
					onImminent()
				}
				select {
				case <-c.stop:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			onExpire()
			return
		}
	}()
	return c
}

// RoomTimers holds the timers of one room. Callbacks run on timer goroutines;
// callers are expected to route them back through the room's mailbox.
type RoomTimers struct {
	clock quartz.Clock

	mu         sync.Mutex
	turn       *countdown
	prediction *countdown
	ack        *quartz.Timer
}

// New creates an empty timer set driven by clock.
func New(clock quartz.Clock) *RoomTimers {
	return &RoomTimers{clock: clock}
}

// StartTurn starts the turn countdown, replacing any running one. onTick
// fires each second with the remaining seconds, onExpire once at zero.
func (t *RoomTimers) StartTurn(seconds int, onTick func(remaining int), onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turn != nil {
		t.turn.Stop()
	}
	t.turn = startCountdown(t.clock, seconds, 0, onTick, nil, onExpire)
}

// StopTurn cancels the turn countdown if one is running.
func (t *RoomTimers) StopTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turn != nil {
		t.turn.Stop()
		t.turn = nil
	}
}

// StartPrediction starts the prediction countdown. When the visible countdown
// reaches zero onImminent fires, and onExpire follows after the grace period
// unless the countdown is stopped first.
func (t *RoomTimers) StartPrediction(seconds int, onTick func(remaining int), onImminent, onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prediction != nil {
		t.prediction.Stop()
	}
	t.prediction = startCountdown(t.clock, seconds, PredictionGrace, onTick, onImminent, onExpire)
}

// StopPrediction cancels the prediction countdown if one is running.
func (t *RoomTimers) StopPrediction() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prediction != nil {
		t.prediction.Stop()
		t.prediction = nil
	}
}

// StartAck schedules the acknowledgement timeout. No tick stream, just a
// single expiry.
func (t *RoomTimers) StartAck(d time.Duration, onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ack != nil {
		t.ack.Stop()
	}
	t.ack = t.clock.AfterFunc(d, onExpire)
}

// StopAck cancels the acknowledgement timeout if one is scheduled.
func (t *RoomTimers) StopAck() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ack != nil {
		t.ack.Stop()
		t.ack = nil
	}
}

// StopAll cancels everything. Used on phase changes and room teardown.
func (t *RoomTimers) StopAll() {
	t.StopTurn()
	t.StopPrediction()
	t.StopAck()
}
