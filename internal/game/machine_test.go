package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tridice/internal/dice"
	"github.com/lox/tridice/internal/randutil"
	"github.com/lox/tridice/internal/scoring"
)

func newTestState(t *testing.T, names ...string) *State {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TotalRounds = 3
	s := NewState("ABCDEF", cfg, time.Unix(1700000000, 0))
	for i, name := range names {
		p := &Player{
			ID:        name,
			Name:      name,
			Connected: true,
			Ready:     true,
		}
		if i == 0 {
			p.Host = true
			s.HostID = p.ID
		}
		s.Players = append(s.Players, p)
	}
	return s
}

func newTestMachine(seed int64) *Machine {
	return NewMachine(randutil.New(seed))
}

func mustApply(t *testing.T, m *Machine, s *State, ev Event) []Effect {
	t.Helper()
	fx, err := m.Apply(s, ev)
	require.NoError(t, err, "applying %s in phase %s", EventName(ev), s.Phase)
	return fx
}

// playSet walks every player through select + confirm of their first three
// unspent dice, leaving the room in SET_REVEAL.
func playSet(t *testing.T, m *Machine, s *State) {
	t.Helper()
	for s.Phase == PhaseSetSelection {
		holder := s.CurrentTurnPlayerID()
		require.NotEmpty(t, holder)
		p := s.Player(holder)
		ids := dice.FirstUnspent(p.Dice, dice.DicePerHand)
		mustApply(t, m, s, SelectDice{PlayerID: holder, DieIDs: ids})
		mustApply(t, m, s, ConfirmSelection{PlayerID: holder})
	}
	require.Equal(t, PhaseSetReveal, s.Phase)
}

func hasEffect(fx []Effect, name string) bool {
	for _, f := range fx {
		if f.effectName() == name {
			return true
		}
	}
	return false
}

func TestStartGameRollsAndDeals(t *testing.T) {
	m := newTestMachine(1)
	s := newTestState(t, "alice", "bob", "carol")

	fx := mustApply(t, m, s, StartGame{PlayerID: "alice"})

	require.Equal(t, PhasePrediction, s.Phase)
	require.Len(t, s.InitialRolls, 3)
	require.Len(t, s.TurnOrder, 3)
	assert.Equal(t, s.TurnOrder, s.InitialOrder)
	assert.True(t, hasEffect(fx, "initial_rolled"))

	for _, p := range s.Players {
		require.Len(t, p.Dice, dice.DicePerRound)
		white := 0
		for _, d := range p.Dice {
			require.GreaterOrEqual(t, d.Value, 1)
			require.LessOrEqual(t, d.Value, 6)
			if d.Color == dice.White {
				white++
				assert.True(t, d.Revealed)
			} else {
				assert.False(t, d.Revealed)
			}
		}
		assert.Equal(t, dice.WhitePerRound, white)
	}

	// Turn order follows the 2d6 totals, lowest first.
	want := scoring.InitialTurnOrder(s.InitialRolls)
	assert.Equal(t, want, s.TurnOrder)
}

func TestStartGameRejections(t *testing.T) {
	m := newTestMachine(1)

	s := newTestState(t, "alice", "bob")
	_, err := m.Apply(s, StartGame{PlayerID: "bob"})
	assert.Equal(t, ErrNotHost, err)

	s.Player("bob").Ready = false
	_, err = m.Apply(s, StartGame{PlayerID: "alice"})
	assert.Equal(t, ErrCannotStart, err)

	s.Player("bob").Ready = true
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	_, err = m.Apply(s, StartGame{PlayerID: "alice"})
	assert.Equal(t, ErrGameInProgress, err)
}

func TestSubmitPredictionRejections(t *testing.T) {
	m := newTestMachine(2)
	s := newTestState(t, "alice", "bob")

	_, err := m.Apply(s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionZero})
	assert.Equal(t, ErrInvalidPhase, err)

	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	require.Equal(t, PhasePrediction, s.Phase)

	_, err = m.Apply(s, SubmitPrediction{PlayerID: "mallory", Type: scoring.PredictionZero})
	assert.Equal(t, ErrPlayerNotFound, err)

	// MIN does not exist at two players.
	_, err = m.Apply(s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMin})
	assert.Equal(t, ErrInvalidPrediction, err)

	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMore})
	_, err = m.Apply(s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMax})
	assert.Equal(t, ErrPredictionTaken, err)
}

func TestAllPredictionsAdvanceToSelection(t *testing.T) {
	m := newTestMachine(3)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})

	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionZero})
	require.Equal(t, PhasePrediction, s.Phase)

	fx := mustApply(t, m, s, SubmitPrediction{PlayerID: "bob", Type: scoring.PredictionMax})
	require.Equal(t, PhaseSetSelection, s.Phase)
	assert.True(t, hasEffect(fx, "all_predictions_in"))
	assert.True(t, hasEffect(fx, "turn_started"))
	assert.Equal(t, 0, s.CurrentTurnIndex)
}

func TestPredictionTimeoutFillsMissing(t *testing.T) {
	m := newTestMachine(4)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})

	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionZero})
	fx := mustApply(t, m, s, PredictionTimeout{})

	require.Equal(t, PhaseSetSelection, s.Phase)
	auto := 0
	for _, f := range fx {
		if ps, ok := f.(PredictionStored); ok && ps.Auto {
			auto++
		}
	}
	assert.Equal(t, 2, auto)
	for _, p := range s.Players {
		assert.True(t, scoring.ValidPrediction(p.Prediction, len(s.Players)),
			"player %s got %q", p.ID, p.Prediction)
	}

	// A late fire after the phase moved on is swallowed.
	fx, err := m.Apply(s, PredictionTimeout{})
	require.NoError(t, err)
	assert.Empty(t, fx)
}

func TestSelectDiceRejections(t *testing.T) {
	m := newTestMachine(5)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMore})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "bob", Type: scoring.PredictionMore})
	require.Equal(t, PhaseSetSelection, s.Phase)

	holder := s.CurrentTurnPlayerID()
	other := "alice"
	if holder == "alice" {
		other = "bob"
	}
	holderIDs := dice.FirstUnspent(s.Player(holder).Dice, 3)
	otherIDs := dice.FirstUnspent(s.Player(other).Dice, 3)

	_, err := m.Apply(s, SelectDice{PlayerID: other, DieIDs: otherIDs})
	assert.Equal(t, ErrNotYourTurn, err)

	_, err = m.Apply(s, SelectDice{PlayerID: holder, DieIDs: holderIDs[:2]})
	assert.Equal(t, ErrInvalidSelection, err)

	dup := []string{holderIDs[0], holderIDs[0], holderIDs[1]}
	_, err = m.Apply(s, SelectDice{PlayerID: holder, DieIDs: dup})
	assert.Equal(t, ErrInvalidSelection, err)

	stolen := []string{holderIDs[0], holderIDs[1], otherIDs[0]}
	_, err = m.Apply(s, SelectDice{PlayerID: holder, DieIDs: stolen})
	assert.Equal(t, ErrInvalidDie, err)
}

func TestSpentDiceCannotBeReselected(t *testing.T) {
	m := newTestMachine(6)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMore})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "bob", Type: scoring.PredictionMore})

	first := s.CurrentTurnPlayerID()
	spentIDs := dice.FirstUnspent(s.Player(first).Dice, 3)
	playSet(t, m, s)
	mustApply(t, m, s, NextSet{})
	require.Equal(t, PhaseSetSelection, s.Phase)
	require.Equal(t, 2, s.CurrentSet)

	// Turn order is unchanged within a round, so first holds the turn again.
	require.Equal(t, first, s.CurrentTurnPlayerID())
	_, err := m.Apply(s, SelectDice{PlayerID: first, DieIDs: spentIDs})
	assert.Equal(t, ErrDieAlreadySpent, err)
}

func TestConfirmSelectionRejections(t *testing.T) {
	m := newTestMachine(7)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMore})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "bob", Type: scoring.PredictionMore})

	holder := s.CurrentTurnPlayerID()
	other := "alice"
	if holder == "alice" {
		other = "bob"
	}

	_, err := m.Apply(s, ConfirmSelection{PlayerID: holder})
	assert.Equal(t, ErrNoSelection, err)

	ids := dice.FirstUnspent(s.Player(holder).Dice, 3)
	mustApply(t, m, s, SelectDice{PlayerID: holder, DieIDs: ids})
	mustApply(t, m, s, ConfirmSelection{PlayerID: holder})
	_, err = m.Apply(s, ConfirmSelection{PlayerID: holder})
	assert.Equal(t, ErrAlreadyConfirmed, err)

	// Out-of-turn confirmation is allowed but does not move the pointer.
	require.Equal(t, other, s.CurrentTurnPlayerID())
}

func TestTurnTimeoutAutoSelectsFirstThreeUnspent(t *testing.T) {
	m := newTestMachine(8)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, PredictionTimeout{})
	require.Equal(t, PhaseSetSelection, s.Phase)

	holder := s.CurrentTurnPlayerID()
	want := dice.FirstUnspent(s.Player(holder).Dice, 3)

	fx := mustApply(t, m, s, TurnTimeout{})

	sel := s.Pending[holder]
	require.NotNil(t, sel)
	assert.True(t, sel.Confirmed)
	assert.Equal(t, want, sel.DieIDs)
	assert.Equal(t, 1, s.CurrentTurnIndex)

	var sawSelect, sawConfirm bool
	for _, f := range fx {
		switch e := f.(type) {
		case DiceSelected:
			sawSelect = e.Auto
		case SelectionConfirmed:
			sawConfirm = e.Auto
		}
	}
	assert.True(t, sawSelect, "expected auto dice_selected")
	assert.True(t, sawConfirm, "expected auto selection_confirmed")

	// Timeout in any other phase is ignored.
	mustApply(t, m, s, TurnTimeout{})
	mustApply(t, m, s, TurnTimeout{})
	require.Equal(t, PhaseSetReveal, s.Phase)
	fx, err := m.Apply(s, TurnTimeout{})
	require.NoError(t, err)
	assert.Empty(t, fx)
}

func TestSetRevealScoresAndMarksDice(t *testing.T) {
	m := newTestMachine(9)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionMore})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "bob", Type: scoring.PredictionMore})
	playSet(t, m, s)

	require.Len(t, s.SetResults, 2)

	// Two players split 6 placement points per set, however the tie falls.
	total := 0.0
	for _, r := range s.SetResults {
		total += r.Points
		require.Len(t, r.Values, 3)
		p := s.Player(r.PlayerID)
		assert.Equal(t, r.Points, p.Set1Score)
		assert.Equal(t, r.Points, p.RoundScore)
		for _, id := range r.DieIDs {
			d := p.Dice[dice.Find(p.Dice, id)]
			assert.True(t, d.Spent, "die %s should be spent", id)
			assert.True(t, d.Revealed, "die %s should be revealed", id)
		}
	}
	assert.Equal(t, 6.0, total)
}

func TestRoundSummaryAppliesPredictionBonus(t *testing.T) {
	m := newTestMachine(10)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "alice", Type: scoring.PredictionZero})
	mustApply(t, m, s, SubmitPrediction{PlayerID: "bob", Type: scoring.PredictionMax})

	playSet(t, m, s)
	mustApply(t, m, s, NextSet{})
	playSet(t, m, s)
	fx := mustApply(t, m, s, NextSet{})

	require.Equal(t, PhaseRoundSummary, s.Phase)
	require.Len(t, s.RoundHistory, 1)
	assert.True(t, hasEffect(fx, "round_completed"))

	result := s.RoundHistory[0]
	require.Len(t, result.Set1, 2)
	require.Len(t, result.Set2, 2)
	require.Len(t, result.Predictions, 2)

	for _, o := range result.Predictions {
		p := s.Player(o.PlayerID)
		assert.Equal(t, p.Set1Score+p.Set2Score, o.RoundTotal)
		want := scoring.PredictionBonus(o.Prediction, o.RoundTotal, 2)
		assert.Equal(t, want, o.Bonus)
		assert.Equal(t, p.RoundScore+o.Bonus, p.CumulativeScore)
	}
}

func TestNextRoundRerollsAndReordersTurns(t *testing.T) {
	m := newTestMachine(11)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, PredictionTimeout{})
	playSet(t, m, s)
	mustApply(t, m, s, NextSet{})
	playSet(t, m, s)
	mustApply(t, m, s, NextSet{})
	require.Equal(t, PhaseRoundSummary, s.Phase)

	oldDice := map[string]string{}
	for _, p := range s.Players {
		oldDice[p.ID] = p.Dice[0].ID
	}

	mustApply(t, m, s, NextRound{})

	require.Equal(t, PhasePrediction, s.Phase)
	assert.Equal(t, 2, s.CurrentRound)
	assert.Equal(t, 1, s.CurrentSet)

	standings := make([]scoring.Standing, 0, len(s.Players))
	for _, p := range s.Players {
		assert.NotEqual(t, oldDice[p.ID], p.Dice[0].ID, "dice should be rerolled")
		assert.Equal(t, scoring.PredictionNone, p.Prediction)
		assert.Zero(t, p.Set1Score)
		assert.Zero(t, p.Set2Score)
		assert.Zero(t, p.RoundScore)
		standings = append(standings, scoring.Standing{PlayerID: p.ID, Cumulative: p.CumulativeScore})
	}
	assert.Equal(t, scoring.NextRoundTurnOrder(standings, s.InitialOrder), s.TurnOrder)
}

func TestFullGameReachesGameOver(t *testing.T) {
	m := newTestMachine(12)
	s := newTestState(t, "alice", "bob", "carol", "dana")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})

	for round := 1; round <= s.Config.TotalRounds; round++ {
		require.Equal(t, PhasePrediction, s.Phase)
		require.Equal(t, round, s.CurrentRound)
		mustApply(t, m, s, PredictionTimeout{})

		playSet(t, m, s)
		mustApply(t, m, s, NextSet{})
		playSet(t, m, s)
		mustApply(t, m, s, NextSet{})
		require.Equal(t, PhaseRoundSummary, s.Phase)

		if round < s.Config.TotalRounds {
			mustApply(t, m, s, NextRound{})
		}
	}

	fx := mustApply(t, m, s, NextRound{})
	require.Equal(t, PhaseGameOver, s.Phase)
	require.Len(t, s.RoundHistory, s.Config.TotalRounds)
	assert.True(t, hasEffect(fx, "game_ended"))

	var standings []FinalStanding
	for _, f := range fx {
		if ge, ok := f.(GameEnded); ok {
			standings = ge.Standings
		}
	}
	require.Len(t, standings, 4)
	for i := 1; i < len(standings); i++ {
		assert.GreaterOrEqual(t, standings[i-1].Score, standings[i].Score)
		if standings[i].Score == standings[i-1].Score {
			assert.Equal(t, standings[i-1].Placement, standings[i].Placement)
		} else {
			assert.Equal(t, i+1, standings[i].Placement)
		}
	}

	_, err := m.Apply(s, NextRound{})
	assert.Equal(t, ErrInvalidPhase, err)
}

func TestSeededGamesReplayIdentically(t *testing.T) {
	run := func(seed int64) []scoring.InitialRoll {
		m := newTestMachine(seed)
		s := newTestState(t, "alice", "bob")
		mustApply(t, m, s, StartGame{PlayerID: "alice"})
		return s.InitialRolls
	}
	assert.Equal(t, run(99), run(99))
	assert.NotEqual(t, run(99), run(100))
}

func TestLeaveMidSelectionHandsTurnToNextPlayer(t *testing.T) {
	m := newTestMachine(14)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, PredictionTimeout{})
	require.Equal(t, PhaseSetSelection, s.Phase)

	holder := s.CurrentTurnPlayerID()
	next := s.TurnOrder[1]

	fx := mustApply(t, m, s, PlayerLeft{PlayerID: holder})

	assert.True(t, hasEffect(fx, "left"))
	assert.True(t, hasEffect(fx, "turn_started"))
	require.Len(t, s.Players, 2)
	require.Len(t, s.TurnOrder, 2)
	assert.NotContains(t, s.TurnOrder, holder)
	assert.Nil(t, s.Pending[holder])
	assert.Equal(t, next, s.CurrentTurnPlayerID())

	// A turn timeout after the departure auto-plays for the new holder
	// instead of dereferencing the departed one.
	mustApply(t, m, s, TurnTimeout{})
	mustApply(t, m, s, TurnTimeout{})
	require.Equal(t, PhaseSetReveal, s.Phase)
	require.Len(t, s.SetResults, 2)
}

func TestLeaveOfEarlierPlayerKeepsTurnPointer(t *testing.T) {
	m := newTestMachine(15)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, PredictionTimeout{})

	first := s.CurrentTurnPlayerID()
	ids := dice.FirstUnspent(s.Player(first).Dice, dice.DicePerHand)
	mustApply(t, m, s, SelectDice{PlayerID: first, DieIDs: ids})
	mustApply(t, m, s, ConfirmSelection{PlayerID: first})
	require.Equal(t, 1, s.CurrentTurnIndex)
	second := s.CurrentTurnPlayerID()

	mustApply(t, m, s, PlayerLeft{PlayerID: first})

	assert.Equal(t, 0, s.CurrentTurnIndex)
	assert.Equal(t, second, s.CurrentTurnPlayerID())
}

func TestLeaveOfLastUnconfirmedPlayerCompletesSet(t *testing.T) {
	m := newTestMachine(16)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	mustApply(t, m, s, PredictionTimeout{})

	// The first two in order select and confirm; the third leaves instead.
	for i := 0; i < 2; i++ {
		holder := s.CurrentTurnPlayerID()
		ids := dice.FirstUnspent(s.Player(holder).Dice, dice.DicePerHand)
		mustApply(t, m, s, SelectDice{PlayerID: holder, DieIDs: ids})
		mustApply(t, m, s, ConfirmSelection{PlayerID: holder})
	}
	last := s.CurrentTurnPlayerID()
	require.NotEmpty(t, last)

	fx := mustApply(t, m, s, PlayerLeft{PlayerID: last})

	require.Equal(t, PhaseSetReveal, s.Phase)
	assert.True(t, hasEffect(fx, "set_revealed"))
	require.Len(t, s.SetResults, 2)
	for _, r := range s.SetResults {
		assert.NotEqual(t, last, r.PlayerID)
	}
}

func TestLeaveReassignsHostMidGame(t *testing.T) {
	m := newTestMachine(17)
	s := newTestState(t, "alice", "bob", "carol")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})
	require.Equal(t, PhasePrediction, s.Phase)

	fx := mustApply(t, m, s, PlayerLeft{PlayerID: "alice"})

	assert.True(t, hasEffect(fx, "host_changed"))
	assert.Equal(t, "bob", s.HostID)
	assert.True(t, s.Player("bob").Host)
	require.Equal(t, PhasePrediction, s.Phase)

	_, err := m.Apply(s, PlayerLeft{PlayerID: "alice"})
	assert.Equal(t, ErrPlayerNotFound, err)
}

func TestLeaveBelowMinimumEndsGame(t *testing.T) {
	m := newTestMachine(18)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})

	fx := mustApply(t, m, s, PlayerLeft{PlayerID: "bob"})

	require.Equal(t, PhaseGameOver, s.Phase)
	assert.True(t, hasEffect(fx, "game_ended"))

	var standings []FinalStanding
	for _, f := range fx {
		if ge, ok := f.(GameEnded); ok {
			standings = ge.Standings
		}
	}
	require.Len(t, standings, 1)
	assert.Equal(t, "alice", standings[0].PlayerID)
	assert.Equal(t, 1, standings[0].Placement)
}

func TestDisconnectReconnect(t *testing.T) {
	m := newTestMachine(13)
	s := newTestState(t, "alice", "bob")
	mustApply(t, m, s, StartGame{PlayerID: "alice"})

	fx := mustApply(t, m, s, PlayerDisconnected{PlayerID: "bob"})
	assert.False(t, s.Player("bob").Connected)
	assert.True(t, hasEffect(fx, "disconnected"))

	fx = mustApply(t, m, s, PlayerReconnected{PlayerID: "bob", SessionID: "sess-2"})
	assert.True(t, s.Player("bob").Connected)
	assert.Equal(t, "sess-2", s.Player("bob").SessionID)
	assert.True(t, hasEffect(fx, "reconnected"))

	_, err := m.Apply(s, PlayerDisconnected{PlayerID: "ghost"})
	assert.Equal(t, ErrPlayerNotFound, err)
}
