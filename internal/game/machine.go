package game

import (
	rand "math/rand/v2"
	"sort"

	"github.com/lox/tridice/internal/dice"
	"github.com/lox/tridice/internal/scoring"
)

// Machine applies events to room state and runs the guarded "always"
// transitions to a fixed point. It is deterministic for a given RNG seed and
// event order. Rule violations return a *RuleError and leave the state
// untouched; late timer events for a phase the room already left are
// swallowed without error.
type Machine struct {
	rng    *rand.Rand
	roller *dice.Roller
}

// NewMachine creates a machine that draws all randomness from rng.
func NewMachine(rng *rand.Rand) *Machine {
	return &Machine{
		rng:    rng,
		roller: dice.NewRoller(rng),
	}
}

// Apply runs a single event against the state, then chases the always
// transitions until no guard fires. It returns the effects to dispatch, in
// order.
func (m *Machine) Apply(s *State, ev Event) ([]Effect, error) {
	var fx []Effect
	var err error

	switch e := ev.(type) {
	case StartGame:
		fx, err = m.applyStartGame(s, e)
	case SubmitPrediction:
		fx, err = m.applySubmitPrediction(s, e)
	case PredictionTimeout:
		fx, err = m.applyPredictionTimeout(s)
	case SelectDice:
		fx, err = m.applySelectDice(s, e)
	case ConfirmSelection:
		fx, err = m.applyConfirmSelection(s, e)
	case TurnTimeout:
		fx, err = m.applyTurnTimeout(s)
	case NextSet:
		fx, err = m.applyNextSet(s)
	case NextRound:
		fx, err = m.applyNextRound(s)
	case PlayerDisconnected:
		fx, err = m.applyDisconnect(s, e)
	case PlayerReconnected:
		fx, err = m.applyReconnect(s, e)
	case PlayerLeft:
		fx, err = m.applyPlayerLeft(s, e)
	default:
		return nil, ErrInvalidPhase
	}
	if err != nil {
		return nil, err
	}

	fx = append(fx, m.runAlways(s)...)
	return fx, nil
}

func (m *Machine) applyStartGame(s *State, e StartGame) ([]Effect, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrGameInProgress
	}
	if e.PlayerID != s.HostID {
		return nil, ErrNotHost
	}
	if !s.CanStart() {
		return nil, ErrCannotStart
	}

	s.Phase = PhaseInitialRoll
	s.CurrentRound = 1
	s.CurrentSet = 1
	s.InitialRolls = make([]scoring.InitialRoll, 0, len(s.Players))
	for _, p := range s.Players {
		a, b := m.roller.RollPair()
		s.InitialRolls = append(s.InitialRolls, scoring.InitialRoll{
			PlayerID: p.ID,
			Dice:     [2]int{a, b},
			Total:    a + b,
		})
	}
	return []Effect{PhaseChanged{PhaseInitialRoll}}, nil
}

func (m *Machine) applySubmitPrediction(s *State, e SubmitPrediction) ([]Effect, error) {
	if s.Phase != PhasePrediction {
		return nil, ErrInvalidPhase
	}
	p := s.Player(e.PlayerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if !scoring.ValidPrediction(e.Type, len(s.Players)) {
		return nil, ErrInvalidPrediction
	}
	if p.Prediction != scoring.PredictionNone {
		return nil, ErrPredictionTaken
	}
	p.Prediction = e.Type
	return []Effect{PredictionStored{PlayerID: p.ID}}, nil
}

func (m *Machine) applyPredictionTimeout(s *State) ([]Effect, error) {
	if s.Phase != PhasePrediction {
		// Late timer fire; the room already moved on.
		return nil, nil
	}
	available := scoring.AvailablePredictions(len(s.Players))
	var fx []Effect
	for _, p := range s.Players {
		if p.Prediction != scoring.PredictionNone {
			continue
		}
		p.Prediction = available[m.rng.IntN(len(available))]
		fx = append(fx, PredictionStored{PlayerID: p.ID, Auto: true})
	}
	return fx, nil
}

func (m *Machine) applySelectDice(s *State, e SelectDice) ([]Effect, error) {
	if s.Phase != PhaseSetSelection {
		return nil, ErrInvalidPhase
	}
	p := s.Player(e.PlayerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if e.PlayerID != s.CurrentTurnPlayerID() {
		return nil, ErrNotYourTurn
	}
	if sel := s.Pending[p.ID]; sel != nil && sel.Confirmed {
		return nil, ErrAlreadyConfirmed
	}
	if len(e.DieIDs) != dice.DicePerHand {
		return nil, ErrInvalidSelection
	}

	seen := make(map[string]bool, dice.DicePerHand)
	selected := make([]dice.Die, 0, dice.DicePerHand)
	for _, id := range e.DieIDs {
		if seen[id] {
			return nil, ErrInvalidSelection
		}
		seen[id] = true
		i := dice.Find(p.Dice, id)
		if i < 0 {
			return nil, ErrInvalidDie
		}
		if p.Dice[i].Spent {
			return nil, ErrDieAlreadySpent
		}
		selected = append(selected, p.Dice[i])
	}

	s.Pending[p.ID] = &PendingSelection{DieIDs: append([]string(nil), e.DieIDs...)}
	return []Effect{DiceSelected{PlayerID: p.ID, Selected: selected}}, nil
}

func (m *Machine) applyConfirmSelection(s *State, e ConfirmSelection) ([]Effect, error) {
	if s.Phase != PhaseSetSelection {
		return nil, ErrInvalidPhase
	}
	p := s.Player(e.PlayerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	sel := s.Pending[p.ID]
	if sel == nil || len(sel.DieIDs) != dice.DicePerHand {
		return nil, ErrNoSelection
	}
	if sel.Confirmed {
		return nil, ErrAlreadyConfirmed
	}

	sel.Confirmed = true
	fx := []Effect{SelectionConfirmed{PlayerID: p.ID}}

	// Only a confirmation from the current turn-holder moves the pointer.
	if p.ID == s.CurrentTurnPlayerID() {
		s.CurrentTurnIndex++
		if next := s.CurrentTurnPlayerID(); next != "" {
			fx = append(fx, TurnStarted{PlayerID: next})
		}
	}
	return fx, nil
}

func (m *Machine) applyTurnTimeout(s *State) ([]Effect, error) {
	if s.Phase != PhaseSetSelection {
		return nil, nil
	}
	holder := s.CurrentTurnPlayerID()
	if holder == "" {
		return nil, nil
	}
	p := s.Player(holder)
	if p == nil {
		return nil, nil
	}

	ids := dice.FirstUnspent(p.Dice, dice.DicePerHand)
	selected := make([]dice.Die, 0, len(ids))
	for _, id := range ids {
		selected = append(selected, p.Dice[dice.Find(p.Dice, id)])
	}
	s.Pending[p.ID] = &PendingSelection{DieIDs: ids, Confirmed: true}

	fx := []Effect{
		DiceSelected{PlayerID: p.ID, Selected: selected, Auto: true},
		SelectionConfirmed{PlayerID: p.ID, Auto: true},
	}
	s.CurrentTurnIndex++
	if next := s.CurrentTurnPlayerID(); next != "" {
		fx = append(fx, TurnStarted{PlayerID: next})
	}
	return fx, nil
}

func (m *Machine) applyNextSet(s *State) ([]Effect, error) {
	if s.Phase != PhaseSetReveal {
		return nil, ErrInvalidPhase
	}

	if s.CurrentSet == 1 {
		s.Set1Results = s.SetResults
		s.SetResults = nil
		s.CurrentSet = 2
		s.CurrentTurnIndex = 0
		s.Pending = make(map[string]*PendingSelection)
		s.Phase = PhaseSetSelection
		fx := []Effect{PhaseChanged{PhaseSetSelection}}
		if first := s.CurrentTurnPlayerID(); first != "" {
			fx = append(fx, TurnStarted{PlayerID: first})
		}
		return fx, nil
	}
	return m.enterRoundSummary(s), nil
}

func (m *Machine) enterRoundSummary(s *State) []Effect {
	outcomes := make([]PredictionOutcome, 0, len(s.Players))
	for _, p := range s.Players {
		total := p.Set1Score + p.Set2Score
		bonus := scoring.PredictionBonus(p.Prediction, total, len(s.Players))
		p.CumulativeScore += p.RoundScore + bonus
		outcomes = append(outcomes, PredictionOutcome{
			PlayerID:   p.ID,
			Prediction: p.Prediction,
			RoundTotal: total,
			Bonus:      bonus,
		})
	}

	result := RoundResult{
		Round:       s.CurrentRound,
		Set1:        s.Set1Results,
		Set2:        s.SetResults,
		Predictions: outcomes,
	}
	s.RoundHistory = append(s.RoundHistory, result)
	s.Phase = PhaseRoundSummary

	return []Effect{
		PhaseChanged{PhaseRoundSummary},
		RoundCompleted{Result: result},
	}
}

func (m *Machine) applyNextRound(s *State) ([]Effect, error) {
	if s.Phase != PhaseRoundSummary {
		return nil, ErrInvalidPhase
	}

	if s.CurrentRound >= s.Config.TotalRounds {
		s.Phase = PhaseGameOver
		return []Effect{
			PhaseChanged{PhaseGameOver},
			GameEnded{Standings: m.finalStandings(s)},
		}, nil
	}

	s.CurrentRound++
	s.CurrentSet = 1
	s.CurrentTurnIndex = 0
	s.Pending = make(map[string]*PendingSelection)
	s.SetResults = nil
	s.Set1Results = nil

	standings := make([]scoring.Standing, 0, len(s.Players))
	for _, p := range s.Players {
		p.Dice = m.roller.RollRoundSet(p.ID, s.CurrentRound)
		p.Prediction = scoring.PredictionNone
		p.Set1Score = 0
		p.Set2Score = 0
		p.RoundScore = 0
		standings = append(standings, scoring.Standing{PlayerID: p.ID, Cumulative: p.CumulativeScore})
	}
	s.TurnOrder = scoring.NextRoundTurnOrder(standings, s.InitialOrder)
	s.Phase = PhasePrediction

	return []Effect{PhaseChanged{PhasePrediction}}, nil
}

func (m *Machine) applyDisconnect(s *State, e PlayerDisconnected) ([]Effect, error) {
	p := s.Player(e.PlayerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	p.Connected = false
	return []Effect{Disconnected{PlayerID: p.ID}}, nil
}

func (m *Machine) applyReconnect(s *State, e PlayerReconnected) ([]Effect, error) {
	p := s.Player(e.PlayerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	p.Connected = true
	p.SessionID = e.SessionID
	return []Effect{Reconnected{PlayerID: p.ID}}, nil
}

// applyPlayerLeft removes the player everywhere the room still names them:
// the player list, the turn order and the pending selections. Departure of
// the turn-holder hands the turn to the next player in order.
func (m *Machine) applyPlayerLeft(s *State, e PlayerLeft) ([]Effect, error) {
	idx := -1
	for i, p := range s.Players {
		if p.ID == e.PlayerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	delete(s.Pending, e.PlayerID)

	fx := []Effect{Left{PlayerID: e.PlayerID}}

	for j, id := range s.TurnOrder {
		if id != e.PlayerID {
			continue
		}
		s.TurnOrder = append(s.TurnOrder[:j], s.TurnOrder[j+1:]...)
		switch {
		case j < s.CurrentTurnIndex:
			s.CurrentTurnIndex--
		case j == s.CurrentTurnIndex && s.Phase == PhaseSetSelection:
			if next := s.CurrentTurnPlayerID(); next != "" {
				fx = append(fx, TurnStarted{PlayerID: next})
			}
		}
		break
	}

	if e.PlayerID == s.HostID && len(s.Players) > 0 {
		next := s.Players[0]
		next.Host = true
		s.HostID = next.ID
		fx = append(fx, HostChanged{PlayerID: next.ID})
	}

	if s.Phase != PhaseLobby && s.Phase != PhaseGameOver && len(s.Players) < MinPlayers {
		s.Phase = PhaseGameOver
		fx = append(fx,
			PhaseChanged{PhaseGameOver},
			GameEnded{Standings: m.finalStandings(s)},
		)
	}
	return fx, nil
}

// runAlways chases guard-based transitions until none fires. Each iteration
// handles exactly one transition so entry actions happen in order.
func (m *Machine) runAlways(s *State) []Effect {
	var fx []Effect
	for {
		switch s.Phase {
		case PhaseInitialRoll:
			if len(s.InitialRolls) == len(s.Players) {
				fx = append(fx, m.enterPrediction(s)...)
				continue
			}
		case PhasePrediction:
			if m.allPredicted(s) {
				fx = append(fx, m.enterSetSelection(s)...)
				continue
			}
		case PhaseSetSelection:
			if m.allConfirmed(s) {
				fx = append(fx, m.enterSetReveal(s)...)
				continue
			}
		}
		return fx
	}
}

// enterPrediction computes the initial turn order and deals every player
// their 11 dice for round 1.
func (m *Machine) enterPrediction(s *State) []Effect {
	s.TurnOrder = scoring.InitialTurnOrder(s.InitialRolls)
	s.InitialOrder = append([]string(nil), s.TurnOrder...)
	for _, p := range s.Players {
		p.Dice = m.roller.RollRoundSet(p.ID, s.CurrentRound)
	}
	s.Phase = PhasePrediction

	return []Effect{
		InitialRolled{Rolls: s.InitialRolls, TurnOrder: s.TurnOrder},
		PhaseChanged{PhasePrediction},
	}
}

func (m *Machine) allPredicted(s *State) bool {
	for _, p := range s.Players {
		if p.Prediction == scoring.PredictionNone {
			return false
		}
	}
	return len(s.Players) > 0
}

func (m *Machine) enterSetSelection(s *State) []Effect {
	s.Pending = make(map[string]*PendingSelection)
	s.CurrentTurnIndex = 0
	s.Phase = PhaseSetSelection

	fx := []Effect{
		AllPredictionsIn{},
		PhaseChanged{PhaseSetSelection},
	}
	if first := s.CurrentTurnPlayerID(); first != "" {
		fx = append(fx, TurnStarted{PlayerID: first})
	}
	return fx
}

func (m *Machine) allConfirmed(s *State) bool {
	for _, p := range s.Players {
		sel := s.Pending[p.ID]
		if sel == nil || !sel.Confirmed || len(sel.DieIDs) != dice.DicePerHand {
			return false
		}
	}
	return len(s.Players) > 0
}

// enterSetReveal evaluates every confirmed hand, scores the set, marks the
// selected dice spent and revealed, and credits set scores.
func (m *Machine) enterSetReveal(s *State) []Effect {
	type picked struct {
		dieIDs []string
		values []int
	}
	picks := make(map[string]picked, len(s.Players))
	selections := make([]scoring.Selection, 0, len(s.Players))

	for _, p := range s.Players {
		sel := s.Pending[p.ID]
		values := make([]int, 0, dice.DicePerHand)
		for _, id := range sel.DieIDs {
			i := dice.Find(p.Dice, id)
			p.Dice[i].Spent = true
			p.Dice[i].Revealed = true
			values = append(values, p.Dice[i].Value)
		}
		hand, _ := scoring.Evaluate(values)
		picks[p.ID] = picked{dieIDs: sel.DieIDs, values: values}
		selections = append(selections, scoring.Selection{PlayerID: p.ID, Hand: hand})
	}

	placed, _ := scoring.Score(selections, len(s.Players))
	results := make([]SetResult, 0, len(placed))
	for _, pl := range placed {
		pk := picks[pl.PlayerID]
		results = append(results, SetResult{
			PlayerID:  pl.PlayerID,
			Hand:      pl.Hand,
			DieIDs:    pk.dieIDs,
			Values:    pk.values,
			Placement: pl.Placement,
			Points:    pl.Points,
		})

		p := s.Player(pl.PlayerID)
		if s.CurrentSet == 1 {
			p.Set1Score = pl.Points
		} else {
			p.Set2Score = pl.Points
		}
		p.RoundScore = p.Set1Score + p.Set2Score
	}

	s.SetResults = results
	s.Phase = PhaseSetReveal

	return []Effect{
		PhaseChanged{PhaseSetReveal},
		SetRevealed{Set: s.CurrentSet, Results: results},
	}
}

// finalStandings sorts players by cumulative score descending; exact ties
// share a placement.
func (m *Machine) finalStandings(s *State) []FinalStanding {
	ranked := make([]*Player, len(s.Players))
	copy(ranked, s.Players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CumulativeScore > ranked[j].CumulativeScore
	})

	out := make([]FinalStanding, len(ranked))
	for i, p := range ranked {
		placement := i + 1
		if i > 0 && p.CumulativeScore == ranked[i-1].CumulativeScore {
			placement = out[i-1].Placement
		}
		out[i] = FinalStanding{
			Placement: placement,
			PlayerID:  p.ID,
			Name:      p.Name,
			Score:     p.CumulativeScore,
		}
	}
	return out
}
