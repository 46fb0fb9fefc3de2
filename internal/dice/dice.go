// Package dice models the colored dice each player rolls for a round: nine
// white dice that everyone can see, plus one red and one blue die whose
// values stay hidden until they are committed to a hand.
package dice

import (
	"fmt"

	rand "math/rand/v2"
)

// Color identifies the three die colors.
type Color string

const (
	White Color = "WHITE"
	Red   Color = "RED"
	Blue  Color = "BLUE"
)

// Per-round dice counts. Every player starts a round with 11 dice.
const (
	WhitePerRound = 9
	DicePerRound  = 11
	DicePerHand   = 3
)

// Die is a single die owned by a player for the duration of a round.
// White dice are always revealed; red and blue stay hidden until selected
// into a hand. Spent dice remain in the list but cannot be selected again.
type Die struct {
	ID       string `json:"id"`
	Color    Color  `json:"color"`
	Value    int    `json:"value"`
	Spent    bool   `json:"spent"`
	Revealed bool   `json:"revealed"`
}

// Roller produces dice values from an injected RNG so a seeded server
// replays identically.
type Roller struct {
	rng *rand.Rand
}

// NewRoller creates a roller backed by rng.
func NewRoller(rng *rand.Rand) *Roller {
	return &Roller{rng: rng}
}

// Roll returns a single d6 value.
func (r *Roller) Roll() int {
	return r.rng.IntN(6) + 1
}

// RollPair rolls 2d6, used for the initial turn-order roll.
func (r *Roller) RollPair() (int, int) {
	return r.Roll(), r.Roll()
}

// RollRoundSet rolls a fresh 11-die set for a player: 9 white (revealed),
// 1 red and 1 blue (hidden). IDs encode owner and round so they stay unique
// across rerolls.
func (r *Roller) RollRoundSet(playerID string, round int) []Die {
	set := make([]Die, 0, DicePerRound)
	for i := 0; i < WhitePerRound; i++ {
		set = append(set, Die{
			ID:       fmt.Sprintf("%s-r%d-w%d", playerID, round, i),
			Color:    White,
			Value:    r.Roll(),
			Revealed: true,
		})
	}
	set = append(set, Die{
		ID:    fmt.Sprintf("%s-r%d-red", playerID, round),
		Color: Red,
		Value: r.Roll(),
	})
	set = append(set, Die{
		ID:    fmt.Sprintf("%s-r%d-blue", playerID, round),
		Color: Blue,
		Value: r.Roll(),
	})
	return set
}

// Find returns the index of the die with the given id, or -1.
func Find(set []Die, id string) int {
	for i := range set {
		if set[i].ID == id {
			return i
		}
	}
	return -1
}

// FirstUnspent returns the ids of the first n unspent dice in list order.
// Used for timeout auto-selection, which must be deterministic.
func FirstUnspent(set []Die, n int) []string {
	ids := make([]string, 0, n)
	for i := range set {
		if set[i].Spent {
			continue
		}
		ids = append(ids, set[i].ID)
		if len(ids) == n {
			break
		}
	}
	return ids
}
