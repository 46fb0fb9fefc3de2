package scoring

import (
	"fmt"
	"sort"
)

// placementPoints maps player count to per-placement points. First place is
// always worth 6; last place is always worth 0.
var placementPoints = map[int][]float64{
	2: {6, 0},
	3: {6, 3, 0},
	4: {6, 3, 1, 0},
	5: {6, 4, 2, 1, 0},
	6: {6, 4, 3, 2, 1, 0},
}

// PlacementPoints returns the points for a 1-based placement at the given
// player count.
func PlacementPoints(playerCount, placement int) (float64, error) {
	table, ok := placementPoints[playerCount]
	if !ok {
		return 0, fmt.Errorf("unsupported player count %d", playerCount)
	}
	if placement < 1 || placement > len(table) {
		return 0, fmt.Errorf("placement %d out of range for %d players", placement, playerCount)
	}
	return table[placement-1], nil
}

// Selection pairs a player with their evaluated hand for a set.
type Selection struct {
	PlayerID string
	Hand     EvaluatedHand
}

// Placed is a scored selection: the placement it earned and the points
// awarded. Tied players share a placement and split its point range evenly,
// so Points may be fractional.
type Placed struct {
	PlayerID  string
	Hand      EvaluatedHand
	Placement int
	Points    float64
}

// Score ranks the selections of one set and awards points. A tie-group of
// size t sharing placement k occupies placements k..k+t-1 and each member
// earns the mean of those placements' points. The input is not mutated.
func Score(selections []Selection, playerCount int) ([]Placed, error) {
	table, ok := placementPoints[playerCount]
	if !ok {
		return nil, fmt.Errorf("unsupported player count %d", playerCount)
	}
	if len(selections) > playerCount {
		return nil, fmt.Errorf("%d selections for %d players", len(selections), playerCount)
	}

	ranked := append([]Selection(nil), selections...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Compare(ranked[i].Hand, ranked[j].Hand) > 0
	})

	out := make([]Placed, 0, len(ranked))
	for i := 0; i < len(ranked); {
		// Collect the tie-group starting at i.
		j := i + 1
		for j < len(ranked) && Compare(ranked[i].Hand, ranked[j].Hand) == 0 {
			j++
		}
		groupSize := j - i
		placement := i + 1

		var sum float64
		for k := placement; k < placement+groupSize; k++ {
			sum += table[k-1]
		}
		share := sum / float64(groupSize)

		for k := i; k < j; k++ {
			out = append(out, Placed{
				PlayerID:  ranked[k].PlayerID,
				Hand:      ranked[k].Hand,
				Placement: placement,
				Points:    share,
			})
		}
		i = j
	}
	return out, nil
}
