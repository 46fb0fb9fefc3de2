// Package scoring is the pure rules kernel: hand evaluation and comparison,
// placement points, prediction bonuses and turn-order computation. Nothing
// here touches a clock, an RNG or any I/O, and no routine mutates its inputs.
package scoring

import (
	"fmt"
	"sort"
)

// HandRank orders the four hand shapes from weakest to strongest.
type HandRank int

const (
	Single HandRank = iota + 1
	Double
	Straight
	Triple
)

// String returns the display name of the rank.
func (r HandRank) String() string {
	switch r {
	case Single:
		return "Single"
	case Double:
		return "Double"
	case Straight:
		return "Straight"
	case Triple:
		return "Triple"
	default:
		return fmt.Sprintf("HandRank(%d)", int(r))
	}
}

// EvaluatedHand is the comparable result of evaluating a 3-die hand.
// Comparison is lexicographic on (Rank, Primary, Secondary, Tertiary).
type EvaluatedHand struct {
	Rank        HandRank `json:"rank"`
	Primary     int      `json:"primary"`
	Secondary   int      `json:"secondary,omitempty"`
	Tertiary    int      `json:"tertiary,omitempty"`
	Description string   `json:"description"`
}

// Evaluate classifies three die values. Straights are the four literal runs
// 1-2-3 through 4-5-6 with no wrap-around; 5-6-1 is just a Single.
func Evaluate(values []int) (EvaluatedHand, error) {
	if len(values) != 3 {
		return EvaluatedHand{}, fmt.Errorf("hand must have exactly 3 dice, got %d", len(values))
	}
	for _, v := range values {
		if v < 1 || v > 6 {
			return EvaluatedHand{}, fmt.Errorf("die value %d out of range 1-6", v)
		}
	}

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	low, mid, high := sorted[0], sorted[1], sorted[2]

	switch {
	case low == mid && mid == high:
		return EvaluatedHand{
			Rank:        Triple,
			Primary:     low,
			Description: fmt.Sprintf("Triple %ds", low),
		}, nil
	case mid == low+1 && high == mid+1:
		return EvaluatedHand{
			Rank:        Straight,
			Primary:     high,
			Description: fmt.Sprintf("Straight %d-%d-%d", low, mid, high),
		}, nil
	case low == mid:
		return EvaluatedHand{
			Rank:        Double,
			Primary:     low,
			Secondary:   high,
			Description: fmt.Sprintf("Pair of %ds, %d kicker", low, high),
		}, nil
	case mid == high:
		return EvaluatedHand{
			Rank:        Double,
			Primary:     high,
			Secondary:   low,
			Description: fmt.Sprintf("Pair of %ds, %d kicker", high, low),
		}, nil
	default:
		return EvaluatedHand{
			Rank:        Single,
			Primary:     high,
			Secondary:   mid,
			Tertiary:    low,
			Description: fmt.Sprintf("High %d-%d-%d", high, mid, low),
		}, nil
	}
}

// Compare returns <0 if a loses to b, >0 if a beats b, 0 on an exact tie.
func Compare(a, b EvaluatedHand) int {
	if d := int(a.Rank) - int(b.Rank); d != 0 {
		return d
	}
	if d := a.Primary - b.Primary; d != 0 {
		return d
	}
	if d := a.Secondary - b.Secondary; d != 0 {
		return d
	}
	return a.Tertiary - b.Tertiary
}
