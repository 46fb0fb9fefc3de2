package scoring

import "sort"

// InitialRoll is a player's 2d6 turn-order roll at the start of round 1.
type InitialRoll struct {
	PlayerID string `json:"playerId"`
	Dice     [2]int `json:"dice"`
	Total    int    `json:"total"`
}

// Standing pairs a player with their cumulative score for turn-order
// computation in rounds 2 and later.
type Standing struct {
	PlayerID   string
	Cumulative float64
}

// InitialTurnOrder sorts players by ascending 2d6 total, lowest first.
// Ties preserve input order. The input slice is not mutated.
func InitialTurnOrder(rolls []InitialRoll) []string {
	sorted := append([]InitialRoll(nil), rolls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Total < sorted[j].Total
	})
	out := make([]string, len(sorted))
	for i, r := range sorted {
		out[i] = r.PlayerID
	}
	return out
}

// NextRoundTurnOrder sorts players by cumulative score descending. Ties are
// broken by earlier position in the round-1 initial order; players missing
// from that order sort last. Neither input is mutated.
func NextRoundTurnOrder(standings []Standing, initialOrder []string) []string {
	pos := make(map[string]int, len(initialOrder))
	for i, id := range initialOrder {
		pos[id] = i
	}
	rank := func(id string) int {
		if p, ok := pos[id]; ok {
			return p
		}
		return len(initialOrder)
	}

	sorted := append([]Standing(nil), standings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Cumulative != sorted[j].Cumulative {
			return sorted[i].Cumulative > sorted[j].Cumulative
		}
		return rank(sorted[i].PlayerID) < rank(sorted[j].PlayerID)
	})

	out := make([]string, len(sorted))
	for i, s := range sorted {
		out[i] = s.PlayerID
	}
	return out
}
