package server

import (
	"github.com/lox/tridice/internal/dice"
	"github.com/lox/tridice/internal/game"
)

// sanitizeFor builds the view of the game state one player is allowed to
// see: their own dice in full, everyone else's unrevealed dice with the
// value masked. Pending selections of other players are reduced to a count
// so a slow confirmer leaks nothing.
func sanitizeFor(state *game.State, viewerID string) *game.State {
	out := *state

	out.Players = make([]*game.Player, len(state.Players))
	for i, p := range state.Players {
		cp := *p
		cp.Dice = sanitizeDice(p.Dice, p.ID == viewerID)
		out.Players[i] = &cp
	}

	out.Pending = make(map[string]*game.PendingSelection, len(state.Pending))
	for id, sel := range state.Pending {
		if id == viewerID {
			out.Pending[id] = sel
			continue
		}
		out.Pending[id] = &game.PendingSelection{
			DieIDs:    make([]string, len(sel.DieIDs)),
			Confirmed: sel.Confirmed,
		}
	}
	return &out
}

func sanitizeDice(set []dice.Die, owner bool) []dice.Die {
	out := make([]dice.Die, len(set))
	copy(out, set)
	if owner {
		return out
	}
	for i := range out {
		if !out[i].Revealed {
			out[i].Value = 0
		}
	}
	return out
}

// visibleSelection splits a selection for broadcast to non-owners: revealed
// dice travel in full, hidden ones only as a count.
func visibleSelection(selected []dice.Die) (visible []dice.Die, hidden int) {
	visible = make([]dice.Die, 0, len(selected))
	for _, d := range selected {
		if d.Revealed {
			visible = append(visible, d)
		} else {
			hidden++
		}
	}
	return visible, hidden
}
