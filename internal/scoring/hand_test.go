package scoring

import (
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		values    []int
		rank      HandRank
		primary   int
		secondary int
		tertiary  int
	}{
		{name: "Triple 2s", values: []int{2, 2, 2}, rank: Triple, primary: 2},
		{name: "Triple 6s", values: []int{6, 6, 6}, rank: Triple, primary: 6},
		{name: "Straight 1-2-3", values: []int{1, 2, 3}, rank: Straight, primary: 3},
		{name: "Straight 2-3-4", values: []int{2, 3, 4}, rank: Straight, primary: 4},
		{name: "Straight 3-4-5", values: []int{3, 4, 5}, rank: Straight, primary: 5},
		{name: "Straight 4-5-6", values: []int{4, 5, 6}, rank: Straight, primary: 6},
		{name: "No wrap-around 5-6-1", values: []int{5, 6, 1}, rank: Single, primary: 6, secondary: 5, tertiary: 1},
		{name: "Gapped 1-3-5", values: []int{1, 3, 5}, rank: Single, primary: 5, secondary: 3, tertiary: 1},
		{name: "Low pair", values: []int{5, 5, 3}, rank: Double, primary: 5, secondary: 3},
		{name: "High pair", values: []int{2, 6, 6}, rank: Double, primary: 6, secondary: 2},
		{name: "Single high 6", values: []int{6, 4, 2}, rank: Single, primary: 6, secondary: 4, tertiary: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Evaluate(tt.values)
			if err != nil {
				t.Fatalf("Evaluate(%v) error: %v", tt.values, err)
			}
			if h.Rank != tt.rank || h.Primary != tt.primary || h.Secondary != tt.secondary || h.Tertiary != tt.tertiary {
				t.Errorf("Evaluate(%v) = %+v, want rank=%v primary=%d secondary=%d tertiary=%d",
					tt.values, h, tt.rank, tt.primary, tt.secondary, tt.tertiary)
			}
		})
	}
}

func TestEvaluatePermutationInvariant(t *testing.T) {
	values := []int{4, 5, 6}
	perms := [][]int{
		{4, 5, 6}, {4, 6, 5}, {5, 4, 6}, {5, 6, 4}, {6, 4, 5}, {6, 5, 4},
	}
	want, err := Evaluate(values)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range perms {
		got, err := Evaluate(p)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Evaluate(%v) = %+v, want %+v", p, got, want)
		}
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	bad := [][]int{
		nil,
		{},
		{1},
		{1, 2},
		{1, 2, 3, 4},
		{0, 2, 3},
		{1, 7, 3},
	}
	for _, values := range bad {
		if _, err := Evaluate(values); err == nil {
			t.Errorf("Evaluate(%v) should fail", values)
		}
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	values := []int{6, 1, 3}
	if _, err := Evaluate(values); err != nil {
		t.Fatal(err)
	}
	if values[0] != 6 || values[1] != 1 || values[2] != 3 {
		t.Errorf("input mutated: %v", values)
	}
}

func TestCompare(t *testing.T) {
	mustEval := func(values ...int) EvaluatedHand {
		h, err := Evaluate(values)
		if err != nil {
			t.Fatal(err)
		}
		return h
	}

	tests := []struct {
		name string
		a, b EvaluatedHand
		sign int // -1, 0, +1
	}{
		{"triple beats straight", mustEval(1, 1, 1), mustEval(4, 5, 6), 1},
		{"straight beats double", mustEval(1, 2, 3), mustEval(6, 6, 5), 1},
		{"double beats single", mustEval(2, 2, 1), mustEval(6, 5, 3), 1},
		{"higher triple wins", mustEval(5, 5, 5), mustEval(4, 4, 4), 1},
		{"higher straight wins", mustEval(2, 3, 4), mustEval(1, 2, 3), 1},
		{"pair then kicker", mustEval(5, 5, 4), mustEval(5, 5, 3), 1},
		{"single tie-breaks to tertiary", mustEval(6, 4, 3), mustEval(6, 4, 2), 1},
		{"exact tie", mustEval(5, 5, 5), mustEval(5, 5, 5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.a, tt.b)
			rev := Compare(tt.b, tt.a)
			switch {
			case tt.sign > 0 && (got <= 0 || rev >= 0):
				t.Errorf("Compare = %d / reversed %d, want opposite signs with a winning", got, rev)
			case tt.sign == 0 && (got != 0 || rev != 0):
				t.Errorf("Compare = %d / reversed %d, want 0", got, rev)
			}
		})
	}
}
