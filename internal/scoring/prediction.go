package scoring

// Prediction is a player's call on their own round total before selecting
// any dice. The empty string means no prediction yet.
type Prediction string

const (
	PredictionNone Prediction = ""
	PredictionZero Prediction = "ZERO"
	PredictionMin  Prediction = "MIN"
	PredictionMore Prediction = "MORE"
	PredictionMax  Prediction = "MAX"
)

// ZeroBonus is the flat bonus for a correct ZERO prediction.
const ZeroBonus = 40

type predictionRange struct {
	lo, hi float64
}

// predictionRanges maps player count to closed ranges over the round total
// (set 1 + set 2, 0..12). MIN is not offered with 2 players.
var predictionRanges = map[int]map[Prediction]predictionRange{
	2: {
		PredictionZero: {0, 0},
		PredictionMore: {6, 6},
		PredictionMax:  {12, 12},
	},
	3: {
		PredictionZero: {0, 0},
		PredictionMin:  {3, 3},
		PredictionMore: {6, 9},
		PredictionMax:  {10, 12},
	},
	4: {
		PredictionZero: {0, 0},
		PredictionMin:  {1, 4},
		PredictionMore: {6, 9},
		PredictionMax:  {10, 12},
	},
	5: {
		PredictionZero: {0, 0},
		PredictionMin:  {1, 4},
		PredictionMore: {5, 8},
		PredictionMax:  {10, 12},
	},
	6: {
		PredictionZero: {0, 0},
		PredictionMin:  {1, 4},
		PredictionMore: {5, 9},
		PredictionMax:  {10, 12},
	},
}

// AvailablePredictions returns the prediction types offered at the given
// player count, in a stable order.
func AvailablePredictions(playerCount int) []Prediction {
	ranges, ok := predictionRanges[playerCount]
	if !ok {
		return nil
	}
	out := make([]Prediction, 0, 4)
	for _, p := range []Prediction{PredictionZero, PredictionMin, PredictionMore, PredictionMax} {
		if _, ok := ranges[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ValidPrediction reports whether p is offered at the given player count.
func ValidPrediction(p Prediction, playerCount int) bool {
	_, ok := predictionRanges[playerCount][p]
	return ok
}

// PredictionBonus returns the bonus earned for a prediction given the round
// total. A correct ZERO is worth a flat 40; correct MIN/MORE/MAX are worth
// the round total itself. A miss is worth nothing.
func PredictionBonus(p Prediction, roundTotal float64, playerCount int) float64 {
	r, ok := predictionRanges[playerCount][p]
	if !ok {
		return 0
	}
	if roundTotal < r.lo || roundTotal > r.hi {
		return 0
	}
	if p == PredictionZero {
		return ZeroBonus
	}
	return roundTotal
}
