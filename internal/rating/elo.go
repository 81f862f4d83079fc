package rating

import "math"

const kFactor = 32.0

// PlayerRating is one participant's prior rating plus the session outcome.
type PlayerRating struct {
	ParticipantID string
	Rating        float64
	Won           bool
}

// Delta is the computed rating change for one participant. Badges assigned by
// the oracle travel alongside the numbers but are opaque here.
type Delta struct {
	ParticipantID string
	OldRating     float64
	NewRating     float64
}

// Update applies the Elo update with K=32, using the pool's average rating in
// place of a single opponent rating instead of pairwise matchups. This is a
// deliberate simplification carried over for score compatibility:
//
//	expected = 1 / (1 + 10^((avg - rating) / 400))
//	new      = rating + K * (actual - expected),  actual in {0, 1}
func Update(pool []PlayerRating) []Delta {
	if len(pool) == 0 {
		return nil
	}

	var sum float64
	for _, p := range pool {
		sum += p.Rating
	}
	avg := sum / float64(len(pool))

	deltas := make([]Delta, 0, len(pool))
	for _, p := range pool {
		expected := 1.0 / (1.0 + math.Pow(10, (avg-p.Rating)/400.0))
		actual := 0.0
		if p.Won {
			actual = 1.0
		}
		deltas = append(deltas, Delta{
			ParticipantID: p.ParticipantID,
			OldRating:     p.Rating,
			NewRating:     p.Rating + kFactor*(actual-expected),
		})
	}

	return deltas
}
