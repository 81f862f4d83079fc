package rating

import (
	"math"
	"testing"
)

func TestUpdateSymmetricAroundSharedAverage(t *testing.T) {
	pool := []PlayerRating{
		{ParticipantID: "winner", Rating: 1000, Won: true},
		{ParticipantID: "loser", Rating: 1000, Won: false},
	}

	deltas := Update(pool)
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want 2", len(deltas))
	}

	winner, loser := deltas[0], deltas[1]
	if winner.NewRating <= 1000 {
		t.Fatalf("winner rating %v, want > 1000", winner.NewRating)
	}
	if loser.NewRating >= 1000 {
		t.Fatalf("loser rating %v, want < 1000", loser.NewRating)
	}

	gain := winner.NewRating - winner.OldRating
	loss := loser.OldRating - loser.NewRating
	if math.Abs(gain-loss) > 1e-9 {
		t.Fatalf("deltas not symmetric: +%v vs -%v", gain, loss)
	}
	// equal ratings: expected score is 0.5, so the swing is K/2
	if math.Abs(gain-16) > 1e-9 {
		t.Fatalf("gain = %v, want 16", gain)
	}
}

func TestUpdateUnderdogGainsMore(t *testing.T) {
	pool := []PlayerRating{
		{ParticipantID: "underdog", Rating: 800, Won: true},
		{ParticipantID: "favorite", Rating: 1200, Won: false},
	}

	deltas := Update(pool)
	underdogGain := deltas[0].NewRating - deltas[0].OldRating

	// expected for 800 vs avg 1000 is under 0.5, so the win pays over K/2
	if underdogGain <= 16 {
		t.Fatalf("underdog gain = %v, want > 16", underdogGain)
	}
	if underdogGain >= 32 {
		t.Fatalf("underdog gain = %v, want < K", underdogGain)
	}
}

func TestUpdateUsesPoolAverageNotPairwise(t *testing.T) {
	pool := []PlayerRating{
		{ParticipantID: "a", Rating: 1000, Won: true},
		{ParticipantID: "b", Rating: 1100, Won: false},
		{ParticipantID: "c", Rating: 1200, Won: false},
	}

	deltas := Update(pool)
	avg := (1000.0 + 1100.0 + 1200.0) / 3.0

	for i, p := range pool {
		expected := 1.0 / (1.0 + math.Pow(10, (avg-p.Rating)/400.0))
		actual := 0.0
		if p.Won {
			actual = 1.0
		}
		want := p.Rating + 32*(actual-expected)
		if math.Abs(deltas[i].NewRating-want) > 1e-9 {
			t.Fatalf("%s: got %v, want %v", p.ParticipantID, deltas[i].NewRating, want)
		}
	}
}

func TestUpdateEmptyPool(t *testing.T) {
	if deltas := Update(nil); deltas != nil {
		t.Fatalf("got %v for empty pool", deltas)
	}
}
