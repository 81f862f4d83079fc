package leaderboard

import (
	"context"
	"strconv"

	redis "github.com/redis/go-redis/v9"
)

const ratingKey = "leaderboard:rating"

// Entry is one leaderboard row.
type Entry struct {
	ParticipantID int64   `json:"participant_id"`
	Rating        float64 `json:"rating"`
	Rank          int64   `json:"rank"`
}

// Leaderboard mirrors the persisted ratings into a redis sorted set so top-N
// and rank queries don't touch postgres. The ZSET is a cache: postgres stays
// the source of truth and a lost redis just means a cold board.
type Leaderboard struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Leaderboard {
	return &Leaderboard{rdb: rdb}
}

func (l *Leaderboard) UpdateRating(ctx context.Context, participantID int64, rating float64) error {
	if l.rdb == nil {
		return nil
	}
	return l.rdb.ZAdd(ctx, ratingKey, redis.Z{
		Score:  rating,
		Member: strconv.FormatInt(participantID, 10),
	}).Err()
}

// Top returns the highest-rated participants, best first.
func (l *Leaderboard) Top(ctx context.Context, n int64) ([]Entry, error) {
	if l.rdb == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 100
	}

	zs, err := l.rdb.ZRevRangeWithScores(ctx, ratingKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(zs))
	for i, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ParticipantID: id,
			Rating:        z.Score,
			Rank:          int64(i) + 1,
		})
	}
	return entries, nil
}

// Rank returns the participant's 1-based position, or 0 when unranked.
func (l *Leaderboard) Rank(ctx context.Context, participantID int64) (int64, float64, error) {
	if l.rdb == nil {
		return 0, 0, nil
	}

	member := strconv.FormatInt(participantID, 10)
	rank, err := l.rdb.ZRevRank(ctx, ratingKey, member).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	score, err := l.rdb.ZScore(ctx, ratingKey, member).Result()
	if err != nil && err != redis.Nil {
		return 0, 0, err
	}
	return rank + 1, score, nil
}
