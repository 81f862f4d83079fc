package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RatingRepository struct {
	db *pgxpool.Pool
}

func NewRatingRepository(db *pgxpool.Pool) *RatingRepository {
	return &RatingRepository{db: db}
}

// GetRatingAndWins returns pgx.ErrNoRows for a participant who has never
// played; the caller applies the starting rating.
func (r *RatingRepository) GetRatingAndWins(ctx context.Context, participantID int64) (float64, int, error) {
	var rating float64
	var wins int
	err := r.db.QueryRow(ctx,
		`SELECT rating, wins FROM player_ratings WHERE participant_id = $1`,
		participantID,
	).Scan(&rating, &wins)
	if err != nil {
		return 0, 0, err
	}
	return rating, wins, nil
}

func (r *RatingRepository) SetRatingAndWins(ctx context.Context, participantID int64, rating float64, wins int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO player_ratings (participant_id, rating, wins)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (participant_id)
		 DO UPDATE SET rating = $2, wins = $3, updated_at = now()`,
		participantID, rating, wins,
	)
	return err
}

// RecordGameResult appends one immutable row per participant per finished
// game.
func (r *RatingRepository) RecordGameResult(ctx context.Context, participantID int64, roomID string, oldRating, newRating float64, won bool, badges []string) error {
	badgesJSON, err := json.Marshal(badges)
	if err != nil {
		badgesJSON = []byte("[]")
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO game_results (participant_id, room_id, old_rating, new_rating, won, badges)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		participantID, roomID, oldRating, newRating, won, badgesJSON,
	)
	return err
}

// ResultRow is one entry of a participant's game history.
type ResultRow struct {
	RoomID    string   `json:"room_id"`
	OldRating float64  `json:"old_rating"`
	NewRating float64  `json:"new_rating"`
	Won       bool     `json:"won"`
	Badges    []string `json:"badges"`
}

// GetHistory returns the participant's most recent results.
func (r *RatingRepository) GetHistory(ctx context.Context, participantID int64, limit int) ([]*ResultRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT room_id, old_rating, new_rating, won, badges
		 FROM game_results
		 WHERE participant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		participantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ResultRow
	for rows.Next() {
		var row ResultRow
		var badgesJSON []byte
		if err := rows.Scan(&row.RoomID, &row.OldRating, &row.NewRating, &row.Won, &badgesJSON); err != nil {
			return nil, err
		}
		if len(badgesJSON) > 0 {
			_ = json.Unmarshal(badgesJSON, &row.Badges)
		}
		result = append(result, &row)
	}

	return result, nil
}
