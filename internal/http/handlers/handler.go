package handlers

import (
	"detective_backend/internal/leaderboard"
	"detective_backend/internal/repository"
	"detective_backend/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	DB      *pgxpool.Pool
	Manager *session.Manager
	Players *repository.PlayerRepository
	Ratings *repository.RatingRepository
	Board   *leaderboard.Leaderboard
}

func NewHandler(db *pgxpool.Pool, manager *session.Manager, board *leaderboard.Leaderboard) *Handler {
	return &Handler{
		DB:      db,
		Manager: manager,
		Players: repository.NewPlayerRepository(db),
		Ratings: repository.NewRatingRepository(db),
		Board:   board,
	}
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c interface{ Get(string) (any, bool) }) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
