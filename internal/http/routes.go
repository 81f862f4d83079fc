package http

import (
	"os"
	"strconv"
	"time"

	"detective_backend/internal/config"
	"detective_backend/internal/http/handlers"
	"detective_backend/internal/http/middleware"
	"detective_backend/internal/leaderboard"
	"detective_backend/internal/session"
	"detective_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, manager *session.Manager, hub *ws.Hub, board *leaderboard.Leaderboard, cfg *config.Config, version string) {
	h := handlers.NewHandler(db, manager, board)
	healthHandler := handlers.NewHealthHandler(db, version)

	// read limits from env, with safe defaults
	apiRateLimit := 30
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateLimit = n
		}
	}
	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	authRateLimit := 5
	if v := os.Getenv("AUTH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateLimit = n
		}
	}
	authRateWindow := time.Minute
	if v := os.Getenv("AUTH_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateWindow = time.Duration(n) * time.Second
		}
	}

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	actionRateLimit := cfg.GameRateLimit
	actionRateWindow := time.Duration(cfg.GameRateWindow) * time.Second

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(apiRateLimit, apiRateWindow))
	registerAPIRoutes(v1, h, authRateLimit, authRateWindow, actionRateLimit, actionRateWindow)

	// Subscriber websocket: every room broadcast goes out here
	r.GET("/ws", ws.HandleWS(hub))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, authRateLimit int, authRateWindow time.Duration, actionRateLimit int, actionRateWindow time.Duration) {
	// Auth
	api.POST("/auth", middleware.RedisRateLimit(authRateLimit, authRateWindow), h.Auth)

	// Profile
	api.GET("/me", middleware.JWT(), h.Me)
	api.GET("/me/history", middleware.JWT(), h.GetMyHistory)

	// Per-user limiter for oracle-backed actions
	actionRL := middleware.GameActionRateLimit(actionRateLimit, actionRateWindow)

	// Rooms
	rooms := api.Group("/rooms")
	rooms.Use(middleware.JWT())
	{
		rooms.POST("", actionRL, h.CreateRoom)
		rooms.GET("/:id", h.GetRoom)
		rooms.POST("/:id/start", h.StartGame)
		rooms.POST("/:id/interrogation", actionRL, h.StartInterrogation)
		rooms.POST("/:id/interrogation/end", h.EndInterrogation)
		rooms.POST("/:id/leads", actionRL, h.CreateLead)
		rooms.DELETE("/:id/leads/:leadId", h.RemoveLead)
		rooms.POST("/:id/analysis", h.RunAnalysis)
	}

	// Leaderboard
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/leaderboard/rank", middleware.JWT(), h.GetMyRank)
}
