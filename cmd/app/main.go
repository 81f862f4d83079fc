package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detective_backend/internal/config"
	"detective_backend/internal/crypto"
	"detective_backend/internal/db"
	httpServer "detective_backend/internal/http"
	"detective_backend/internal/http/middleware"
	"detective_backend/internal/leaderboard"
	"detective_backend/internal/logger"
	"detective_backend/internal/oracle"
	"detective_backend/internal/realtime"
	"detective_backend/internal/repository"
	"detective_backend/internal/service"
	"detective_backend/internal/session"
	"detective_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_JSON") == "true")
	cfg := config.Load()
	service.InitJWT()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	codec, err := crypto.NewBlobCodec(cfg.GameStateKey)
	if err != nil {
		logger.Fatal("bad GAME_STATE_KEY", "error", err)
	}

	middleware.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	board := leaderboard.New(middleware.Client())

	oracleClient := oracle.NewClient(cfg.OracleBaseURL, cfg.OracleAPIKey)

	hub := ws.NewHub()
	manager := session.NewManager(session.Deps{
		Store:       repository.NewRoomRepository(dbPool, codec),
		Broadcaster: hub,
		Oracle:      oracleClient,
		Ratings:     repository.NewRatingRepository(dbPool),
		Board:       board,
		DialBridge: func(instructions string) session.RealtimeSession {
			return realtime.NewBridge(realtime.Config{
				URL:          cfg.OracleRealtimeURL,
				APIKey:       cfg.OracleAPIKey,
				Instructions: instructions,
			})
		},
		Config: session.Config{
			InterrogationPhase: time.Duration(cfg.InterrogationPhaseSeconds) * time.Second,
			DeductionPhase:     time.Duration(cfg.DeductionPhaseSeconds) * time.Second,
			GameAssistantID:    cfg.GameAssistantID,
			ScoreAssistantID:   cfg.ScoreAssistantID,
		},
	})
	hub.BindManager(manager)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	manager.StartCleanup(rootCtx)

	r := gin.Default()

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer.RegisterRoutes(r, dbPool, manager, hub, board, cfg, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
