package config

import (
	"os"
	"strconv"

	"detective_backend/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	JWTSecret   string

	// Oracle
	OracleAPIKey      string
	OracleBaseURL     string
	OracleRealtimeURL string
	GameAssistantID   string
	ScoreAssistantID  string

	// State encryption (hex-encoded 32-byte key)
	GameStateKey string

	// Redis (rate limiting + leaderboard), optional
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Phase durations, seconds
	InterrogationPhaseSeconds int
	DeductionPhaseSeconds     int

	// Game limits
	GameRateLimit  int
	GameRateWindow int
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	oracleKey := os.Getenv("ORACLE_API_KEY")
	if oracleKey == "" {
		logger.Fatal("ORACLE_API_KEY is not set")
	}

	stateKey := os.Getenv("GAME_STATE_KEY")
	if stateKey == "" {
		logger.Fatal("GAME_STATE_KEY is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	oracleBaseURL := os.Getenv("ORACLE_BASE_URL")
	if oracleBaseURL == "" {
		oracleBaseURL = "https://api.openai.com/v1"
	}

	oracleRealtimeURL := os.Getenv("ORACLE_REALTIME_URL")
	if oracleRealtimeURL == "" {
		oracleRealtimeURL = "wss://api.openai.com/v1/realtime"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	interrogationSeconds := 300 // 5 минут на допрос
	if v := os.Getenv("INTERROGATION_PHASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interrogationSeconds = n
		}
	}

	deductionSeconds := 180 // 3 минуты на дедукцию
	if v := os.Getenv("DEDUCTION_PHASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			deductionSeconds = n
		}
	}

	gameRateLimit := 60 // макс действий за ->
	if v := os.Getenv("GAME_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			gameRateLimit = n
		}
	}

	gameRateWindow := 60 // -> 60 секунд
	if v := os.Getenv("GAME_RATE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			gameRateWindow = n
		}
	}

	return &Config{
		AppPort:     port,
		DatabaseURL: dbURL,
		JWTSecret:   jwtSecret,

		OracleAPIKey:      oracleKey,
		OracleBaseURL:     oracleBaseURL,
		OracleRealtimeURL: oracleRealtimeURL,
		GameAssistantID:   os.Getenv("GAME_ASSISTANT_ID"),
		ScoreAssistantID:  os.Getenv("SCORE_ASSISTANT_ID"),

		GameStateKey: stateKey,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		InterrogationPhaseSeconds: interrogationSeconds,
		DeductionPhaseSeconds:     deductionSeconds,

		GameRateLimit:  gameRateLimit,
		GameRateWindow: gameRateWindow,
	}
}
