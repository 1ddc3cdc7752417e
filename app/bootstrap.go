package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vidtube-backend/internal/auth"
	"vidtube-backend/internal/channel"
	"vidtube-backend/internal/db"
	"vidtube-backend/internal/maintenance"
	"vidtube-backend/internal/media"
	"vidtube-backend/internal/observability"
	"vidtube-backend/internal/user"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the whole service from the environment: database, token
// issuer, Cloudinary client, repositories, handlers and the route table.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("ACCESS_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	cloudinaryURL, err := mustEnv("CLOUDINARY_URL")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	issuer := auth.NewIssuer(
		accessSecret,
		refreshSecret,
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
	)

	cloudinaryClient, err := media.NewCloudinary(cloudinaryURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}

	userRepo := user.NewRepository(database)
	userService := user.NewService(userRepo, issuer, cloudinaryClient)
	userHandler := user.NewHandler(userService, issuer)

	channelRepo := channel.NewRepository(database)
	channelHandler := channel.NewHandler(channelRepo)

	sweepHandler := maintenance.NewSweepHandler(userRepo, logger, os.Getenv("CRON_SECRET"))

	authed := func(handlerFunc http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, handlerFunc)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/register", userHandler.Register)
	mux.HandleFunc("POST /users/login", userHandler.Login)
	mux.HandleFunc("POST /users/refresh-token", userHandler.RefreshToken)
	mux.Handle("POST /users/logout", authed(userHandler.Logout))
	mux.Handle("POST /users/update-password", authed(userHandler.UpdatePassword))
	mux.Handle("PATCH /users/update-account", authed(userHandler.UpdateAccount))
	mux.Handle("GET /users/current-user", authed(userHandler.CurrentUser))
	mux.Handle("PATCH /users/update-avatar", authed(userHandler.UpdateAvatar))
	mux.Handle("PATCH /users/update-coverimage", authed(userHandler.UpdateCoverImage))
	mux.Handle("GET /users/channel/{username}", authed(channelHandler.Profile))
	mux.Handle("POST /users/channel/{username}/subscribe", authed(channelHandler.Subscribe))
	mux.Handle("DELETE /users/channel/{username}/subscribe", authed(channelHandler.Unsubscribe))
	mux.Handle("GET /users/history", authed(userHandler.WatchHistory))
	mux.Handle("POST /users/history/{videoID}", authed(userHandler.RecordWatch))
	mux.HandleFunc("GET /internal/maintenance/cleanup", sweepHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", sweepHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
