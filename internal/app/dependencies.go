// Package app bootstraps the process-level dependencies shared by the API
// server and the background worker: configuration, logging, the database
// pool with migrations applied, and the Redis client.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/store"
)

// Dependencies holds the shared process-level services.
type Dependencies struct {
	Cfg      *config.Config
	Log      zerolog.Logger
	Store    *store.Store
	Redis    *redis.Client
	Validate *validator.Validate
}

// Bootstrap loads configuration and connects every core dependency. The
// component name tags log lines and the Postgres application_name.
func Bootstrap(ctx context.Context, component string) (*Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", component).
		Logger()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := newRedis(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Dependencies{
		Cfg:      cfg,
		Log:      logger,
		Store:    store.NewStore(pool),
		Redis:    redisClient,
		Validate: validator.New(),
	}, nil
}

// Close releases the database pool and the Redis client.
func (d *Dependencies) Close() {
	if d.Store != nil && d.Store.Pool != nil {
		d.Store.Pool.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Log.Error().Err(err).Msg("close redis")
		}
	}
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		return nil, fmt.Errorf("instrument redis metrics: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
