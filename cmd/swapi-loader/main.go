package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/swapi-loader/pkg/cache"
	"github.com/Sternrassler/swapi-loader/pkg/client"
	"github.com/Sternrassler/swapi-loader/pkg/logging"
	"github.com/Sternrassler/swapi-loader/pkg/metrics"
	"github.com/Sternrassler/swapi-loader/pkg/people"
	"github.com/Sternrassler/swapi-loader/pkg/pipeline"
	"github.com/Sternrassler/swapi-loader/pkg/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// config is everything the loader reads from the environment.
type config struct {
	Store    store.Config
	Pipeline pipeline.Config

	UserAgent      string
	RequestTimeout time.Duration
	RedisAddr      string
	PushgatewayURL string

	LogLevel  logging.LogLevel
	LogPretty bool
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := loadConfig(os.Getenv)
	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if _, err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Run failed")
		stop()
		os.Exit(1)
	}
	fmt.Println(time.Since(start))
}

// loadConfig builds the configuration from getenv. The id range, chunk size
// and base URL are fixed; only connection parameters come from the environment.
func loadConfig(getenv func(string) string) (config, error) {
	get := func(key, defaultValue string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return defaultValue
	}

	storeCfg := store.DefaultConfig()
	cfg := config{
		Store: store.Config{
			Driver:     get("STORE_DRIVER", storeCfg.Driver),
			Host:       get("PG_HOST", storeCfg.Host),
			Port:       get("PG_PORT", storeCfg.Port),
			User:       getenv("PG_USER"),
			Password:   getenv("PG_PASSWORD"),
			Database:   getenv("PG_DB"),
			SQLitePath: get("SQLITE_PATH", storeCfg.SQLitePath),
		},
		Pipeline:       pipeline.DefaultConfig(),
		UserAgent:      get("USER_AGENT", "swapi-loader/0.1.0"),
		RequestTimeout: client.DefaultConfig("").RequestTimeout,
		RedisAddr:      getenv("REDIS_URL"),
		PushgatewayURL: getenv("PUSHGATEWAY_URL"),
		LogLevel:       logging.ParseLevel(getenv("LOG_LEVEL")),
	}

	if v := getenv("LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse LOG_PRETTY: %w", err)
		}
		cfg.LogPretty = pretty
	}

	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse REQUEST_TIMEOUT: %w", err)
		}
		if timeout <= 0 {
			return cfg, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", timeout)
		}
		cfg.RequestTimeout = timeout
	}

	return cfg, nil
}

// run resets the store schema and performs one full pipeline pass.
func run(ctx context.Context, cfg config) (pipeline.Stats, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.ResetSchema(ctx); err != nil {
		return pipeline.Stats{}, fmt.Errorf("reset schema: %w", err)
	}

	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.RequestTimeout = cfg.RequestTimeout

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, response cache disabled")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("Response cache enabled")
			clientCfg.Cache = cache.NewManager(redisClient)
		}
	}

	swapi, err := client.New(clientCfg)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("create client: %w", err)
	}

	p, err := pipeline.New(swapi, people.NewAssembler(swapi), st, cfg.Pipeline)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("create pipeline: %w", err)
	}

	stats, runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, metrics.DefaultJob); err != nil {
			log.Warn().Err(err).Msg("Failed to push metrics")
		}
		cancel()
	}

	return stats, runErr
}
