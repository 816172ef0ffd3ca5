package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/config"
	applogger "github.com/Estalvo/GeminiV26-sub001/internal/pkg/logger"
)

// Pool wraps pgxpool.Pool
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new PostgreSQL connection pool from cfg.Database.URL
func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	log.Info().
		Str("target", redactURL(cfg.Database.URL)).
		Int32("max_conns", cfg.Database.MaxConns).
		Msg("Connecting to PostgreSQL...")

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// queries go to query.log when file logging is on, else to the global logger at debug
	if cfg.Logging.FileEnabled || cfg.Logging.Level == zerolog.DebugLevel.String() {
		poolConfig.ConnConfig.Tracer = NewQueryLogger(applogger.Channel(loggerConfig(cfg), applogger.ChannelQuery))
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("✅ PostgreSQL connected successfully")

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool
func (p *Pool) Close() {
	log.Info().Msg("Closing PostgreSQL connection pool...")
	p.Pool.Close()
}

func loggerConfig(cfg *config.Config) applogger.Config {
	return applogger.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		FileEnabled:   cfg.Logging.FileEnabled,
		FilePath:      cfg.Logging.FilePath,
		RotationSize:  cfg.Logging.RotationSize,
		RetentionDays: cfg.Logging.RetentionDays,
	}
}

// redactURL drops credentials from a connection URL for logging
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(unparsed)"
	}
	return u.Host + u.Path
}
