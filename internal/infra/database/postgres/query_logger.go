package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SlowQueryThreshold marks queries logged at warn level
const SlowQueryThreshold = 100 * time.Millisecond

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// QueryLogger implements pgx.QueryTracer for logging database queries
type QueryLogger struct {
	logger zerolog.Logger
}

// NewQueryLogger creates a new query logger
func NewQueryLogger(logger zerolog.Logger) *QueryLogger {
	return &QueryLogger{
		logger: logger,
	}
}

// TraceQueryStart is called at the beginning of Query, QueryRow, and Exec calls
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

// TraceQueryEnd is called at the end of Query, QueryRow, and Exec calls
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		start.at = time.Now()
	}
	ql.log(data.CommandTag.String(), start.sql, time.Since(start.at), data.Err)
}

// log picks the level: error, then slow, then debug
func (ql *QueryLogger) log(tag, sql string, d time.Duration, err error) {
	switch {
	case err != nil:
		ql.logger.Error().Err(err).Str("sql", sql).Int64("duration_ms", d.Milliseconds()).Msg("Query failed")
	case d > SlowQueryThreshold:
		ql.logger.Warn().Str("sql", sql).Str("command_tag", tag).Int64("duration_ms", d.Milliseconds()).Msg("⚠️  Slow query detected")
	default:
		ql.logger.Debug().Str("sql", sql).Str("command_tag", tag).Int64("duration_ms", d.Milliseconds()).Msg("Query executed")
	}
}
