package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/handlers"
	"github.com/Estalvo/GeminiV26-sub001/internal/api/middleware"
	"github.com/Estalvo/GeminiV26-sub001/internal/api/router"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/infra/database/postgres"
	"github.com/Estalvo/GeminiV26-sub001/internal/infra/paper"
	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/config"
	applogger "github.com/Estalvo/GeminiV26-sub001/internal/pkg/logger"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/entry"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/pending"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/volatility"
)

// Version is reported by /api/health and the logger
const Version = "0.3.0"

// App is the wired exit-engine runtime on a paper host
type App struct {
	Config     *config.Config
	Catalog    *config.Catalog
	Host       *paper.Host
	Volatility *volatility.ATRTracker
	Store      *pending.Store
	Recent     *exitsvc.RecentSink
	Engines    []*exitsvc.Engine
	Entry      *entry.Service

	pool   *postgres.Pool
	trades handlers.TradeLister
}

// New wires one engine per catalog instrument against a paper host.
// With TRADE_SINK=postgres it also connects to the database.
func New(ctx context.Context, cfg *config.Config, catalog *config.Catalog) (*App, error) {
	a := &App{
		Config:     cfg,
		Catalog:    catalog,
		Host:       paper.NewHost(catalog, cfg.Paper.Balance, cfg.Paper.StartID),
		Volatility: volatility.NewATRTracker(cfg.Engine.ATRPeriod, cfg.Engine.Timeframe),
		Store:      pending.NewStore(),
		Recent:     &exitsvc.RecentSink{},
	}
	a.trades = a.Recent

	sink, err := a.sink(ctx)
	if err != nil {
		return nil, err
	}

	rehydration, err := exitsvc.RehydrationPolicyByName(cfg.Engine.RehydrationPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	for _, key := range catalog.Keys() {
		e, err := exitsvc.NewEngine(exitsvc.Config{
			Symbol:      key,
			Host:        a.Host,
			Instruments: catalog,
			Volatility:  a.Volatility,
			Sink:        sink,
			Meta:        a.Store,
			Rehydration: rehydration,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Engines = append(a.Engines, e)
	}

	a.Entry, err = entry.NewService(entry.Config{
		Host:       a.Host,
		Account:    a.Host,
		Volatility: a.Volatility,
		Store:      a.Store,
		Engines:    a.Engines,
		Resolver:   catalog.Registry(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Info().
		Strs("instruments", catalog.Keys()).
		Str("trade_sink", cfg.Engine.TradeSink).
		Str("rehydration", rehydration.Name()).
		Msg("✅ Exit engines ready")

	return a, nil
}

// sink builds the trade record fan-out: recent buffer, log channel and optionally postgres
func (a *App) sink(ctx context.Context) (exit.TradeRecordSink, error) {
	trades := applogger.Channel(LoggerConfig(a.Config), applogger.ChannelTrades)

	sinks := exitsvc.MultiSink{a.Recent, exitsvc.LogSink{Logger: &trades}}

	if a.Config.Engine.TradeSink != config.SinkPostgres {
		return sinks, nil
	}

	pool, err := postgres.NewPool(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("trade sink: %w", err)
	}
	repo := postgres.NewTradeRecordRepository(pool.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	a.pool = pool
	a.trades = repo

	return append(sinks, repo), nil
}

// Rehydrate adopts every live host position not yet managed
func (a *App) Rehydrate(ctx context.Context) (int, error) {
	total := 0
	for _, e := range a.Engines {
		n, err := e.Rehydrate(ctx)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Router builds the HTTP API over the wired services
func (a *App) Router() http.Handler {
	var db handlers.DatabaseHealth
	if a.pool != nil {
		db = a.pool
	}

	access := applogger.Channel(LoggerConfig(a.Config), applogger.ChannelAccess)

	return router.NewRouter(&router.Config{
		HealthHandler:  handlers.NewHealthHandler(db, a.Entry, Version),
		ExitHandler:    handlers.NewExitHandler(a.Entry),
		EntryHandler:   handlers.NewEntryHandler(a.Entry),
		PolicyHandler:  handlers.NewPolicyHandler(a.Catalog),
		PendingHandler: handlers.NewPendingHandler(a.Store),
		TradesHandler:  handlers.NewTradesHandler(a.trades),
		CORS:           middleware.DefaultCORSConfig(),
		AccessLogger:   &access,
	})
}

// Close releases the database pool if one was opened
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// LoggerConfig maps the logging section onto the logger package
func LoggerConfig(cfg *config.Config) applogger.Config {
	return applogger.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		RotationSize:   cfg.Logging.RotationSize,
		RetentionDays:  cfg.Logging.RetentionDays,
		ServiceName:    "exitctl",
		ServiceVersion: Version,
	}
}
