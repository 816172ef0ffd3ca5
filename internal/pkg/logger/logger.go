package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Channels with their own rotating file under Config.FilePath
const (
	ChannelQuery  = "query"
	ChannelAccess = "access"
	ChannelTrades = "trades"
)

// Config holds logger configuration
type Config struct {
	Level          string // debug, info, warn, error
	Format         string // json, pretty
	FileEnabled    bool
	FilePath       string // logs directory path
	RotationSize   int    // MB
	RetentionDays  int
	ServiceName    string
	ServiceVersion string
}

// Init initializes the global logger
func Init(cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	w, err := newWriter(cfg, os.Stderr)
	if err != nil {
		return err
	}

	log.Logger = zerolog.New(w).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.ServiceVersion).
		Logger()

	log.Info().
		Str("level", cfg.Level).
		Str("format", cfg.Format).
		Bool("file_enabled", cfg.FileEnabled).
		Msg("Logger initialized")

	return nil
}

// newWriter builds the console writer plus app.log and error.log when file logging is on
func newWriter(cfg Config, console io.Writer) (zerolog.LevelWriter, error) {
	var writers []io.Writer

	if cfg.Format == "pretty" {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: "15:04:05",
		})
	} else {
		writers = append(writers, console)
	}

	if cfg.FileEnabled {
		if err := os.MkdirAll(cfg.FilePath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, rotating(cfg, "app.log", 10))
		writers = append(writers, errorOnly{rotating(cfg, "error.log", 10)})
	}

	return zerolog.MultiLevelWriter(writers...), nil
}

func rotating(cfg Config, name string, backups int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.FilePath, name),
		MaxSize:    cfg.RotationSize, // MB
		MaxAge:     cfg.RetentionDays,
		MaxBackups: backups,
		Compress:   true,
	}
}

// errorOnly passes ERROR and above
type errorOnly struct {
	w io.Writer
}

func (e errorOnly) Write(p []byte) (int, error) {
	return e.w.Write(p)
}

func (e errorOnly) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel {
		return len(p), nil
	}
	return e.w.Write(p)
}

// Channel returns a logger writing to <FilePath>/<channel>.log.
// With file logging disabled it falls back to the global logger tagged with the channel.
func Channel(cfg Config, channel string) zerolog.Logger {
	if !cfg.FileEnabled || cfg.FilePath == "" {
		return log.With().Str("type", channel).Logger()
	}

	if err := os.MkdirAll(cfg.FilePath, 0755); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Failed to create log directory, using default logger")
		return log.With().Str("type", channel).Logger()
	}

	return zerolog.New(rotating(cfg, channel+".log", 5)).With().
		Timestamp().
		Str("type", channel).
		Logger()
}

// GetLogger returns the global logger
func GetLogger() *zerolog.Logger {
	return &log.Logger
}
