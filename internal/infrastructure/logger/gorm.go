package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger writes gorm's statement log through zap, tagged with the
// correlation fields of the calling request.
type GormLogger struct {
	logger *zap.Logger
	cfg    gormlogger.Config
}

// GormConfig derives gorm logger settings from the application log level.
// Only debug logs every statement; bind values are never logged.
func GormConfig(level string) gormlogger.Config {
	cfg := gormlogger.Config{
		SlowThreshold:             defaultSlowQuery,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		LogLevel:                  gormlogger.Warn,
	}
	switch {
	case strings.EqualFold(level, "silent"):
		cfg.LogLevel = gormlogger.Silent
	case ParseLevel(level) == zapcore.DebugLevel:
		cfg.LogLevel = gormlogger.Info
	case ParseLevel(level) >= zapcore.ErrorLevel:
		cfg.LogLevel = gormlogger.Error
	}
	return cfg
}

// NewGormLogger creates a gorm logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, cfg gormlogger.Config) *GormLogger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &GormLogger{logger: zapLogger.Named("gorm"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.cfg.LogLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.cfg.LogLevel >= gormlogger.Info {
		Enrich(ctx, l.logger).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.cfg.LogLevel >= gormlogger.Warn {
		Enrich(ctx, l.logger).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.cfg.LogLevel >= gormlogger.Error {
		Enrich(ctx, l.logger).Sugar().Errorf(msg, data...)
	}
}

// ParamsFilter keeps tenant data out of logged statements when ParameterizedQueries is set.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	if l.cfg.ParameterizedQueries {
		return sql, nil
	}
	return sql, params
}

// Trace logs failed statements, slow statements, and at debug level everything else.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	level := l.cfg.LogLevel
	if level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !(l.cfg.IgnoreRecordNotFoundError && errors.Is(err, gormlogger.ErrRecordNotFound))
	switch {
	case failed && level >= gormlogger.Error:
		log, fields := l.statement(ctx, elapsed, fc)
		log.Error("SQL Error", append(fields, zap.Error(err))...)
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && level >= gormlogger.Warn:
		log, fields := l.statement(ctx, elapsed, fc)
		log.Warn("Slow SQL", append(fields, zap.Duration("threshold", l.cfg.SlowThreshold))...)
	case err == nil && level >= gormlogger.Info:
		log, fields := l.statement(ctx, elapsed, fc)
		log.Debug("SQL Query", fields...)
	}
}

func (l *GormLogger) statement(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) (*zap.Logger, []zap.Field) {
	sql, rows := fc()
	return Enrich(ctx, l.logger), []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
}
