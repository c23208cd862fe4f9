package database

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
	gormlogger "gorm.io/gorm/logger"
)

// sqlLogger routes GORM output to the service logger. Model-generated SQL is
// logged at Info so it can be audited, failures at Error, slow statements at
// Warn. Record-not-found is not an error.
type sqlLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

var _ gormlogger.Interface = (*sqlLogger)(nil)

func newSQLLogger(level gormlogger.LogLevel, slow time.Duration) *sqlLogger {
	return &sqlLogger{level: level, slow: slow}
}

func (l *sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &sqlLogger{level: level, slow: l.slow}
}

func (l *sqlLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.Global().WithCtx(ctx).Infof(msg, args...)
	}
}

func (l *sqlLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.Global().WithCtx(ctx).Warnf(msg, args...)
	}
}

func (l *sqlLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.Global().WithCtx(ctx).Errorf(msg, args...)
	}
}

func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}

	elapsed := time.Since(begin)
	log := logger.Global().WithCtx(ctx)
	fields := func() []interface{} {
		sql, rows := fc()
		return []interface{}{"sql", sql, "rows", rows, "elapsed", elapsed.String()}
	}

	switch {
	case err != nil && l.level >= gormlogger.Error:
		log.Errorw("sql failed", append(fields(), "error", err.Error())...)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		log.Warnw("slow sql", fields()...)
	case l.level >= gormlogger.Info:
		log.Infow("sql executed", fields()...)
	}
}
