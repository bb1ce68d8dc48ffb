package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// defaultSlowQuery is used when Config.SlowQuery is zero.
const defaultSlowQuery = 200 * time.Millisecond

// zapGORMLogger routes GORM's internal messages (statements, slow queries,
// errors) through the application's zap logger.
type zapGORMLogger struct {
	log       *zap.Logger
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

// newZapGORMLogger returns a gormlogger.Interface backed by log. A zero level
// means gormlogger.Warn; a negative slowQuery disables slow query warnings.
func newZapGORMLogger(log *zap.Logger, level gormlogger.LogLevel, slowQuery time.Duration) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	if slowQuery == 0 {
		slowQuery = defaultSlowQuery
	}
	return &zapGORMLogger{
		log:       log.Named("gorm").WithOptions(zap.AddCallerSkip(3)),
		level:     level,
		slowQuery: slowQuery,
	}
}

// LogMode implements gormlogger.Interface. db.Debug() uses it to raise the
// level for a single statement.
func (l *zapGORMLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *zapGORMLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGORMLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGORMLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs one statement. gorm.ErrRecordNotFound is an ordinary lookup
// miss for the repositories and is never logged as an error.
func (l *zapGORMLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("caller", utils.FileWithLineNum()),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.log.Error("query failed", append(fields, zap.Error(err))...)
	case l.slowQuery > 0 && elapsed > l.slowQuery && l.level >= gormlogger.Warn:
		l.log.Warn("slow query", fields...)
	case l.level >= gormlogger.Info:
		l.log.Debug("query", fields...)
	}
}
