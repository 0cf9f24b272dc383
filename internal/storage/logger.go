package storage

import (
	"context"
	"errors"
	"time"

	"fetchbridge/internal/ctxkeys"
	applog "fetchbridge/internal/logger"

	"gorm.io/gorm/logger"
)

// GormLogger 把 GORM 日志转到项目 logger
type GormLogger struct {
	log      applog.Logger
	LogLevel logger.LogLevel
	slow     time.Duration
}

// NewGormLogger 创建新的GormLogger实例
func NewGormLogger(l applog.Logger) *GormLogger {
	return &GormLogger{
		log:      l,
		LogLevel: logger.Warn,
		slow:     200 * time.Millisecond,
	}
}

// LogMode 设置日志级别
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.log.Info(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.log.Warn(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.log.Error(msg, "traceId", ctxkeys.TraceID(ctx), "data", data)
	}
}

// Trace 打印SQL日志
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"traceId", ctxkeys.TraceID(ctx),
		"sql", sql,
		"rows", rows,
		"timeMs", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && l.LogLevel >= logger.Error:
		l.log.Err(err, "记录库查询失败", fields...)
	case elapsed > l.slow && l.LogLevel >= logger.Warn:
		l.log.Warn("记录库慢查询", append(fields, "threshold", l.slow.String())...)
	case l.LogLevel == logger.Info:
		l.log.Debug("记录库查询", fields...)
	}
}
