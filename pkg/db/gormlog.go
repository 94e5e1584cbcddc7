package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// gormLogger forwards slow statements and SQL errors to the service logger.
// Record-not-found is expected control flow and is never logged.
type gormLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func newGormLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg, slow: slow}
}

func (g *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return g }

func (g *gormLogger) Info(context.Context, string, ...any) {}

func (g *gormLogger) Warn(ctx context.Context, msg string, _ ...any) {
	g.logg.Warn(ctx, "gorm: "+msg)
}

func (g *gormLogger) Error(ctx context.Context, msg string, _ ...any) {
	g.logg.Error(ctx, "gorm: "+msg, nil)
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	slow := g.slow > 0 && elapsed > g.slow
	if !failed && !slow {
		return
	}

	statement, rows := fc()
	logCtx := g.logg.WithFields(ctx, map[string]any{
		"sql":         statement,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		g.logg.Error(logCtx, "sql.failed", err)
		return
	}
	g.logg.Warn(logCtx, "sql.slow")
}
