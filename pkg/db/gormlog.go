package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger routes GORM's own logging into the service logger. Only slow
// statements and real failures are reported; not-found is an expected
// outcome for lookups.
type gormLogger struct {
	logg  *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger(logg *logger.Logger) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg, level: gormlogger.Warn, slow: slowQueryThreshold}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && elapsed > g.slow
	if !failed && !slow {
		return
	}
	sql, rows := fc()
	fctx := g.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	switch {
	case failed && g.level >= gormlogger.Error:
		g.logg.Warn(fctx, "sql statement failed")
	case slow && g.level >= gormlogger.Warn:
		g.logg.Warn(fctx, "slow sql statement")
	}
}
