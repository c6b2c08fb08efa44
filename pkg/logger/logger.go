package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
)

type Options struct {
	ServiceName string
	Level       zerolog.Level
	// WarnStack attaches a stack trace to warnings as well as errors.
	WarnStack bool
	// Format is "json" (default) or "console".
	Format string
	Output io.Writer
}

// Logger wraps zerolog. Request-scoped fields travel on the context through
// zerolog's own context integration.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type requestIDKey struct{}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	base := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{base: base, warnStack: opts.WarnStack}
}

// FromConfig builds the process logger from the app settings.
func FromConfig(serviceName string, app config.AppConfig) *Logger {
	return New(Options{
		ServiceName: serviceName,
		Level:       ParseLevel(app.LogLevel),
		WarnStack:   app.LogWarnStack,
		Format:      app.LogFormat,
	})
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped := zerolog.Ctx(ctx); scoped.GetLevel() != zerolog.Disabled {
			return scoped
		}
	}
	return &l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.from(ctx).With().Interface(key, value).Logger().WithContext(ensure(ctx))
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.from(ctx).With().Fields(fields).Logger().WithContext(ensure(ctx))
}

// WithRequestID tags log lines with the request id and keeps it readable via
// RequestID for response envelopes.
func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ensure(ctx), requestIDKey{}, requestID)
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithSellerID(ctx context.Context, sellerID string) context.Context {
	return l.WithField(ctx, "seller_id", sellerID)
}

func (l *Logger) WithLinkID(ctx context.Context, linkID string) context.Context {
	return l.WithField(ctx, "settlement_link_id", linkID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.from(ctx).Warn()
	if l.warnStack {
		ev = ev.Str("stack", stackTrace())
	}
	ev.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stackTrace()).Msg(msg)
}

func ensure(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
