package logging

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
	mu    sync.RWMutex
)

// callerOpts skip one frame so callers, not this package, are reported.
// Every exported log function must reach the zap logger in exactly one call.
var callerOpts = []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}

// Logger is the structured logging surface used across the bot. Calls take
// a message and alternating key/value pairs.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
	Sync() error
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}
func (noopLogger) Fatalw(string, ...interface{}) {}
func (noopLogger) Sync() error                   { return nil }

// current starts as a no-op so packages can log before main calls Init.
var current Logger = noopLogger{}

// Init builds the process logger from LOG_LEVEL and routes the standard
// library logger through it. Repeated calls return the same logger.
func Init() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.Config{
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
			Level:            zap.NewAtomicLevelAt(levelFromEnv()),
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"

		logger, err := cfg.Build(append(callerOpts, zap.AddStacktrace(zap.ErrorLevel))...)
		if err != nil {
			logger = zap.NewExample()
		}
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
		SetLogger(sugar)
	})
	return sugar
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// SetLogger swaps the package logger. nil restores the Init logger, or the
// no-op logger if Init was never called. Tests use this to capture output.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case l != nil:
		current = l
	case sugar != nil:
		current = sugar
	default:
		current = noopLogger{}
	}
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Infow(msg string, keysAndValues ...interface{})  { get().Infow(msg, keysAndValues...) }
func Debugw(msg string, keysAndValues ...interface{}) { get().Debugw(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { get().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { get().Errorw(msg, keysAndValues...) }

// FatalExitf logs at fatal level and exits with status 1.
func FatalExitf(msg string, keysAndValues ...interface{}) {
	get().Fatalw(msg, keysAndValues...)
	os.Exit(1)
}

// Sync flushes buffered entries.
func Sync() error { return get().Sync() }

type ctxKey struct{}

// WithFields attaches key/value pairs to ctx. Pairs already on ctx are kept
// and the new ones appended after them.
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	prev := FromContext(ctx)
	merged := make([]interface{}, 0, len(prev)+len(kv))
	merged = append(merged, prev...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// FromContext returns the pairs stored by WithFields.
func FromContext(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(ctxKey{}).([]interface{})
	return v
}

func merge(ctx context.Context, kv []interface{}) []interface{} {
	fields := FromContext(ctx)
	if len(fields) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(fields)+len(kv))
	out = append(out, fields...)
	return append(out, kv...)
}

func InfowCtx(ctx context.Context, msg string, kv ...interface{})  { get().Infow(msg, merge(ctx, kv)...) }
func DebugwCtx(ctx context.Context, msg string, kv ...interface{}) { get().Debugw(msg, merge(ctx, kv)...) }
func WarnwCtx(ctx context.Context, msg string, kv ...interface{})  { get().Warnw(msg, merge(ctx, kv)...) }
func ErrorwCtx(ctx context.Context, msg string, kv ...interface{}) { get().Errorw(msg, merge(ctx, kv)...) }

// UserFields returns canonical keys for a Discord user.
func UserFields(userID, displayName string) []interface{} {
	if displayName == "" {
		return []interface{}{"user.id", userID}
	}
	return []interface{}{"user.id", userID, "user.name", displayName}
}

func GuildFields(guildID string) []interface{} {
	return []interface{}{"guild.id", guildID}
}

func ChannelFields(channelID string) []interface{} {
	return []interface{}{"channel.id", channelID}
}
