package logger

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// RequestIDKey is the context key the request-id middleware stores its value under.
const RequestIDKey ctxKey = "request_id"

var (
	settingsMu sync.RWMutex
	appEnv     = "development"
	levelName  = ""
)

// Configure sets the environment and optional level name ("debug", "info",
// "warn", "error") used by loggers created afterwards.
func Configure(env, level string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if env != "" {
		appEnv = env
	}
	levelName = level
}

// Logger represents a structured logger
type Logger struct {
	*zap.SugaredLogger
	serviceName string
}

// NewLogger creates a new logger instance for a specific service
func NewLogger(serviceName string) *Logger {
	settingsMu.RLock()
	env, lvl := appEnv, levelName
	settingsMu.RUnlock()

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// JSON for production log aggregation, console otherwise
	var encoder zapcore.Encoder
	if env == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	logLevel := zap.InfoLevel
	if env == "development" {
		logLevel = zap.DebugLevel
	}
	if lvl != "" {
		if parsed, err := zapcore.ParseLevel(lvl); err == nil {
			logLevel = parsed
		}
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		zap.NewAtomicLevelAt(logLevel),
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{
		SugaredLogger: zapLogger.Sugar().With("service", serviceName),
		serviceName:   serviceName,
	}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), serviceName: "nop"}
}

// WithContext returns a logger with request context fields added
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return &Logger{
			SugaredLogger: l.With("request_id", requestID),
			serviceName:   l.serviceName,
		}
	}
	return l
}

// WithUser returns a logger with user ID added
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{
		SugaredLogger: l.With("user_id", userID),
		serviceName:   l.serviceName,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		SugaredLogger: l.With(args...),
		serviceName:   l.serviceName,
	}
}

// Audit logs a high-importance audit event
func (l *Logger) Audit(msg string, keysAndValues ...interface{}) {
	l.With("audit", true, "timestamp", time.Now().UTC()).Infow(msg, keysAndValues...)
}

// Fatal logs a fatal-level message and then calls os.Exit(1)
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.Fatalw(msg, keysAndValues...)
}

// Error logs an error-level message
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, keysAndValues...)
}

// Warn logs a warn-level message
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, keysAndValues...)
}

// Info logs an info-level message
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// Debug logs a debug-level message
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
