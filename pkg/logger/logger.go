package logger

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

type Option func(*logrus.Logger)

// WithFile tees the log into a rotating file next to stderr.
func WithFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(l *logrus.Logger) {
		if path == "" {
			return
		}
		l.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}))
	}
}

// WithLevel overrides the level picked from the environment.
func WithLevel(level string) Option {
	return func(l *logrus.Logger) {
		if level == "" {
			return
		}
		if lvl, err := logrus.ParseLevel(level); err == nil {
			l.SetLevel(lvl)
		}
	}
}

// Init configures the process logger: text + debug in development, json + info elsewhere.
func Init(env string, opts ...Option) {
	log.SetOutput(os.Stderr)
	if env == "development" || env == "" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	}
	for _, opt := range opts {
		opt(log)
	}
}

// Logger exposes the underlying logrus logger for libraries that want a FieldLogger.
func Logger() *logrus.Logger {
	return log
}

func Debug(msg string, kv ...any) {
	log.WithFields(fields(kv)).Debug(msg)
}

func Info(msg string, kv ...any) {
	log.WithFields(fields(kv)).Info(msg)
}

func Warn(msg string, kv ...any) {
	log.WithFields(fields(kv)).Warn(msg)
}

func Error(msg string, kv ...any) {
	log.WithFields(fields(kv)).Error(msg)
}

func Fatal(msg string, kv ...any) {
	log.WithFields(fields(kv)).Fatal(msg)
}

// fields turns alternating key/value pairs into logrus fields. A lone error
// is logged under "error"; any other unpaired value under "arg<i>".
func fields(kv []any) logrus.Fields {
	out := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i++ {
		key, ok := kv[i].(string)
		if !ok || i+1 >= len(kv) {
			if err, isErr := kv[i].(error); isErr {
				out[logrus.ErrorKey] = err
			} else {
				out[fmt.Sprintf("arg%d", i)] = kv[i]
			}
			continue
		}
		out[key] = kv[i+1]
		i++
	}
	return out
}

type ctxKey string

const runIDKey ctxKey = "run_id"

func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithContext returns an entry carrying the run id stored in ctx, if any.
func WithContext(ctx context.Context) *logrus.Entry {
	entry := log.WithContext(ctx)
	if id := RunIDFromContext(ctx); id != "" {
		entry = entry.WithField("run_id", id)
	}
	return entry
}
