package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "marketplace-be"

// base is the process logger every request-scoped logger derives from.
var base *zap.Logger

// Init sets the process logger for env. An empty or unknown level keeps the env default
// (info in production, debug elsewhere).
func Init(env, level string) {
	cfg := configFor(env)

	badLevel := false
	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		} else {
			badLevel = true
		}
	}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		panic(err)
	}
	base = l.With(zap.String("service", serviceName))

	if badLevel {
		base.Warn("ignoring invalid LOG_LEVEL", zap.String("level", level))
	}
}

func configFor(env string) zap.Config {
	if env != "production" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Every webhook failure line is kept.
	cfg.Sampling = nil
	return cfg
}

// L is the process logger. Code that has a context should use FromCtx instead.
func L() *zap.Logger {
	if base == nil {
		Init(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	}
	return base
}

// Replace installs l until the returned func is called. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	prev := base
	base = l
	return func() { base = prev }
}

func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
