package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitZap builds the service logger: colored console output on stdout,
// plus any extra sink paths (e.g. a log file from the config).
func InitZap(extraPaths ...string) *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cfg := zap.Config{
		Encoding:         "console",
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		OutputPaths:      append([]string{"stdout"}, extraPaths...),
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encoderCfg,
	}
	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize Zap logger: " + err.Error())
	}
	return logger
}
