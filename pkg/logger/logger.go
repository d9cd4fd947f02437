package logger

import (
	"fmt"

	"github.com/cozy-creator/sticker-server/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// NewLogger picks the zap preset for the configured environment.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch cfg.Environment {
	case "prod", "production":
		l, err = zap.NewProduction()
	case "test":
		l = zap.NewExample()
	default:
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}

	return l.Named("sticker"), nil
}

func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger = l
	return logger, nil
}

// GetLogger returns the process logger, or a no-op logger when InitLogger
// was never called.
func GetLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func makeFields(inputs []interface{}) []zapcore.Field {
	extras := make([]zapcore.Field, 0, len(inputs))
	for i, field := range inputs {
		if f, ok := field.(zapcore.Field); ok {
			extras = append(extras, f)
			continue
		}
		extras = append(extras, zap.Any(fmt.Sprintf("%d", i), field))
	}

	return extras
}

func Error(msg string, fields ...interface{}) {
	GetLogger().Error(msg, makeFields(fields)...)
}

func Info(msg string, fields ...interface{}) {
	GetLogger().Info(msg, makeFields(fields)...)
}
