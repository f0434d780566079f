// Package logging собирает zap-логгер приложения.
package logging

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/EgorLis/voicebot/internal/config"
)

// New: debug — человекочитаемый консольный вывод, иначе JSON с уровня info.
func New(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return cfg.Build()
}

var Module = fx.Module("logging",
	fx.Provide(func(s *config.Settings) (*zap.Logger, error) { return New(s.Log.Debug) }),
)

// FxLogger пишет события fx через тот же zap, только в debug.
func FxLogger(log *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: log.Named("fx")}
	l.UseLogLevel(zapcore.DebugLevel)
	return l
}
