package gemini

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/config"
	"github.com/EgorLis/voicebot/internal/metrics"
)

var Module = fx.Module("gemini",
	fx.Provide(func(s *config.Settings, store *config.Store, m *metrics.Metrics, log *zap.Logger) *SessionManager {
		return NewSessionManager(Config{
			Endpoint:     s.Gemini.Endpoint,
			APIKey:       s.Gemini.APIKey,
			Model:        s.Gemini.Model,
			ReplyTimeout: s.Gemini.ReplyTimeout.Duration,
			Prompt:       store.Prompt,
		}, m, log)
	}),
	fx.Invoke(func(lc fx.Lifecycle, sm *SessionManager) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				sm.ShutdownAll()
				return nil
			},
		})
	}),
)
