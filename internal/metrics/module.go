package metrics

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/config"
)

var Module = fx.Module("metrics",
	fx.Provide(func() *Metrics { return New("voicebot") }),
	fx.Provide(func(s *config.Settings, m *Metrics, log *zap.Logger) *Server {
		return NewServer(s.Metrics.Addr, m, log)
	}),
	fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return srv.Start()
			},
			OnStop: srv.Stop,
		})
	}),
)
