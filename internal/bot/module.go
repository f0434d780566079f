package bot

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/config"
	"github.com/EgorLis/voicebot/internal/gemini"
	"github.com/EgorLis/voicebot/internal/metrics"
	"github.com/EgorLis/voicebot/internal/transcode"
	"github.com/EgorLis/voicebot/internal/tts"
	"github.com/EgorLis/voicebot/internal/voice"
)

type moduleParams struct {
	fx.In

	Settings *config.Settings
	Store    *config.Store
	Gemini   *gemini.SessionManager
	TTS      *tts.Client
	FFmpeg   *transcode.FFmpeg
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

var Module = fx.Module("bot",
	fx.Provide(func(p moduleParams) (*VoiceBot, error) {
		return New(Params{
			Settings:   p.Settings,
			Store:      p.Store,
			Gemini:     p.Gemini,
			TTS:        p.TTS,
			Transcoder: p.FFmpeg,
			Codec:      voice.OpusCodec{},
			Metrics:    p.Metrics,
			Logger:     p.Logger,
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, b *VoiceBot) {
		lc.Append(fx.Hook{
			OnStart: b.Start,
			OnStop:  b.Stop,
		})
	}),
)
