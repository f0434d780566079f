package tts

import (
	"go.uber.org/fx"

	"github.com/EgorLis/voicebot/internal/config"
)

var Module = fx.Module("tts",
	fx.Provide(func(s *config.Settings) *Client {
		return NewClient(Conf{
			URL:     s.TTS.URL,
			Timeout: s.TTS.Timeout.Duration,
			Retries: s.TTS.Retries,
		})
	}),
)
