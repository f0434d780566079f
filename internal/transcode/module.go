package transcode

import (
	"go.uber.org/fx"

	"github.com/EgorLis/voicebot/internal/config"
)

var Module = fx.Module("transcode",
	fx.Provide(func(s *config.Settings) *FFmpeg { return New(s.Audio.FFmpegPath) }),
)
