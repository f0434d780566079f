package config

import "go.uber.org/fx"

// Module отдаёт настройки и рантайм-состояние в контейнер.
// *Settings кладётся снаружи через fx.Supply.
var Module = fx.Module("config",
	fx.Provide(func(s *Settings) (*Store, error) {
		return OpenStore(s.StatePath, State{Prompt: s.Gemini.SystemPrompt, Gain: s.Audio.Gain})
	}),
)
