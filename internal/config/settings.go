package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid — настройки не прошли валидацию.
var ErrInvalid = errors.New("invalid settings")

// DefaultPrompt — системная инструкция для Gemini, если в конфиге пусто.
const DefaultPrompt = "女子高校生,敬語ではなく砕けたかんじで,1~2文ぐらいで短く,会話がつながるようにして,絵文字は使わないで,アルファベットは読み上げられないから、カタカナにして"

// Duration читается из JSON строкой вида "2s", "100ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// допускаем число наносекунд
		var n int64
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("duration: %w", err)
		}
		d.Duration = time.Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

type DiscordConf struct {
	Token           string `json:"token"`
	GuildID         string `json:"guild_id"`
	DevelopmentMode bool   `json:"development_mode"`
}

type GeminiConf struct {
	APIKey       string   `json:"api_key"`
	Model        string   `json:"model"`
	Endpoint     string   `json:"endpoint"`
	ReplyTimeout Duration `json:"reply_timeout"`
	SystemPrompt string   `json:"system_prompt"`
}

type TTSConf struct {
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
	Retries uint64   `json:"retries"`
	Workers int      `json:"workers"`
}

type AudioConf struct {
	// период проверки накопленных данных
	LoopInterval Duration `json:"loop_interval"`
	// тишина, после которой фраза считается законченной
	ConversationGap Duration `json:"conversation_gap"`
	// максимальная длина одной фразы
	TalkMax     Duration `json:"talk_max"`
	Gain        float64  `json:"gain"`
	FFmpegPath  string   `json:"ffmpeg_path"`
	ArchiveDir  string   `json:"archive_dir"`
	HistorySize int      `json:"history_size"`
}

type LifecycleConf struct {
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

type MetricsConf struct {
	Addr string `json:"addr"`
}

type LogConf struct {
	Debug bool `json:"debug"`
}

type Settings struct {
	Discord   DiscordConf   `json:"discord"`
	Gemini    GeminiConf    `json:"gemini"`
	TTS       TTSConf       `json:"tts"`
	Audio     AudioConf     `json:"audio"`
	Lifecycle LifecycleConf `json:"lifecycle"`
	Metrics   MetricsConf   `json:"metrics"`
	Log       LogConf       `json:"log"`
	StatePath string        `json:"state_path"`
}

func Defaults() Settings {
	return Settings{
		Gemini: GeminiConf{
			Model:        "gemini-2.0-flash-live-001",
			Endpoint:     "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
			ReplyTimeout: Duration{15 * time.Second},
			SystemPrompt: DefaultPrompt,
		},
		TTS: TTSConf{
			Timeout: Duration{30 * time.Second},
			Retries: 2,
			Workers: 2,
		},
		Audio: AudioConf{
			LoopInterval:    Duration{100 * time.Millisecond},
			ConversationGap: Duration{2 * time.Second},
			TalkMax:         Duration{10 * time.Second},
			Gain:            1.0,
			FFmpegPath:      "ffmpeg",
			ArchiveDir:      "audio",
			HistorySize:     20,
		},
		Lifecycle: LifecycleConf{ShutdownTimeout: Duration{30 * time.Second}},
		StatePath: "conf/botstate.json",
	}
}

// Load собирает настройки: значения по умолчанию -> JSON-файл -> переменные
// окружения (в т.ч. из envFile). Отсутствующие файлы не считаются ошибкой.
func Load(path, envFile string) (*Settings, error) {
	s := Defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(b, &s); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			// godotenv не перетирает уже выставленные переменные
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("env %s: %w", envFile, err)
			}
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DISCORD_TOKEN", &s.Discord.Token)
	str("DISCORD_GUILD_ID", &s.Discord.GuildID)
	str("GEMINI_API_KEY", &s.Gemini.APIKey)
	str("GEMINI_MODEL", &s.Gemini.Model)
	str("TTS_SERVER_URL", &s.TTS.URL)
	str("METRICS_ADDR", &s.Metrics.Addr)

	if v, ok := os.LookupEnv("DEVELOPMENT_MODE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DEVELOPMENT_MODE=%q", ErrInvalid, v)
		}
		s.Discord.DevelopmentMode = b
	}
	return nil
}

func (s *Settings) Validate() error {
	var errs []error
	if s.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("%w: discord.token не задан", ErrInvalid))
	}
	if s.Gemini.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: gemini.api_key не задан", ErrInvalid))
	}
	if s.Gemini.Model == "" {
		errs = append(errs, fmt.Errorf("%w: gemini.model не задан", ErrInvalid))
	}
	if s.TTS.URL == "" {
		errs = append(errs, fmt.Errorf("%w: tts.url не задан", ErrInvalid))
	}
	if s.Gemini.ReplyTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%w: gemini.reply_timeout должен быть > 0", ErrInvalid))
	}
	if s.Audio.LoopInterval.Duration <= 0 || s.Audio.ConversationGap.Duration <= 0 || s.Audio.TalkMax.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%w: audio.* интервалы должны быть > 0", ErrInvalid))
	}
	if s.Audio.Gain <= 0 {
		errs = append(errs, fmt.Errorf("%w: audio.gain должен быть > 0", ErrInvalid))
	}
	if s.TTS.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: tts.workers должен быть >= 1", ErrInvalid))
	}
	return errors.Join(errs...)
}
