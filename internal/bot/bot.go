package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/voicebot/internal/config"
	"github.com/EgorLis/voicebot/internal/metrics"
	"github.com/EgorLis/voicebot/internal/voice"
)

var (
	ErrAlreadyConnected = errors.New("бот уже подключён к голосовому каналу (один канал на все сервера)")
	ErrNotInGuild       = errors.New("команда работает только на сервере")
	ErrNotInVoice       = errors.New("сначала зайди в голосовой канал")
	ErrNoVoice          = errors.New("бот не в голосовом канале")
)

// Sessions — Live-сессии Gemini по гильдиям.
type Sessions interface {
	Create(ctx context.Context, guildID string) error
	Remove(guildID string) bool
	Send(ctx context.Context, guildID string, pcm []byte) (string, error)
	ShutdownAll() int
	ActiveCount() int
	HasActive(guildID string) bool
}

type Params struct {
	Settings   *config.Settings
	Store      *config.Store
	Gemini     Sessions
	TTS        voice.Synthesizer
	Transcoder voice.Transcoder
	Codec      voice.Codec
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type VoiceBot struct {
	settings *config.Settings
	store    *config.Store
	gemini   Sessions
	tts      voice.Synthesizer
	tc       voice.Transcoder
	codec    voice.Codec
	metrics  *metrics.Metrics
	log      *zap.Logger

	dg *discordgo.Session

	// подменяются в тестах
	userChannel func(guildID, userID string) (string, error)
	joinVoice   func(guildID, channelID string) (voice.Link, error)

	joinMu sync.Mutex // сериализует join/leave
	mu     sync.Mutex
	voices map[string]*voice.Session

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

func New(p Params) (*VoiceBot, error) {
	if p.Settings == nil || p.Store == nil || p.Gemini == nil {
		return nil, errors.New("бот не инициализирован")
	}
	dg, err := discordgo.New("Bot " + p.Settings.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	codec := p.Codec
	if codec == nil {
		codec = voice.OpusCodec{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	bot := &VoiceBot{
		settings: p.Settings,
		store:    p.Store,
		gemini:   p.Gemini,
		tts:      p.TTS,
		tc:       p.Transcoder,
		codec:    codec,
		metrics:  p.Metrics,
		log:      log.Named("bot"),
		dg:       dg,
		voices:   make(map[string]*voice.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	bot.userChannel = bot.discordUserChannel
	bot.joinVoice = bot.discordJoinVoice
	return bot, nil
}

// Start открывает gateway, регистрирует команды и обработчики.
func (bot *VoiceBot) Start(ctx context.Context) error {
	bot.mu.Lock()
	if bot.started {
		bot.mu.Unlock()
		return errors.New("уже запущен")
	}
	bot.started = true
	bot.mu.Unlock()

	routeDiscordLogs(bot.log.Named("discordgo"))
	bot.dg.LogLevel = discordgo.LogWarning
	if bot.settings.Log.Debug {
		bot.dg.LogLevel = discordgo.LogDebug
	}

	bot.dg.AddHandler(bot.onReady)
	bot.dg.AddHandler(bot.onInteraction)
	bot.dg.AddHandler(bot.onMessage)
	bot.dg.AddHandler(bot.onVoiceStateUpdate)

	if err := bot.dg.Open(); err != nil {
		bot.metrics.Error(metrics.StageGateway)
		return fmt.Errorf("discord gateway: %w", err)
	}
	bot.registerCommands()
	return nil
}

// Stop закрывает Gemini-сессии, голосовые подключения и gateway. Идемпотентен.
func (bot *VoiceBot) Stop(ctx context.Context) error {
	bot.mu.Lock()
	if bot.stopped {
		bot.mu.Unlock()
		return nil
	}
	bot.stopped = true
	voices := bot.voices
	bot.voices = make(map[string]*voice.Session)
	bot.mu.Unlock()

	bot.log.Info("shutting down")
	n := bot.gemini.ShutdownAll()
	bot.log.Info("gemini sessions closed", zap.Int("count", n))

	var g errgroup.Group
	for guildID, s := range voices {
		g.Go(func() error {
			if err := s.Close(); err != nil {
				bot.log.Warn("voice disconnect", zap.String("guild", guildID), zap.Error(err))
			}
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		bot.log.Info("voice connections closed", zap.Int("count", len(voices)))
	case <-ctx.Done():
		bot.log.Warn("voice shutdown timed out", zap.Error(ctx.Err()))
	}
	bot.cancel()

	if err := bot.dg.Close(); err != nil {
		return fmt.Errorf("discord close: %w", err)
	}
	return nil
}

func (bot *VoiceBot) session(guildID string) *voice.Session {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.voices[guildID]
}

func (bot *VoiceBot) voiceCount() int {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return len(bot.voices)
}

// join подключает бота к голосовому каналу, в котором сидит userID.
func (bot *VoiceBot) join(ctx context.Context, guildID, userID string) (string, error) {
	if guildID == "" {
		return "", ErrNotInGuild
	}
	channelID, err := bot.userChannel(guildID, userID)
	if err != nil || channelID == "" {
		return "", ErrNotInVoice
	}

	bot.joinMu.Lock()
	defer bot.joinMu.Unlock()

	bot.mu.Lock()
	stopped := bot.stopped
	busy := len(bot.voices) > 0
	bot.mu.Unlock()
	if stopped {
		return "", errors.New("бот останавливается")
	}
	if busy {
		return "", ErrAlreadyConnected
	}

	log := bot.log.With(zap.String("guild", guildID), zap.String("channel", channelID))

	if err := bot.gemini.Create(ctx, guildID); err != nil {
		log.Error("failed to create gemini session", zap.Error(err))
		return "", fmt.Errorf("не удалось подключиться к Gemini: %w", err)
	}

	link, err := bot.joinVoice(guildID, channelID)
	if err != nil {
		bot.gemini.Remove(guildID)
		bot.metrics.Error(metrics.StageGateway)
		log.Error("failed to join voice channel", zap.Error(err))
		return "", fmt.Errorf("не удалось зайти в канал: %w", err)
	}

	a := bot.settings.Audio
	sess, err := voice.NewSession(voice.SessionConfig{
		GuildID:      guildID,
		ChannelID:    channelID,
		LoopInterval: a.LoopInterval.Duration,
		Gap:          a.ConversationGap.Duration,
		TalkMax:      a.TalkMax.Duration,
		Workers:      bot.settings.TTS.Workers,
		HistorySize:  a.HistorySize,
	}, link, bot.codec, voice.Deps{
		Responder:   bot.gemini,
		Synthesizer: bot.tts,
		Transcoder:  bot.tc,
		Gain:        bot.store.Gain,
		Metrics:     bot.metrics,
	}, bot.log)
	if err == nil {
		err = sess.Start(bot.ctx)
	}
	if err != nil {
		_ = link.Close()
		bot.gemini.Remove(guildID)
		log.Error("failed to start voice session", zap.Error(err))
		return "", err
	}

	bot.mu.Lock()
	bot.voices[guildID] = sess
	bot.mu.Unlock()

	log.Info("joined voice channel", zap.String("by", userID))
	return channelID, nil
}

// leave отключает бота от голосового канала гильдии. false — подключения не было.
func (bot *VoiceBot) leave(guildID string) (bool, error) {
	bot.joinMu.Lock()
	defer bot.joinMu.Unlock()

	bot.mu.Lock()
	sess, ok := bot.voices[guildID]
	delete(bot.voices, guildID)
	bot.mu.Unlock()

	bot.gemini.Remove(guildID)
	if !ok {
		return false, nil
	}
	err := sess.Close()
	bot.log.Info("left voice channel", zap.String("guild", guildID), zap.String("channel", sess.ChannelID()))
	return true, err
}
