package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/metrics"
	"github.com/EgorLis/voicebot/internal/voice"
)

var slashCommands = []*discordgo.ApplicationCommand{
	{Name: "join", Description: "Зайти в твой голосовой канал и начать разговор"},
	{Name: "leave", Description: "Выйти из голосового канала"},
	{Name: "save", Description: "Сохранить последние реплики в архив"},
	{Name: "status", Description: "Состояние голосовой сессии"},
}

// registerCommands: в режиме разработки — на один сервер, иначе глобально.
func (bot *VoiceBot) registerCommands() {
	appID := bot.dg.State.User.ID
	guildID := ""
	if bot.settings.Discord.DevelopmentMode {
		guildID = bot.settings.Discord.GuildID
		if guildID == "" {
			bot.log.Warn("development mode without guild id, slash commands not registered")
			return
		}
	}
	cmds, err := bot.dg.ApplicationCommandBulkOverwrite(appID, guildID, slashCommands)
	if err != nil {
		bot.metrics.Error(metrics.StageGateway)
		bot.log.Error("failed to register slash commands", zap.String("guild", guildID), zap.Error(err))
		return
	}
	scope := "global"
	if guildID != "" {
		scope = "guild " + guildID
	}
	bot.log.Info("slash commands registered", zap.Int("count", len(cmds)), zap.String("scope", scope))
}

func (bot *VoiceBot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	bot.log.Info("logged in", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
}

func (bot *VoiceBot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	text := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(text, "!") {
		return
	}
	bot.log.Debug("text command", zap.String("user", m.Author.Username), zap.String("text", text))

	reply, err := bot.HandleCommand(bot.ctx, Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
	}, text)
	if err != nil {
		reply = fmt.Sprintf("err: %v", err)
	}
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		bot.metrics.Error(metrics.StageGateway)
		bot.log.Warn("failed to send message", zap.Error(err))
	}
}

func (bot *VoiceBot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	userID := ""
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	}
	log := bot.log.With(zap.String("command", name), zap.String("guild", i.GuildID), zap.String("user", userID))

	// join может занять больше 3 секунд — отвечаем отложенно
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		bot.metrics.Error(metrics.StageGateway)
		log.Warn("failed to ack interaction", zap.Error(err))
		return
	}

	req := Request{GuildID: i.GuildID, ChannelID: i.ChannelID, UserID: userID}
	var reply string
	switch name {
	case "join":
		reply, err = bot.cmdJoin(bot.ctx, req)
	case "leave":
		reply, err = bot.cmdLeave(req)
	case "save":
		reply, err = bot.cmdSave(req)
	case "status":
		reply = bot.cmdStatus(req)
	default:
		err = fmt.Errorf("unknown command %q", name)
	}
	if err != nil {
		reply = fmt.Sprintf("err: %v", err)
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		bot.metrics.Error(metrics.StageGateway)
		log.Warn("failed to answer interaction", zap.Error(err))
	}
}

// бота выгнали из канала (или канал удалили) — чистим сессию
func (bot *VoiceBot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vs.UserID != s.State.User.ID || vs.ChannelID != "" {
		return
	}
	if bot.session(vs.GuildID) == nil {
		return
	}
	bot.log.Info("bot was disconnected from voice", zap.String("guild", vs.GuildID))
	go func() {
		if _, err := bot.leave(vs.GuildID); err != nil {
			bot.log.Warn("voice cleanup", zap.String("guild", vs.GuildID), zap.Error(err))
		}
	}()
}

func (bot *VoiceBot) discordUserChannel(guildID, userID string) (string, error) {
	vs, err := bot.dg.State.VoiceState(guildID, userID)
	if err != nil {
		return "", err
	}
	return vs.ChannelID, nil
}

func (bot *VoiceBot) discordJoinVoice(guildID, channelID string) (voice.Link, error) {
	vc, err := bot.dg.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, err
	}
	return newDiscordLink(vc, bot.log), nil
}

// routeDiscordLogs перенаправляет внутренний лог discordgo в zap.
func routeDiscordLogs(log *zap.Logger) {
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			log.Error(msg)
		case discordgo.LogWarning:
			log.Warn(msg)
		case discordgo.LogInformational:
			log.Info(msg)
		default:
			log.Debug(msg)
		}
	}
}

// ========================= voice link =========================

// discordLink — voice.Link поверх discordgo.VoiceConnection.
// SSRC -> пользователь берётся из событий Speaking.
type discordLink struct {
	vc  *discordgo.VoiceConnection
	log *zap.Logger

	packets chan voice.Packet
	done    chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	users map[uint32]string
}

func newDiscordLink(vc *discordgo.VoiceConnection, log *zap.Logger) *discordLink {
	l := &discordLink{
		vc:      vc,
		log:     log.Named("link").With(zap.String("guild", vc.GuildID)),
		packets: make(chan voice.Packet, 64),
		done:    make(chan struct{}),
		users:   make(map[uint32]string),
	}
	vc.AddHandler(l.onSpeaking)
	go l.pump()
	return l
}

func (l *discordLink) onSpeaking(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	l.mu.Lock()
	l.users[uint32(vs.SSRC)] = vs.UserID
	l.mu.Unlock()
}

func (l *discordLink) user(ssrc uint32) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[ssrc]
}

func (l *discordLink) pump() {
	defer close(l.packets)
	for {
		select {
		case <-l.done:
			return
		case p, ok := <-l.vc.OpusRecv:
			if !ok {
				return
			}
			// тишину и пакеты неизвестных говорящих отбрасываем
			if p == nil || len(p.Opus) == 0 {
				continue
			}
			userID := l.user(p.SSRC)
			if userID == "" {
				continue
			}
			select {
			case l.packets <- voice.Packet{UserID: userID, Opus: p.Opus}:
			case <-l.done:
				return
			}
		}
	}
}

func (l *discordLink) Packets() <-chan voice.Packet { return l.packets }

func (l *discordLink) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case l.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return voice.ErrClosed
	}
}

func (l *discordLink) Speaking(on bool) error {
	return l.vc.Speaking(on)
}

func (l *discordLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.vc.Speaking(false)
		err = l.vc.Disconnect()
	})
	return err
}
