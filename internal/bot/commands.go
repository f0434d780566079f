package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/archive"
	"github.com/EgorLis/voicebot/internal/metrics"
	"github.com/EgorLis/voicebot/internal/voice"
)

// сплит с поддержкой кавычек: !prompt "говори коротко"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// Request — кто и откуда вызвал команду.
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
}

// HandleCommand выполняет текстовую команду и возвращает ответ для чата.
func (bot *VoiceBot) HandleCommand(ctx context.Context, req Request, text string) (string, error) {
	fields := splitArgs(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {

	case "!help":
		return strings.Join([]string{
			"!help",
			"!join — зайти в твой голосовой канал",
			"!leave — выйти из канала",
			"!save — сохранить последние реплики",
			"!status",
			"!prompt [текст|reset] — системная инструкция",
			"!gain [x] — усиление микрофона, 0 < x <= 10",
		}, "\n"), nil

	case "!join":
		return bot.cmdJoin(ctx, req)

	case "!leave":
		return bot.cmdLeave(req)

	case "!save":
		return bot.cmdSave(req)

	case "!status":
		return bot.cmdStatus(req), nil

	// ---------- PROMPT ----------
	case "!prompt":
		if len(args) == 0 {
			return "prompt: " + bot.store.Prompt(), nil
		}
		p := strings.Join(args, " ")
		if strings.EqualFold(p, "reset") {
			p = ""
		}
		if err := bot.store.SetPrompt(p); err != nil {
			return "", err
		}
		return "prompt updated (применится к следующему /join)", nil

	// ---------- GAIN ----------
	case "!gain":
		if len(args) == 0 {
			return fmt.Sprintf("gain: %.2f", bot.store.Gain()), nil
		}
		kv := parseKV(args)
		raw := args[0]
		if v, ok := kv["value"]; ok {
			raw = v
		}
		g, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("usage: !gain <x>, 0 < x <= 10")
		}
		if err := bot.store.SetGain(g); err != nil {
			return "", err
		}
		return fmt.Sprintf("gain set: %.2f", g), nil

	default:
		return "", fmt.Errorf("unknown command. try !help")
	}
}

func (bot *VoiceBot) cmdJoin(ctx context.Context, req Request) (string, error) {
	channelID, err := bot.join(ctx, req.GuildID, req.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("подключился к <#%s>", channelID), nil
}

func (bot *VoiceBot) cmdLeave(req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrNotInGuild
	}
	ok, err := bot.leave(req.GuildID)
	if err != nil {
		bot.log.Warn("voice disconnect", zap.String("guild", req.GuildID), zap.Error(err))
	}
	if !ok {
		return "", ErrNoVoice
	}
	return "отключился", nil
}

func (bot *VoiceBot) cmdSave(req Request) (string, error) {
	if req.GuildID == "" {
		return "", ErrNotInGuild
	}
	if err := bot.store.Save(); err != nil {
		bot.log.Warn("failed to save state", zap.Error(err))
	}
	sess := bot.session(req.GuildID)
	if sess == nil {
		return "", ErrNoVoice
	}
	history := sess.History()
	if len(history) == 0 {
		return "", fmt.Errorf("пока нечего сохранять")
	}
	path, err := archive.Save(bot.settings.Audio.ArchiveDir, req.GuildID, toRecords(history))
	if err != nil {
		bot.metrics.Error(metrics.StageArchive)
		return "", err
	}
	bot.log.Info("archive saved", zap.String("guild", req.GuildID), zap.String("path", path), zap.Int("records", len(history)))
	return fmt.Sprintf("saved %d: %s", len(history), filepath.Base(path)), nil
}

func (bot *VoiceBot) cmdStatus(req Request) string {
	geminiLine := fmt.Sprintf("gemini sessions: %d", bot.gemini.ActiveCount())
	sess := bot.session(req.GuildID)
	if sess == nil {
		return fmt.Sprintf("voice: not connected | %s | connections: %d", geminiLine, bot.voiceCount())
	}
	st := sess.Status()
	playing := "idle"
	if st.Playing {
		playing = "playing"
	}
	return fmt.Sprintf("voice: <#%s> | speaking: %d | input: %d | playback: %d (%s) | history: %d | %s",
		st.ChannelID, st.Pending, st.Input, st.Playback, playing, st.History, geminiLine)
}

func toRecords(history []voice.Exchange) []archive.Record {
	out := make([]archive.Record, 0, len(history))
	for _, e := range history {
		out = append(out, archive.Record{
			ID:         e.UtteranceID,
			GuildID:    e.GuildID,
			UserID:     e.UserID,
			StartedAt:  e.StartedAt,
			EndedAt:    e.EndedAt,
			SampleRate: voice.ModelSampleRate,
			Channels:   voice.ModelChannels,
			PCM:        e.PCM,
			Reply:      e.Reply,
		})
	}
	return out
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}

func parseKV(args []string) map[string]string {
	res := map[string]string{}
	for _, a := range args {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) == 2 {
			res[strings.ToLower(kv[0])] = kv[1]
		}
	}
	return res
}
