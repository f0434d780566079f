package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/voicebot/internal/metrics"
)

// Responder отвечает текстом на фразу (16 kHz mono s16le).
type Responder interface {
	Send(ctx context.Context, guildID string, pcm []byte) (string, error)
}

// Synthesizer превращает текст в звук.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcoder переводит звук между форматом Discord, форматом модели и
// тем, что отдаёт TTS.
type Transcoder interface {
	ToModelInput(ctx context.Context, pcm []byte) ([]byte, error)
	ToPlayback(ctx context.Context, clip []byte) ([]byte, error)
}

// Processor берёт фразы из InputQueue: Gemini вызывается синхронно (по одной
// фразе за раз), TTS — асинхронно на ограниченном пуле.
type Processor struct {
	guildID   string
	in        *InputQueue
	out       *PlaybackQueue
	responder Responder
	tts       Synthesizer
	tc        Transcoder
	gain      func() float64
	history   *History
	metrics   *metrics.Metrics
	log       *zap.Logger

	workers errgroup.Group
}

type ProcessorConfig struct {
	GuildID     string
	Input       *InputQueue
	Output      *PlaybackQueue
	Responder   Responder
	Synthesizer Synthesizer
	Transcoder  Transcoder
	// текущий коэффициент усиления входа; nil — 1.0
	Gain    func() float64
	History *History
	Workers int
	Metrics *metrics.Metrics
}

func NewProcessor(cfg ProcessorConfig, log *zap.Logger) *Processor {
	p := &Processor{
		guildID:   cfg.GuildID,
		in:        cfg.Input,
		out:       cfg.Output,
		responder: cfg.Responder,
		tts:       cfg.Synthesizer,
		tc:        cfg.Transcoder,
		gain:      cfg.Gain,
		history:   cfg.History,
		metrics:   cfg.Metrics,
		log:       log.Named("processor").With(zap.String("guild", cfg.GuildID)),
	}
	if p.gain == nil {
		p.gain = func() float64 { return 1 }
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	p.workers.SetLimit(workers)
	return p
}

// Run обрабатывает очередь до отмены ctx, затем дожидается TTS-задач.
func (p *Processor) Run(ctx context.Context) {
	defer p.Wait()
	for {
		u, err := p.in.Next(ctx)
		if err != nil {
			return
		}
		p.process(ctx, u)
	}
}

// ProcessNext обрабатывает одну фразу, если она есть. false — очередь пуста.
func (p *Processor) ProcessNext(ctx context.Context) bool {
	u, ok := p.in.Dequeue()
	if !ok {
		return false
	}
	p.process(ctx, u)
	return true
}

// Wait ждёт завершения запущенных TTS-задач.
func (p *Processor) Wait() {
	_ = p.workers.Wait()
}

func (p *Processor) process(ctx context.Context, u Utterance) {
	log := p.log.With(zap.String("user", u.UserID), zap.String("utterance", u.ID))
	log.Info("processing utterance", zap.Int("bytes", len(u.PCM)), zap.Duration("length", u.Duration()))

	input, err := p.prepare(ctx, u.PCM)
	if err != nil {
		p.metrics.Error(metrics.StagePrepare)
		log.Warn("failed to prepare audio", zap.Error(err))
		return
	}

	started := time.Now()
	reply, err := p.responder.Send(ctx, u.GuildID, input)
	p.metrics.ObserveGemini(time.Since(started))
	if err != nil {
		p.metrics.Error(metrics.StageGemini)
		if !errors.Is(err, context.Canceled) {
			log.Warn("no reply from gemini", zap.Error(err))
		}
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Debug("empty reply, skipping")
		return
	}
	log.Info("gemini reply", zap.String("text", reply))

	if p.history != nil {
		p.history.Add(Exchange{
			UtteranceID: u.ID,
			GuildID:     u.GuildID,
			UserID:      u.UserID,
			StartedAt:   u.StartedAt,
			EndedAt:     u.EndedAt,
			PCM:         input,
			Reply:       reply,
		})
	}

	p.workers.Go(func() error {
		p.synthesize(ctx, u, reply)
		return nil
	})
}

func (p *Processor) prepare(ctx context.Context, pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("пустой звук")
	}
	out, err := p.tc.ToModelInput(ctx, ApplyGain(pcm, p.gain()))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("транскодер вернул пустые данные")
	}
	return out, nil
}

func (p *Processor) synthesize(ctx context.Context, u Utterance, text string) {
	log := p.log.With(zap.String("user", u.UserID), zap.String("utterance", u.ID))
	started := time.Now()
	audio, err := p.tts.Synthesize(ctx, text)
	p.metrics.ObserveTTS(time.Since(started))
	if err != nil {
		p.metrics.Error(metrics.StageTTS)
		if !errors.Is(err, context.Canceled) {
			log.Warn("tts failed", zap.Error(err))
		}
		return
	}
	if len(audio) == 0 {
		p.metrics.Error(metrics.StageTTS)
		log.Warn("tts returned no audio")
		return
	}
	n := p.out.Enqueue(Clip{
		ID:          uuid.NewString(),
		UtteranceID: u.ID,
		UserID:      u.UserID,
		Text:        text,
		Audio:       audio,
	})
	p.metrics.Reply(p.guildID)
	p.metrics.QueueDepth(p.guildID, n)
	log.Info("reply queued for playback", zap.Int("queue", n))
}
