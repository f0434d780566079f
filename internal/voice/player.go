package voice

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/metrics"
)

// Player проигрывает клипы из PlaybackQueue по одному.
type Player struct {
	guildID string
	queue   *PlaybackQueue
	link    Link
	enc     Encoder
	tc      Transcoder
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewPlayer(guildID string, q *PlaybackQueue, link Link, enc Encoder, tc Transcoder, m *metrics.Metrics, log *zap.Logger) *Player {
	return &Player{
		guildID: guildID,
		queue:   q,
		link:    link,
		enc:     enc,
		tc:      tc,
		metrics: m,
		log:     log.Named("player").With(zap.String("guild", guildID)),
	}
}

func (p *Player) Run(ctx context.Context) {
	for {
		clip, err := p.queue.Next(ctx)
		if err != nil {
			return
		}
		p.metrics.QueueDepth(p.guildID, p.queue.Len())
		if err := p.Play(ctx, clip); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.metrics.Error(metrics.StagePlayback)
			p.log.Warn("playback failed", zap.String("clip", clip.ID), zap.Error(err))
		}
	}
}

// Play декодирует клип, кодирует в Opus по 20 мс и отправляет в канал.
func (p *Player) Play(ctx context.Context, clip Clip) error {
	p.queue.SetPlaying(true)
	defer p.queue.SetPlaying(false)

	pcm, err := p.tc.ToPlayback(ctx, clip.Audio)
	if err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	frames := SplitFrames(BytesToSamples(pcm))
	if len(frames) == 0 {
		return errors.New("пустой клип")
	}

	if err := p.link.Speaking(true); err != nil {
		p.log.Debug("speaking on", zap.Error(err))
	}
	defer func() {
		if err := p.link.Speaking(false); err != nil {
			p.log.Debug("speaking off", zap.Error(err))
		}
	}()

	p.log.Info("playing reply", zap.String("clip", clip.ID), zap.Int("frames", len(frames)))
	for _, f := range frames {
		opus, err := p.enc.Encode(f)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		if err := p.link.SendFrame(ctx, opus); err != nil {
			return err
		}
	}
	return nil
}
