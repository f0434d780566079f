package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/metrics"
)

// ErrClosed — сессия уже закрыта.
var ErrClosed = errors.New("voice session closed")

// Packet — входящий Opus-пакет с уже известным говорящим.
type Packet struct {
	UserID string
	Opus   []byte
}

// Link — голосовое соединение с каналом.
type Link interface {
	// Packets закрывается, когда соединение больше не отдаёт звук.
	Packets() <-chan Packet
	SendFrame(ctx context.Context, frame []byte) error
	Speaking(on bool) error
	Close() error
}

type Decoder interface {
	Decode(frame []byte) ([]int16, error)
}

type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Codec создаёт Opus-кодеры: декодер на каждого говорящего, один энкодер на сессию.
type Codec interface {
	NewDecoder() (Decoder, error)
	NewEncoder() (Encoder, error)
}

type SessionConfig struct {
	GuildID      string
	ChannelID    string
	LoopInterval time.Duration
	Gap          time.Duration
	TalkMax      time.Duration
	Workers      int
	HistorySize  int
}

type Deps struct {
	Responder   Responder
	Synthesizer Synthesizer
	Transcoder  Transcoder
	Gain        func() float64
	Metrics     *metrics.Metrics
}

// Status — снимок состояния для /status.
type Status struct {
	GuildID   string
	ChannelID string
	Pending   int
	Input     int
	Playback  int
	Playing   bool
	History   int
	Started   time.Time
}

// Session — голосовая сессия одной гильдии: приём, нарезка, обработка, проигрывание.
type Session struct {
	cfg     SessionConfig
	link    Link
	codec   Codec
	metrics *metrics.Metrics
	log     *zap.Logger

	seg       *Segmenter
	input     *InputQueue
	playback  *PlaybackQueue
	history   *History
	processor *Processor
	player    *Player

	decoders map[string]Decoder

	mu      sync.Mutex
	started time.Time
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewSession(cfg SessionConfig, link Link, codec Codec, deps Deps, log *zap.Logger) (*Session, error) {
	enc, err := codec.NewEncoder()
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		link:     link,
		codec:    codec,
		metrics:  deps.Metrics,
		log:      log.Named("voice").With(zap.String("guild", cfg.GuildID)),
		input:    NewInputQueue(),
		playback: NewPlaybackQueue(),
		history:  NewHistory(cfg.HistorySize),
		decoders: make(map[string]Decoder),
	}
	s.seg = NewSegmenter(cfg.GuildID, cfg.Gap, cfg.TalkMax, s.onUtterance)
	s.processor = NewProcessor(ProcessorConfig{
		GuildID:     cfg.GuildID,
		Input:       s.input,
		Output:      s.playback,
		Responder:   deps.Responder,
		Synthesizer: deps.Synthesizer,
		Transcoder:  deps.Transcoder,
		Gain:        deps.Gain,
		History:     s.history,
		Workers:     cfg.Workers,
		Metrics:     deps.Metrics,
	}, log)
	s.player = NewPlayer(cfg.GuildID, s.playback, link, enc, deps.Transcoder, deps.Metrics, log)
	return s, nil
}

// Start запускает фоновые циклы. Повторный вызов — no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = time.Now()
	s.metrics.VoiceSessions(1)

	s.wg.Add(4)
	go func() { defer s.wg.Done(); s.receiveLoop(ctx) }()
	go func() { defer s.wg.Done(); s.seg.Run(ctx, s.cfg.LoopInterval) }()
	go func() { defer s.wg.Done(); s.processor.Run(ctx) }()
	go func() { defer s.wg.Done(); s.player.Run(ctx) }()

	s.log.Info("voice session started", zap.String("channel", s.cfg.ChannelID))
	return nil
}

// Close останавливает циклы и закрывает соединение. Идемпотентен.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.link.Close()
	s.wg.Wait()

	dropped := s.playback.Clear()
	if cancel != nil {
		s.metrics.VoiceSessions(-1)
	}
	s.metrics.ForgetGuild(s.cfg.GuildID)
	s.log.Info("voice session closed", zap.Int("dropped_clips", dropped))
	return err
}

func (s *Session) Status() Status {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return Status{
		GuildID:   s.cfg.GuildID,
		ChannelID: s.cfg.ChannelID,
		Pending:   s.seg.Pending(),
		Input:     s.input.Len(),
		Playback:  s.playback.Len(),
		Playing:   s.playback.Playing(),
		History:   s.history.Len(),
		Started:   started,
	}
}

func (s *Session) History() []Exchange {
	return s.history.Snapshot()
}

func (s *Session) GuildID() string { return s.cfg.GuildID }

func (s *Session) ChannelID() string { return s.cfg.ChannelID }

func (s *Session) receiveLoop(ctx context.Context) {
	packets := s.link.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-packets:
			if !ok {
				s.log.Debug("voice link stopped delivering packets")
				return
			}
			s.handlePacket(p)
		}
	}
}

func (s *Session) handlePacket(p Packet) {
	if p.UserID == "" || len(p.Opus) == 0 {
		return
	}
	dec, ok := s.decoders[p.UserID]
	if !ok {
		var err error
		dec, err = s.codec.NewDecoder()
		if err != nil {
			s.metrics.Error(metrics.StageDecode)
			s.log.Warn("failed to create decoder", zap.String("user", p.UserID), zap.Error(err))
			return
		}
		s.decoders[p.UserID] = dec
	}
	pcm, err := dec.Decode(p.Opus)
	if err != nil {
		s.metrics.Error(metrics.StageDecode)
		s.log.Debug("opus decode failed", zap.String("user", p.UserID), zap.Error(err))
		return
	}
	s.seg.Add(p.UserID, SamplesToBytes(pcm))
}

func (s *Session) onUtterance(u Utterance) {
	n := s.input.Enqueue(u)
	s.metrics.Utterance(s.cfg.GuildID)
	s.log.Debug("utterance queued",
		zap.String("user", u.UserID),
		zap.Duration("length", u.Duration()),
		zap.Int("queue", n))
}
