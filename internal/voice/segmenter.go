package voice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Utterance — законченная фраза одного говорящего.
type Utterance struct {
	ID        string
	GuildID   string
	UserID    string
	PCM       []byte // 48 kHz stereo s16le
	StartedAt time.Time
	EndedAt   time.Time
}

func (u Utterance) Duration() time.Duration {
	return time.Duration(len(u.PCM)/(Channels*2)) * time.Second / SampleRate
}

type speech struct {
	chunks [][]byte
	size   int
	start  time.Time
	last   time.Time
}

// Segmenter копит звук по говорящим и режет его на фразы: фраза закрыта,
// если говорящий молчит дольше gap или говорит дольше talkMax.
type Segmenter struct {
	guildID string
	gap     time.Duration
	talkMax time.Duration
	emit    func(Utterance)
	now     func() time.Time

	mu       sync.Mutex
	speakers map[string]*speech
}

func NewSegmenter(guildID string, gap, talkMax time.Duration, emit func(Utterance)) *Segmenter {
	return &Segmenter{
		guildID:  guildID,
		gap:      gap,
		talkMax:  talkMax,
		emit:     emit,
		now:      time.Now,
		speakers: make(map[string]*speech),
	}
}

// Add дописывает кусок PCM к текущей фразе говорящего. Данные копируются.
func (s *Segmenter) Add(userID string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.speakers[userID]
	if !ok {
		sp = &speech{start: now}
		s.speakers[userID] = sp
	}
	sp.chunks = append(sp.chunks, chunk)
	sp.size += len(chunk)
	sp.last = now
}

// Check закрывает готовые фразы и отдаёт их в emit (в порядке начала).
// Возвращает число закрытых фраз.
func (s *Segmenter) Check(now time.Time) int {
	var ready []Utterance

	s.mu.Lock()
	for id, sp := range s.speakers {
		if sp.size == 0 {
			continue
		}
		if now.Sub(sp.last) <= s.gap && now.Sub(sp.start) <= s.talkMax {
			continue
		}
		ready = append(ready, Utterance{
			ID:        uuid.NewString(),
			GuildID:   s.guildID,
			UserID:    id,
			PCM:       combine(sp.chunks, sp.size),
			StartedAt: sp.start,
			EndedAt:   sp.last,
		})
		// убираем, чтобы не отдать те же данные второй раз
		delete(s.speakers, id)
	}
	s.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool { return ready[i].StartedAt.Before(ready[j].StartedAt) })
	for _, u := range ready {
		s.emit(u)
	}
	return len(ready)
}

// Pending — сколько говорящих сейчас с незакрытой фразой.
func (s *Segmenter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.speakers)
}

// Run вызывает Check каждые every до отмены ctx. Незакрытые фразы при
// остановке выбрасываются.
func (s *Segmenter) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check(s.now())
		}
	}
}

func combine(chunks [][]byte, size int) []byte {
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
