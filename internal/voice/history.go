package voice

import (
	"sync"
	"time"
)

// Exchange — одна реплика пользователя и ответ модели.
type Exchange struct {
	UtteranceID string
	GuildID     string
	UserID      string
	StartedAt   time.Time
	EndedAt     time.Time
	// вход модели: 16 kHz mono s16le
	PCM   []byte
	Reply string
}

// History — кольцевой буфер последних обменов (для /save).
type History struct {
	mu    sync.Mutex
	size  int
	items []Exchange
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{size: size}
}

func (h *History) Add(e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, e)
	if over := len(h.items) - h.size; over > 0 {
		h.items = append([]Exchange(nil), h.items[over:]...)
	}
}

// Snapshot — копия, от старых к новым.
func (h *History) Snapshot() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.items))
	copy(out, h.items)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}
