package voice

import (
	"context"
	"sync"
	"sync/atomic"
)

// fifo — потокобезопасная очередь с блокирующим Next.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{notify: make(chan struct{}, 1)}
}

func (q *fifo[T]) push(v T) int {
	q.mu.Lock()
	q.items = append(q.items, v)
	n := len(q.items)
	q.mu.Unlock()
	q.signal()
	return n
}

func (q *fifo[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return v, true
}

func (q *fifo[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifo[T]) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *fifo[T]) next(ctx context.Context) (T, error) {
	for {
		if v, ok := q.pop(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.notify:
		}
	}
}

// InputQueue — очередь фраз, ожидающих отправки в Gemini.
type InputQueue struct {
	q *fifo[Utterance]
}

func NewInputQueue() *InputQueue {
	return &InputQueue{q: newFIFO[Utterance]()}
}

// Enqueue добавляет фразу и возвращает новый размер очереди.
func (iq *InputQueue) Enqueue(u Utterance) int { return iq.q.push(u) }

func (iq *InputQueue) Dequeue() (Utterance, bool) { return iq.q.pop() }

func (iq *InputQueue) HasNext() bool { return iq.q.len() > 0 }

func (iq *InputQueue) Len() int { return iq.q.len() }

// Next блокируется до появления фразы или отмены ctx.
func (iq *InputQueue) Next(ctx context.Context) (Utterance, error) { return iq.q.next(ctx) }

// Clip — готовый ответ для воспроизведения.
type Clip struct {
	ID          string
	UtteranceID string
	UserID      string
	Text        string
	Audio       []byte // то, что вернул TTS (обычно WAV)
}

// PlaybackQueue — очередь ответов, проигрываемых строго по порядку.
type PlaybackQueue struct {
	q       *fifo[Clip]
	playing atomic.Bool
}

func NewPlaybackQueue() *PlaybackQueue {
	return &PlaybackQueue{q: newFIFO[Clip]()}
}

func (pq *PlaybackQueue) Enqueue(c Clip) int { return pq.q.push(c) }

func (pq *PlaybackQueue) Dequeue() (Clip, bool) { return pq.q.pop() }

func (pq *PlaybackQueue) HasNext() bool { return pq.q.len() > 0 }

func (pq *PlaybackQueue) Len() int { return pq.q.len() }

func (pq *PlaybackQueue) Next(ctx context.Context) (Clip, error) { return pq.q.next(ctx) }

// Clear выбрасывает всё, что ещё не начали играть.
func (pq *PlaybackQueue) Clear() int { return pq.q.clear() }

func (pq *PlaybackQueue) Playing() bool { return pq.playing.Load() }

func (pq *PlaybackQueue) SetPlaying(v bool) { pq.playing.Store(v) }
