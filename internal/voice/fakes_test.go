package voice

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeLink struct {
	packets chan Packet

	mu       sync.Mutex
	frames   [][]byte
	speaking []bool
	closed   bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{packets: make(chan Packet, 64)}
}

func (l *fakeLink) Packets() <-chan Packet { return l.packets }

func (l *fakeLink) SendFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, frame)
	return nil
}

func (l *fakeLink) Speaking(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.speaking = append(l.speaking, on)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("already closed")
	}
	l.closed = true
	return nil
}

func (l *fakeLink) frameCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// fakeCodec: "Opus" пакет — это просто s16le, кодирование — тоже.
type fakeCodec struct{}

func (fakeCodec) NewDecoder() (Decoder, error) { return rawDecoder{}, nil }
func (fakeCodec) NewEncoder() (Encoder, error) { return rawEncoder{}, nil }

type rawDecoder struct{}

func (rawDecoder) Decode(frame []byte) ([]int16, error) { return BytesToSamples(frame), nil }

type rawEncoder struct{}

func (rawEncoder) Encode(pcm []int16) ([]byte, error) { return SamplesToBytes(pcm), nil }

type fakeResponder struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (r *fakeResponder) Send(_ context.Context, _ string, pcm []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.reply, r.err
}

func (r *fakeResponder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeTTS struct {
	audio []byte
	err   error
}

func (t fakeTTS) Synthesize(context.Context, string) ([]byte, error) { return t.audio, t.err }

// identityTranscoder ничего не пересэмплирует.
type identityTranscoder struct{}

func (identityTranscoder) ToModelInput(_ context.Context, pcm []byte) ([]byte, error) {
	return pcm, nil
}

func (identityTranscoder) ToPlayback(_ context.Context, clip []byte) ([]byte, error) {
	return clip, nil
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
