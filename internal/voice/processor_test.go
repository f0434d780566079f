package voice

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestProcessor(r Responder, tts Synthesizer) (*Processor, *InputQueue, *PlaybackQueue, *History) {
	in, out, h := NewInputQueue(), NewPlaybackQueue(), NewHistory(5)
	p := NewProcessor(ProcessorConfig{
		GuildID:     "g",
		Input:       in,
		Output:      out,
		Responder:   r,
		Synthesizer: tts,
		Transcoder:  identityTranscoder{},
		History:     h,
		Workers:     2,
	}, zap.NewNop())
	return p, in, out, h
}

func TestProcessorReplyProducesClip(t *testing.T) {
	r := &fakeResponder{reply: "  こんにちは \n"}
	p, in, out, h := newTestProcessor(r, fakeTTS{audio: []byte("wav")})
	in.Enqueue(Utterance{ID: "u1", GuildID: "g", UserID: "alice", PCM: []byte{1, 0, 2, 0}})

	if !p.ProcessNext(context.Background()) {
		t.Fatal("nothing processed")
	}
	p.Wait()

	if r.count() != 1 {
		t.Fatalf("responder calls: %d", r.count())
	}
	clip, ok := out.Dequeue()
	if !ok {
		t.Fatal("no clip queued")
	}
	if clip.Text != "こんにちは" || string(clip.Audio) != "wav" || clip.UtteranceID != "u1" {
		t.Fatalf("bad clip: %+v", clip)
	}
	ex := h.Snapshot()
	if len(ex) != 1 || ex[0].Reply != "こんにちは" || ex[0].UserID != "alice" {
		t.Fatalf("history: %+v", ex)
	}
	if p.ProcessNext(context.Background()) {
		t.Fatal("queue should be empty")
	}
}

func TestProcessorDropsEmptyOrFailedReplies(t *testing.T) {
	cases := []struct {
		name string
		r    *fakeResponder
		tts  fakeTTS
	}{
		{"empty reply", &fakeResponder{reply: "   "}, fakeTTS{audio: []byte("wav")}},
		{"responder error", &fakeResponder{err: errors.New("boom")}, fakeTTS{audio: []byte("wav")}},
		{"tts error", &fakeResponder{reply: "hi"}, fakeTTS{err: errors.New("down")}},
		{"tts empty", &fakeResponder{reply: "hi"}, fakeTTS{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, in, out, _ := newTestProcessor(tc.r, tc.tts)
			in.Enqueue(Utterance{ID: "u", PCM: []byte{1, 0}})
			p.ProcessNext(context.Background())
			p.Wait()
			if out.Len() != 0 {
				t.Fatalf("unexpected clip")
			}
		})
	}
}

func TestProcessorSkipsEmptyAudio(t *testing.T) {
	r := &fakeResponder{reply: "hi"}
	p, in, _, _ := newTestProcessor(r, fakeTTS{audio: []byte("wav")})
	in.Enqueue(Utterance{ID: "u"})
	p.ProcessNext(context.Background())
	p.Wait()
	if r.count() != 0 {
		t.Fatal("responder called for empty audio")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	h := NewHistory(2)
	for _, id := range []string{"a", "b", "c"} {
		h.Add(Exchange{UtteranceID: id})
	}
	got := h.Snapshot()
	if len(got) != 2 || got[0].UtteranceID != "b" || got[1].UtteranceID != "c" {
		t.Fatalf("history: %+v", got)
	}
}
