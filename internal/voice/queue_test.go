package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInputQueueFIFO(t *testing.T) {
	q := NewInputQueue()
	if _, ok := q.Dequeue(); ok {
		t.Fatal("empty queue returned item")
	}
	q.Enqueue(Utterance{ID: "1"})
	if n := q.Enqueue(Utterance{ID: "2"}); n != 2 {
		t.Fatalf("len after enqueue: %d", n)
	}
	for _, want := range []string{"1", "2"} {
		u, ok := q.Dequeue()
		if !ok || u.ID != want {
			t.Fatalf("got %q want %q", u.ID, want)
		}
	}
	if q.HasNext() {
		t.Fatal("queue should be empty")
	}
}

func TestQueueNextBlocksUntilPush(t *testing.T) {
	q := NewPlaybackQueue()
	done := make(chan Clip, 1)
	go func() {
		c, err := q.Next(context.Background())
		if err == nil {
			done <- c
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(Clip{ID: "x"})

	select {
	case c := <-done:
		if c.ID != "x" {
			t.Fatalf("got %q", c.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestQueueNextCancelled(t *testing.T) {
	q := NewInputQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewPlaybackQueue()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Enqueue(Clip{})
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := 0
	for got < 1000 {
		if _, err := q.Next(ctx); err != nil {
			t.Fatalf("after %d items: %v", got, err)
		}
		got++
	}
	wg.Wait()
	if q.Len() != 0 {
		t.Fatalf("left over: %d", q.Len())
	}
}

func TestPlaybackQueueClear(t *testing.T) {
	q := NewPlaybackQueue()
	q.Enqueue(Clip{})
	q.Enqueue(Clip{})
	if n := q.Clear(); n != 2 {
		t.Fatalf("cleared %d", n)
	}
	q.SetPlaying(true)
	if !q.Playing() {
		t.Fatal("playing flag not set")
	}
}
