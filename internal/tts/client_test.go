package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSynthesizeEncodesText(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := base64.StdEncoding.DecodeString(r.URL.Query().Get("text"))
		if err != nil {
			http.Error(w, "bad base64", http.StatusBadRequest)
			return
		}
		got = string(raw)
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	c := NewClient(Conf{URL: srv.URL + "/tts", Retries: 0})
	audio, err := c.Synthesize(context.Background(), "こんにちは + world/?")
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "RIFFdata" {
		t.Fatalf("audio: %q", audio)
	}
	if got != "こんにちは + world/?" {
		t.Fatalf("server decoded %q", got)
	}
}

func TestSynthesizeRetries5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(Conf{URL: srv.URL, Retries: 2, Backoff: time.Millisecond})
	audio, err := c.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "ok" || calls.Load() != 3 {
		t.Fatalf("audio %q after %d calls", audio, calls.Load())
	}
}

func TestSynthesizeGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Conf{URL: srv.URL, Retries: 1, Backoff: time.Millisecond})
	_, err := c.Synthesize(context.Background(), "hi")
	var se *ErrStatus
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 ErrStatus, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls: %d", calls.Load())
	}
}

func TestSynthesizeNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Conf{URL: srv.URL, Retries: 3, Backoff: time.Millisecond})
	_, err := c.Synthesize(context.Background(), "hi")
	var se *ErrStatus
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Body != "nope" {
		t.Fatalf("expected 400 ErrStatus, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx retried: %d calls", calls.Load())
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	c := NewClient(Conf{URL: "http://127.0.0.1:1"})
	if _, err := c.Synthesize(context.Background(), "  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
