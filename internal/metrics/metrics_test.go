package metrics

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.Error(StageTTS)
	m.Utterance("g")
	m.Reply("g")
	m.QueueDepth("g", 3)
	m.VoiceSessions(1)
	m.GeminiSessions(2)
	m.ObserveGemini(time.Second)
	m.ObserveTTS(time.Second)
	m.ForgetGuild("g")
	if m.Registry() != nil {
		t.Fatal("nil metrics must have nil registry")
	}
}

func TestCountersAndHandler(t *testing.T) {
	m := New("test")
	m.Error(StageGemini)
	m.Error(StageGemini)
	m.Utterance("g1")
	m.QueueDepth("g1", 4)
	m.VoiceSessions(1)

	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(StageGemini)); got != 2 {
		t.Fatalf("errors_total{gemini} = %v", got)
	}
	if got := testutil.ToFloat64(m.PlaybackQueueDepth.WithLabelValues("g1")); got != 4 {
		t.Fatalf("queue depth = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"test_errors_total", "test_voice_sessions_active 1", "test_utterances_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestServerStartReportsBindError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	srv := NewServer(busy.Addr().String(), New("test"), zap.NewNop())
	if err := srv.Start(); err == nil {
		_ = srv.Stop(context.Background())
		t.Fatal("expected bind error for an occupied address")
	}
}

func TestServerServesHealthz(t *testing.T) {
	// свободный порт
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	srv := NewServer(addr, New("test"), zap.NewNop())
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = srv.Stop(context.Background()) }()

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServerDisabled(t *testing.T) {
	srv := NewServer("", New("test"), zap.NewNop())
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}
