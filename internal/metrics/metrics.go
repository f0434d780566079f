// Package metrics — prometheus-метрики бота и http-эндпоинт для них.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Стадии обработки для ErrorsTotal.
const (
	StageDecode    = "decode"
	StagePrepare   = "prepare"
	StageGemini    = "gemini"
	StageTTS       = "tts"
	StagePlayback  = "playback"
	StageGateway   = "gateway"
	StageArchive   = "archive"
	StageTranscode = "transcode"
)

// Metrics — все метрики процесса. Методы безопасно вызывать на nil.
type Metrics struct {
	registry *prometheus.Registry

	VoiceSessionsActive  prometheus.Gauge
	GeminiSessionsActive prometheus.Gauge
	PlaybackQueueDepth   *prometheus.GaugeVec

	UtterancesTotal *prometheus.CounterVec
	RepliesTotal    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec

	GeminiDuration prometheus.Histogram
	TTSDuration    prometheus.Histogram
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicebot"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		VoiceSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Number of active voice sessions",
		}),
		GeminiSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gemini_sessions_active",
			Help:      "Number of open Gemini Live sessions",
		}),
		PlaybackQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_queue_depth",
			Help:      "Clips waiting for playback",
		}, []string{"guild"}),
		UtterancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances cut by the segmenter",
		}, []string{"guild"}),
		RepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies queued for playback",
		}, []string{"guild"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by pipeline stage",
		}, []string{"stage"}),
		GeminiDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gemini_reply_seconds",
			Help:      "Time from sending an utterance to a complete turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		TTSDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_seconds",
			Help:      "TTS request duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.VoiceSessionsActive,
		m.GeminiSessionsActive,
		m.PlaybackQueueDepth,
		m.UtterancesTotal,
		m.RepliesTotal,
		m.ErrorsTotal,
		m.GeminiDuration,
		m.TTSDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) Utterance(guild string) {
	if m == nil {
		return
	}
	m.UtterancesTotal.WithLabelValues(guild).Inc()
}

func (m *Metrics) Reply(guild string) {
	if m == nil {
		return
	}
	m.RepliesTotal.WithLabelValues(guild).Inc()
}

func (m *Metrics) QueueDepth(guild string, n int) {
	if m == nil {
		return
	}
	m.PlaybackQueueDepth.WithLabelValues(guild).Set(float64(n))
}

func (m *Metrics) ForgetGuild(guild string) {
	if m == nil {
		return
	}
	m.PlaybackQueueDepth.DeleteLabelValues(guild)
}

func (m *Metrics) VoiceSessions(delta float64) {
	if m == nil {
		return
	}
	m.VoiceSessionsActive.Add(delta)
}

func (m *Metrics) GeminiSessions(n int) {
	if m == nil {
		return
	}
	m.GeminiSessionsActive.Set(float64(n))
}

func (m *Metrics) ObserveGemini(d time.Duration) {
	if m == nil {
		return
	}
	m.GeminiDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveTTS(d time.Duration) {
	if m == nil {
		return
	}
	m.TTSDuration.Observe(d.Seconds())
}

// Server отдаёт /metrics. Пустой addr — сервер не поднимается.
type Server struct {
	addr string
	srv  *http.Server
	log  *zap.Logger
}

func NewServer(addr string, m *Metrics, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log:  log.Named("metrics"),
	}
}

// Start занимает порт сразу, чтобы ошибка bind дошла до вызывающего;
// обслуживание запросов идёт в фоне.
func (s *Server) Start() error {
	if s.addr == "" {
		s.log.Debug("metrics server disabled")
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}
	s.log.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
