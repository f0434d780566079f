package gemini

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/EgorLis/voicebot/internal/metrics"
)

// SessionManager — по одной Live-сессии на гильдию.
type SessionManager struct {
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Client
}

func NewSessionManager(cfg Config, m *metrics.Metrics, log *zap.Logger) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		metrics:  m,
		log:      log.Named("gemini"),
		sessions: make(map[string]*Client),
	}
}

// Create подключает сессию для гильдии. Уже существующая сессия — успех.
func (sm *SessionManager) Create(ctx context.Context, guildID string) error {
	if sm.HasActive(guildID) {
		return nil
	}

	log := sm.log.With(zap.String("guild", guildID))
	c := New(sm.cfg)
	c.OnConnected = func() { log.Info("gemini live connected") }
	c.OnDisconnected = func() { log.Info("gemini live disconnected") }
	c.OnError = func(err error) { log.Warn("gemini live error", zap.Error(err)) }

	if err := c.Connect(ctx); err != nil {
		sm.metrics.Error(metrics.StageGemini)
		return err
	}

	sm.mu.Lock()
	old, ok := sm.sessions[guildID]
	if ok && old.IsConnected() {
		// параллельный Create успел раньше
		sm.mu.Unlock()
		c.Disconnect()
		return nil
	}
	sm.sessions[guildID] = c
	n := len(sm.sessions)
	sm.mu.Unlock()

	// старая сессия висела в реконнекте
	if ok {
		old.Disconnect()
	}
	sm.metrics.GeminiSessions(n)
	return nil
}

// Remove закрывает сессию гильдии. false — её не было.
func (sm *SessionManager) Remove(guildID string) bool {
	sm.mu.Lock()
	c, ok := sm.sessions[guildID]
	delete(sm.sessions, guildID)
	n := len(sm.sessions)
	sm.mu.Unlock()

	if !ok {
		return false
	}
	c.Disconnect()
	sm.metrics.GeminiSessions(n)
	return true
}

// Send отправляет фразу в сессию гильдии и возвращает текст ответа.
func (sm *SessionManager) Send(ctx context.Context, guildID string, pcm []byte) (string, error) {
	sm.mu.Lock()
	c, ok := sm.sessions[guildID]
	sm.mu.Unlock()
	if !ok {
		return "", ErrNoSession
	}
	return c.Ask(ctx, pcm)
}

// ShutdownAll закрывает все сессии и возвращает их число.
func (sm *SessionManager) ShutdownAll() int {
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*Client)
	sm.mu.Unlock()

	for _, c := range all {
		c.Disconnect()
	}
	sm.metrics.GeminiSessions(0)
	if len(all) > 0 {
		sm.log.Info("gemini sessions closed", zap.Int("count", len(all)))
	}
	return len(all)
}

func (sm *SessionManager) ActiveCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// HasActive — есть ли у гильдии живая сессия.
func (sm *SessionManager) HasActive(guildID string) bool {
	sm.mu.Lock()
	c, ok := sm.sessions[guildID]
	sm.mu.Unlock()
	return ok && c.IsConnected()
}
