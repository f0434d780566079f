package gemini

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

var (
	ErrNotConnected   = errors.New("gemini: not connected")
	ErrReplyTimeout   = errors.New("gemini: timeout waiting for reply")
	ErrConnectionLost = errors.New("gemini: connection lost")
	ErrEmptyAudio     = errors.New("gemini: empty audio")
	ErrNoSession      = errors.New("gemini: no session for guild")
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	audioMIME = "audio/pcm;rate=16000"
	// 1 с звука 16 kHz mono s16le
	chunkBytes = 32000
)

type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	ReplyTimeout time.Duration
	// системная инструкция; читается при каждом (пере)подключении
	Prompt func() string
}

type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	pending *turn
	cancel  context.CancelFunc
	closed  atomic.Bool

	wmu          sync.Mutex    // сериализует запись в websocket
	askMu        sync.Mutex    // один запрос за раз
	pingStop     chan struct{} // стоп-канал для ping-горутины
	lastActivity atomic.Int64  // unix nanos последнего входящего кадра

	OnConnected    func()
	OnDisconnected func()
	OnError        func(error)
}

// clientMessage — кадр клиента BidiGenerateContent. Setup берётся из genai
// как есть; realtimeInput описан здесь, т.к. в genai у LiveClientRealtimeInput
// нет полей audio/audioStreamEnd.
type clientMessage struct {
	Setup         *genai.LiveClientSetup `json:"setup,omitempty"`
	RealtimeInput *realtimeInput         `json:"realtimeInput,omitempty"`
}

type realtimeInput struct {
	Audio          *genai.Blob `json:"audio,omitempty"`
	AudioStreamEnd bool        `json:"audioStreamEnd,omitempty"`
}

// turn — ожидаемый ответ модели.
type turn struct {
	text strings.Builder
	done chan result
}

type result struct {
	text string
	err  error
}

func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Connect — устанавливает соединение, проводит setup и запускает readLoop.
// ctx ограничивает только подключение; дальше клиент живёт до Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dialAndSetup(ctx)
	if err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.closed.Store(false)

	if c.OnConnected != nil {
		c.OnConnected()
	}
	go c.readLoop(loopCtx)
	return nil
}

func (c *Client) Disconnect() {
	if c.closed.Swap(true) {
		return
	}
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.closeConn()
	c.failPending(ErrConnectionLost)
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed.Load()
}

// Ask отправляет фразу и ждёт текст ответа (не дольше ReplyTimeout).
func (c *Client) Ask(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", ErrEmptyAudio
	}
	c.askMu.Lock()
	defer c.askMu.Unlock()

	if !c.IsConnected() {
		return "", ErrNotConnected
	}

	// прошлый запрос бросили по таймауту, а модель ещё отвечает —
	// дочитываем тот ход, иначе его текст уйдёт ответом на эту фразу
	c.mu.Lock()
	old := c.pending
	c.mu.Unlock()
	if old != nil {
		if err := c.drain(ctx, old); err != nil {
			return "", err
		}
	}

	t := &turn{done: make(chan result, 1)}
	c.mu.Lock()
	c.pending = t
	c.mu.Unlock()

	for off := 0; off < len(pcm); off += chunkBytes {
		chunk := pcm[off:min(off+chunkBytes, len(pcm))]
		msg := &clientMessage{
			RealtimeInput: &realtimeInput{
				Audio: &genai.Blob{MIMEType: audioMIME, Data: chunk},
			},
		}
		if err := c.send(msg); err != nil {
			c.clearPending(t)
			return "", err
		}
	}
	end := &clientMessage{RealtimeInput: &realtimeInput{AudioStreamEnd: true}}
	if err := c.send(end); err != nil {
		c.clearPending(t)
		return "", err
	}

	// при таймауте ход остаётся в pending до turnComplete
	timer := time.NewTimer(c.cfg.ReplyTimeout)
	defer timer.Stop()
	select {
	case r := <-t.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrReplyTimeout
	}
}

// drain ждёт завершения брошенного хода не дольше ReplyTimeout.
func (c *Client) drain(ctx context.Context, old *turn) error {
	timer := time.NewTimer(c.cfg.ReplyTimeout)
	defer timer.Stop()
	select {
	case <-old.done:
	case <-timer.C:
		c.clearPending(old)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Client) clearPending(t *turn) {
	c.mu.Lock()
	if c.pending == t {
		c.pending = nil
	}
	c.mu.Unlock()
}

// завершить ожидающий запрос ошибкой при обрыве/закрытии
func (c *Client) failPending(err error) {
	c.mu.Lock()
	t := c.pending
	c.pending = nil
	c.mu.Unlock()
	if t != nil {
		t.done <- result{err: err}
	}
}
