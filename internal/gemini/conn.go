package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

const (
	writeTimeout = 5 * time.Second
	setupTimeout = 10 * time.Second
	pingEvery    = 10 * time.Second
)

// ========================= low-level =========================

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) modelName() string {
	if strings.HasPrefix(c.cfg.Model, "models/") {
		return c.cfg.Model
	}
	return "models/" + c.cfg.Model
}

func (c *Client) setupMessage() *clientMessage {
	setup := &genai.LiveClientSetup{
		Model: c.modelName(),
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: []genai.Modality{genai.ModalityText},
		},
	}
	if c.cfg.Prompt != nil {
		if p := strings.TrimSpace(c.cfg.Prompt()); p != "" {
			setup.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p}}}
		}
	}
	return &clientMessage{Setup: setup}
}

// dial + setup + ожидание setupComplete, затем запуск пингов
func (c *Client) dialAndSetup(ctx context.Context) (*websocket.Conn, error) {
	addr, err := c.wsURL()
	if err != nil {
		return nil, fmt.Errorf("gemini endpoint: %w", err)
	}
	conn, _, err := c.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)

	if err := c.writeTo(conn, c.setupMessage()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gemini setup: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(setupTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("gemini setup: %w", err)
		}
		var msg genai.LiveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("gemini setup: %w", err)
		}
		if msg.SetupComplete != nil {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.touchActivity()
	conn.SetPongHandler(func(string) error {
		c.touchActivity()
		return nil
	})
	c.startPing(conn)
	return conn, nil
}

// запись строго через один мьютекс + write-deadline
func (c *Client) writeTo(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeTo(conn, v)
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() {
	c.stopPing()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	c.wmu.Unlock()
	_ = conn.Close()
}

func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) sinceLastActivity() time.Duration {
	n := c.lastActivity.Load()
	if n == 0 {
		return time.Hour
	}
	return time.Since(time.Unix(0, n))
}

func (c *Client) startPing(conn *websocket.Conn) {
	c.stopPing()
	stop := make(chan struct{})
	c.mu.Lock()
	c.pingStop = stop
	c.mu.Unlock()

	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
				c.wmu.Unlock()
				// три пропущенных pong подряд — соединение подвисло, readLoop реконнектит
				if err != nil || c.sinceLastActivity() > 3*pingEvery {
					_ = conn.Close()
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopPing() {
	c.mu.Lock()
	stop := c.pingStop
	c.pingStop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
