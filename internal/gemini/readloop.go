package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const maxBackoff = 30 * time.Second

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.closed.Store(true)
		c.closeConn()
		c.failPending(ErrConnectionLost)
		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
	}()

	backoff := time.Second
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			_, data, err := conn.ReadMessage()
			if err == nil {
				c.touchActivity()
				c.handle(data)
				backoff = time.Second
				continue
			}
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			if c.OnError != nil {
				c.OnError(err)
			}
		}

		// закрываем и фейлим ожидающий запрос
		c.closeConn()
		c.failPending(ErrConnectionLost)

		if !c.reconnect(ctx, &backoff) {
			return
		}
	}
}

// reconnect дозванивается с экспоненциальной паузой. false — клиент закрыт.
func (c *Client) reconnect(ctx context.Context, backoff *time.Duration) bool {
	for !c.closed.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(*backoff):
		}
		conn, err := c.dialAndSetup(ctx)
		if err != nil {
			if c.OnError != nil {
				c.OnError(fmt.Errorf("reconnect failed (wait %v): %w", *backoff, err))
			}
			*backoff = min(*backoff*2, maxBackoff)
			continue
		}
		c.mu.Lock()
		if c.closed.Load() {
			c.mu.Unlock()
			_ = conn.Close()
			return false
		}
		c.conn = conn
		c.mu.Unlock()
		if c.OnConnected != nil {
			c.OnConnected()
		}
		*backoff = time.Second
		return true
	}
	return false
}

func (c *Client) handle(data []byte) {
	var msg genai.LiveServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		if c.OnError != nil {
			c.OnError(fmt.Errorf("bad server message: %w", err))
		}
		return
	}
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	c.mu.Lock()
	t := c.pending
	if t != nil && sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p != nil && !p.Thought {
				t.text.WriteString(p.Text)
			}
		}
	}
	if t != nil && sc.TurnComplete {
		c.pending = nil
	} else {
		t = nil
	}
	c.mu.Unlock()

	if t != nil {
		t.done <- result{text: strings.TrimSpace(t.text.String())}
	}
}
