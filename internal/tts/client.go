// Package tts — клиент внешнего TTS-сервера: GET <url>?text=<base64(utf8)>,
// в ответ приходит готовый звук (WAV).
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

var ErrEmptyText = errors.New("tts: empty text")

// ErrStatus — сервер ответил не 200.
type ErrStatus struct {
	Code int
	Body string
}

func (e *ErrStatus) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts: status %d", e.Code)
	}
	return fmt.Sprintf("tts: status %d: %s", e.Code, e.Body)
}

type Conf struct {
	URL     string
	Timeout time.Duration
	// повторы поверх первой попытки (5xx и сетевые ошибки)
	Retries uint64
	// первая пауза между попытками, дальше удваивается
	Backoff time.Duration
}

type Client struct {
	http    *http.Client
	base    string
	retries uint64
	backoff time.Duration
}

func NewClient(conf Conf) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	if conf.Backoff <= 0 {
		conf.Backoff = 500 * time.Millisecond
	}
	return &Client{
		http:    &http.Client{Timeout: conf.Timeout},
		base:    conf.URL,
		retries: conf.Retries,
		backoff: conf.Backoff,
	}
}

// RequestURL — адрес запроса для текста.
func (c *Client) RequestURL(text string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("tts url: %w", err)
	}
	q := u.Query()
	q.Set("text", base64.StdEncoding.EncodeToString([]byte(text)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Synthesize возвращает звук для текста. 4xx не повторяется.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	addr, err := c.RequestURL(text)
	if err != nil {
		return nil, err
	}

	var audio []byte
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		data, err := c.fetch(ctx, addr)
		if err != nil {
			var se *ErrStatus
			if errors.As(err, &se) && se.Code < 500 {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		audio = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (c *Client) fetch(ctx context.Context, addr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &ErrStatus{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(resp.Body)
}
