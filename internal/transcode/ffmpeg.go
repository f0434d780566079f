// Package transcode гоняет звук через внешний ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrEmptyInput — нечего транскодировать.
var ErrEmptyInput = errors.New("transcode: empty input")

// FFmpeg — транскодер поверх бинаря ffmpeg (stdin -> stdout).
type FFmpeg struct {
	Path string
}

func New(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// ToModelInput: 48 kHz stereo s16le -> 16 kHz mono s16le.
func (f *FFmpeg) ToModelInput(ctx context.Context, pcm []byte) ([]byte, error) {
	return f.run(ctx, pcm,
		"-f", "s16le", "-ar", "48000", "-ac", "2", "-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", "pipe:1")
}

// ToPlayback: любой контейнер, который понимает ffmpeg (обычно WAV от TTS),
// -> 48 kHz stereo s16le.
func (f *FFmpeg) ToPlayback(ctx context.Context, clip []byte) ([]byte, error) {
	return f.run(ctx, clip,
		"-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le", "-ar", "48000", "-ac", "2", "pipe:1")
}

// ToWAV заворачивает сырой s16le в WAV.
func (f *FFmpeg) ToWAV(ctx context.Context, pcm []byte, rate, channels int) ([]byte, error) {
	return f.run(ctx, pcm,
		"-f", "s16le", "-ar", strconv.Itoa(rate), "-ac", strconv.Itoa(channels), "-i", "pipe:0",
		"-f", "wav", "pipe:1")
}

func (f *FFmpeg) run(ctx context.Context, in []byte, args ...string) ([]byte, error) {
	if len(in) == 0 {
		return nil, ErrEmptyInput
	}
	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, f.Path, full...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}
