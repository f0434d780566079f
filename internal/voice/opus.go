package voice

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// максимальный Opus-кадр Discord — 120 мс
const maxFrameSamples = 5760

type OpusCodec struct{}

func (OpusCodec) NewDecoder() (Decoder, error) {
	d, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &opusDecoder{d: d, buf: make([]int16, maxFrameSamples*Channels)}, nil
}

func (OpusCodec) NewEncoder() (Encoder, error) {
	e, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return &opusEncoder{e: e, buf: make([]byte, 4000)}, nil
}

type opusDecoder struct {
	d   *opus.Decoder
	buf []int16
}

func (d *opusDecoder) Decode(frame []byte) ([]int16, error) {
	n, err := d.d.Decode(frame, d.buf)
	if err != nil {
		return nil, err
	}
	out := make([]int16, n*Channels)
	copy(out, d.buf)
	return out, nil
}

type opusEncoder struct {
	e   *opus.Encoder
	buf []byte
}

func (e *opusEncoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.e.Encode(pcm, e.buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}
