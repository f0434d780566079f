package voice

import (
	"encoding/binary"
	"math"
)

// Формат, в котором Discord отдаёт и принимает звук после Opus.
const (
	SampleRate = 48000
	Channels   = 2
	// 20 мс на канал
	FrameSamples = SampleRate / 50
	// байт s16le в одном 20 мс фрейме
	FrameBytes = FrameSamples * Channels * 2
)

// Формат, который ждёт Gemini Live.
const (
	ModelSampleRate = 16000
	ModelChannels   = 1
)

// ApplyGain умножает s16le-сэмплы на factor с насыщением.
// factor == 1 возвращает копию без изменений.
func ApplyGain(pcm []byte, factor float64) []byte {
	out := make([]byte, len(pcm))
	copy(out, pcm)
	if factor == 1 {
		return out
	}
	for i := 0; i+1 < len(out); i += 2 {
		s := int16(binary.LittleEndian.Uint16(out[i:]))
		v := math.Round(float64(s) * factor)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(v)))
	}
	return out
}

// SamplesToBytes — []int16 -> s16le.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples — s16le -> []int16; хвостовой нечётный байт отбрасывается.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// SplitFrames режет interleaved-сэмплы на 20 мс фреймы; последний
// добивается тишиной до полного размера.
func SplitFrames(samples []int16) [][]int16 {
	const n = FrameSamples * Channels
	var frames [][]int16
	for off := 0; off < len(samples); off += n {
		frame := make([]int16, n)
		copy(frame, samples[off:min(off+n, len(samples))])
		frames = append(frames, frame)
	}
	return frames
}
