// Package audio provides small PCM container helpers shared by the STT and
// TTS clients. WrapWAV is adapted from the teacher's pkg/audio.NewWavBuffer,
// generalized to make the (always-mono, always-16-bit) assumptions explicit
// named constants instead of inline magic numbers.
package audio

import (
	"bytes"
	"encoding/binary"
)

// SampleRate16k is the fixed capture/playback rate used throughout Echo's
// voice pipeline (spec §4.5: capture_until_silence(..., sample_rate=16000)).
const SampleRate16k = 16000

const (
	channels      = 1
	bitsPerSample = 16
)

// WrapWAV wraps raw little-endian PCM16 mono samples in a standard WAV
// (RIFF/WAVE) container at the given sample rate, as required by the STT
// provider contract (spec §6.5: "wrapped in a standard WAV container (1
// channel, 16-bit, 16 kHz)").
func WrapWAV(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16)) // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	binary.Write(buf, binary.LittleEndian, byteRate)
	blockAlign := uint16(channels * bitsPerSample / 8)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
