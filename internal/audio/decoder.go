package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Format der Sprachausgabe des KI-Dienstes: 16-bit PCM, 24 kHz, mono
const (
	SampleRate = 24000
	Channels   = 1
)

// Buffer ist ein abspielbarer Audiopuffer mit normalisierten Samples in [-1.0, 1.0)
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// DecodePCM dekodiert base64-kodiertes little-endian 16-bit PCM in einen Buffer.
// Ein überzähliges Byte am Ende wird ignoriert.
func DecodePCM(b64 string) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("audio: base64 dekodieren: %w", err)
	}
	return FromPCM(raw), nil
}

// FromPCM wandelt rohe PCM-Bytes in einen Buffer um
func FromPCM(raw []byte) *Buffer {
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768
	}
	return &Buffer{SampleRate: SampleRate, Channels: Channels, Samples: samples}
}

// Duration liefert die Abspieldauer des Puffers
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// WAV kodiert den Puffer als 16-bit PCM RIFF/WAVE-Datei
func (b *Buffer) WAV() []byte {
	dataLen := len(b.Samples) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	write := func(v interface{}) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	write(uint32(36 + dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(b.Channels))
	write(uint32(b.SampleRate))
	write(uint32(b.SampleRate * b.Channels * 2))
	write(uint16(b.Channels * 2))
	write(uint16(16))
	buf.WriteString("data")
	write(uint32(dataLen))

	for _, s := range b.Samples {
		v := s * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		write(int16(v))
	}
	return buf.Bytes()
}
