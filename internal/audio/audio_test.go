package audio

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePCMNormalizesSamples(t *testing.T) {
	raw := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x00, 0x40, // 16384
		0xff, 0xff, // -1
	}
	buf, err := DecodePCM(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	require.Len(t, buf.Samples, len(raw)/2)
	assert.Equal(t, SampleRate, buf.SampleRate)
	assert.Equal(t, Channels, buf.Channels)
	for i := range buf.Samples {
		want := float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
		assert.Equal(t, want, buf.Samples[i], "sample %d", i)
	}
	assert.Equal(t, float32(-1), buf.Samples[2])
	assert.Less(t, buf.Samples[1], float32(1))
}

func TestDecodePCMIgnoresTrailingByte(t *testing.T) {
	buf, err := DecodePCM(base64.StdEncoding.EncodeToString([]byte{0x01, 0x00, 0x02}))
	require.NoError(t, err)
	assert.Len(t, buf.Samples, 1)
}

func TestDecodePCMRejectsInvalidBase64(t *testing.T) {
	_, err := DecodePCM("%%%")
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	buf := &Buffer{SampleRate: SampleRate, Channels: 1, Samples: make([]float32, SampleRate/2)}
	assert.Equal(t, 500*time.Millisecond, buf.Duration())
}

func TestWAVHeader(t *testing.T) {
	buf := FromPCM([]byte{0x10, 0x00, 0x20, 0x00})
	wav := buf.WAV()

	require.Len(t, wav, 48)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(SampleRate), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, []byte{0x10, 0x00, 0x20, 0x00}, wav[44:])
}

// blockingSink spielt, bis ctx beendet oder release geschlossen wird
type blockingSink struct {
	active  int32
	maxSeen int32
	release chan struct{}
	mu      sync.Mutex
	played  int
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) Play(ctx context.Context, buf *Buffer) error {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		m := atomic.LoadInt32(&s.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxSeen, m, n) {
			break
		}
	}
	s.mu.Lock()
	s.played++
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.release:
		return nil
	}
}

func TestPlayerStopsPreviousSource(t *testing.T) {
	sink := newBlockingSink()
	p := NewPlayer(sink)
	buf := FromPCM(make([]byte, 8))

	p.Play(buf)
	p.Play(buf)
	p.Play(buf)
	assert.Equal(t, StatePlaying, p.State())

	p.Stop()
	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&sink.active))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sink.maxSeen))
	assert.Equal(t, 3, sink.played)
}

func TestPlayerNaturalEnd(t *testing.T) {
	sink := newBlockingSink()
	p := NewPlayer(sink)

	states := make(chan State, 4)
	p.OnStateChange(func(s State) { states <- s })

	p.Play(FromPCM(make([]byte, 8)))
	assert.Equal(t, StatePlaying, <-states)

	close(sink.release)
	select {
	case s := <-states:
		assert.Equal(t, StateStopped, s)
	case <-time.After(2 * time.Second):
		t.Fatal("wiedergabe wurde nicht beendet")
	}
	assert.Equal(t, StateStopped, p.State())

	// Stop nach natürlichem Ende ist ein No-op
	p.Stop()
	assert.Equal(t, StateStopped, p.State())
}

func TestClockSinkHonoursCancel(t *testing.T) {
	buf := &Buffer{SampleRate: SampleRate, Channels: 1, Samples: make([]float32, SampleRate*60)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ClockSink{}.Play(ctx, buf)
	assert.ErrorIs(t, err, context.Canceled)
}
