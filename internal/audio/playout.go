package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

// Playout is the FIFO between the speech producer and the audio device. The
// number of bytes the device has consumed is the authoritative playback
// clock, so Playout implements Clock.
type Playout struct {
	rb         *ringbuffer.RingBuffer
	sampleRate int

	consumed atomic.Int64
	closed   atomic.Bool
	mu       sync.Mutex // serialises writers
}

// NewPlayout creates a buffer holding up to capacity of 16-bit mono audio.
func NewPlayout(sampleRate int, capacity time.Duration) (*Playout, error) {
	if sampleRate <= 0 {
		return nil, ErrSampleRate
	}
	size := int(capacity.Seconds()*float64(sampleRate)) * 2
	if size < 2 {
		size = 2
	}
	return &Playout{
		rb:         ringbuffer.New(size).SetBlocking(false),
		sampleRate: sampleRate,
	}, nil
}

// SampleRate returns the playback rate.
func (p *Playout) SampleRate() int {
	return p.sampleRate
}

// Write queues PCM bytes. It writes as much as fits and returns ErrBufferFull
// when the buffer could not take everything.
func (p *Playout) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.rb.Write(data)
	if errors.Is(err, ringbuffer.ErrIsFull) || errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return n, ErrBufferFull
	}
	return n, err
}

// Read hands queued bytes to the device and advances the clock. An empty
// buffer returns 0 bytes and no error; after Close it returns io.EOF.
func (p *Playout) Read(buf []byte) (int, error) {
	n, err := p.rb.Read(buf)
	if n > 0 {
		p.consumed.Add(int64(n))
	}
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		if p.closed.Load() {
			return n, io.EOF
		}
		return n, nil
	}
	return n, err
}

// Position implements Clock: seconds of audio consumed by the device.
func (p *Playout) Position() float64 {
	return float64(p.consumed.Load()/2) / float64(p.sampleRate)
}

// Buffered returns the queued, not yet played, audio in seconds.
func (p *Playout) Buffered() float64 {
	return float64(p.rb.Length()/2) / float64(p.sampleRate)
}

// Close marks the end of the stream. Queued audio can still be read.
func (p *Playout) Close() error {
	p.closed.Store(true)
	return nil
}

// Reset drops queued audio and rewinds the clock.
func (p *Playout) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rb.Reset()
	p.consumed.Store(0)
	p.closed.Store(false)
}

// Drain plays the buffer into sink in real time, chunk by chunk, until the
// stream is closed and empty or ctx is done. It stands in for a sound card
// when no device is attached.
func (p *Playout) Drain(ctx context.Context, sink io.Writer, chunk time.Duration) error {
	if chunk <= 0 {
		chunk = 10 * time.Millisecond
	}
	buf := make([]byte, int(chunk.Seconds()*float64(p.sampleRate))*2)
	if len(buf) == 0 {
		buf = make([]byte, 2)
	}

	ticker := time.NewTicker(chunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := p.Read(buf)
			if n > 0 {
				if _, werr := sink.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}
