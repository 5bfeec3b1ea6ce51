package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrStreamClosed is returned by Read after Close.
var ErrStreamClosed = errors.New("audio stream closed")

// Source opens exclusive capture streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until closed or exhausted.
// Close must be safe to call concurrently with Read and more than once.
type Stream interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// readerStream cuts fixed-size frames out of a byte stream.
type readerStream struct {
	r         io.ReadCloser
	format    Format
	frameSize int // bytes
	seq       uint64
	eof       bool // a short final frame was returned

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newReaderStream(r io.ReadCloser, format Format, samplesPerFrame int) *readerStream {
	if samplesPerFrame <= 0 {
		samplesPerFrame = 512
	}
	return &readerStream{
		r:         r,
		format:    format,
		frameSize: samplesPerFrame * format.Channels * 2,
		closed:    make(chan struct{}),
	}
}

func (s *readerStream) Read(ctx context.Context) (Frame, error) {
	select {
	case <-s.closed:
		return Frame{}, ErrStreamClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	default:
	}
	if s.eof {
		return Frame{}, fmt.Errorf("read audio: %w", io.EOF)
	}

	buf := make([]byte, s.frameSize)
	n, err := io.ReadFull(s.r, buf)
	if err != nil {
		select {
		case <-s.closed:
			return Frame{}, ErrStreamClosed
		default:
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("read audio: %w", err)
		}
		// The tail is returned as a short frame; EOF follows on the next read.
		if align := s.format.Channels * 2; align > 0 {
			n -= n % align
		}
		if n == 0 {
			return Frame{}, fmt.Errorf("read audio: %w", io.EOF)
		}
		s.eof = true
		buf = buf[:n]
	}
	s.seq++
	return Frame{Data: buf, Format: s.format, Sequence: s.seq, Timestamp: time.Now().UTC()}, nil
}

func (s *readerStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.r.Close()
	})
	return s.closeErr
}

// MemorySource replays an in-memory PCM buffer. With Pace set, frames are
// released in real time, which makes it usable as a microphone stand-in.
type MemorySource struct {
	Format          Format
	SamplesPerFrame int
	PCM             []byte
	Loop            bool
	Pace            bool
}

// Open returns a stream over the buffer.
func (m *MemorySource) Open(ctx context.Context) (Stream, error) {
	if len(m.PCM) == 0 {
		return nil, errors.New("memory source: no audio")
	}
	spf := m.SamplesPerFrame
	if spf <= 0 {
		spf = 512
	}
	return &memoryStream{
		src:       m,
		frameSize: spf * m.Format.Channels * 2,
		closed:    make(chan struct{}),
	}, nil
}

type memoryStream struct {
	src       *MemorySource
	frameSize int
	offset    int
	seq       uint64
	next      time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *memoryStream) Read(ctx context.Context) (Frame, error) {
	select {
	case <-s.closed:
		return Frame{}, ErrStreamClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	default:
	}

	if s.offset >= len(s.src.PCM) {
		if !s.src.Loop {
			return Frame{}, io.EOF
		}
		s.offset = 0
	}
	end := s.offset + s.frameSize
	if end > len(s.src.PCM) {
		end = len(s.src.PCM)
	}
	data := make([]byte, end-s.offset)
	copy(data, s.src.PCM[s.offset:end])
	s.offset = end

	f := Frame{Data: data, Format: s.src.Format}
	if s.src.Pace {
		now := time.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if wait := s.next.Sub(now); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-s.closed:
				t.Stop()
				return Frame{}, ErrStreamClosed
			case <-ctx.Done():
				t.Stop()
				return Frame{}, ctx.Err()
			}
		}
		s.next = s.next.Add(f.Duration())
	}
	s.seq++
	f.Sequence = s.seq
	f.Timestamp = time.Now().UTC()
	return f, nil
}

func (s *memoryStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
