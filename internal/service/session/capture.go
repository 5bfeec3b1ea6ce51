package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/observability/metrics"
)

// capture is the background reader of a manual recording.
type capture struct {
	gen       uint64
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	frames []audio.Frame
	err    error
}

func newCapture(gen uint64, startedAt time.Time, cancel context.CancelFunc) *capture {
	return &capture{gen: gen, startedAt: startedAt, cancel: cancel, done: make(chan struct{})}
}

// run reads frames until ctx is cancelled or the stream ends. It waits for
// the previous owner of the source to release it first.
func (c *capture) run(ctx context.Context, src audio.Source, prev <-chan struct{}, m *metrics.Metrics) {
	defer close(c.done)
	log := logging.WithSession("capture", c.gen)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	stream, err := src.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to open audio source")
			c.fail(err)
		}
		return
	}
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()
	defer stream.Close()

	for {
		f, err := stream.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				log.Info().Msg("Audio source exhausted")
			default:
				log.Error().Err(err).Msg("Audio source lost")
				c.fail(err)
			}
			return
		}
		m.RecordAudioRead(len(f.Data))

		c.mu.Lock()
		c.frames = append(c.frames, f)
		c.mu.Unlock()
	}
}

func (c *capture) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// wait blocks until the reader has released the source or grace elapses.
func (c *capture) wait(grace time.Duration) bool {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}

// pcm returns the captured audio, cut to at most max of playback.
func (c *capture) pcm(max time.Duration) ([]byte, audio.Format, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := audio.DefaultFormat
	if len(c.frames) > 0 {
		format = c.frames[0].Format
	}
	data := audio.Concat(c.frames)
	if limit := format.Bytes(max); max > 0 && len(data) > limit {
		data = data[:limit]
	}
	return data, format, c.err
}
