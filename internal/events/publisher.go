// Package events delivers session events to the single live subscriber and
// mirrors them to Kafka.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/observability/metrics"
)

// ErrSubscriberAttached is returned when a second subscriber tries to attach.
var ErrSubscriberAttached = errors.New("another client is already subscribed")

// Detach reasons.
const (
	DetachClosed   = "closed"
	DetachOverflow = "overflow"
)

// Mirror receives a copy of every published event. It must not block.
type Mirror interface {
	Mirror(ev Event)
}

// Publisher fans events out to at most one subscriber, in publish order.
// Publish never blocks: with no subscriber the event is dropped, and a
// subscriber whose queue is full is detached.
type Publisher struct {
	mu         sync.Mutex
	sub        *Subscription
	bufferSize int
	onDetach   func(reason string)
	mirror     Mirror
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewPublisher returns a publisher with a per-subscriber queue of bufferSize.
// mirror may be nil.
func NewPublisher(bufferSize int, mirror Mirror) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Publisher{
		bufferSize: bufferSize,
		mirror:     mirror,
		metrics:    metrics.DefaultMetrics,
		log:        logging.WithComponent("publisher"),
	}
}

// OnDetach registers fn to run whenever the subscriber goes away.
func (p *Publisher) OnDetach(fn func(reason string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDetach = fn
}

// Attach registers the subscriber.
func (p *Publisher) Attach(id, transport string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub != nil {
		return nil, ErrSubscriberAttached
	}
	s := &Subscription{
		ID:         id,
		Transport:  transport,
		AttachedAt: time.Now(),
		events:     make(chan Event, p.bufferSize),
		done:       make(chan struct{}),
		p:          p,
	}
	p.sub = s
	p.metrics.RecordStreamStart(transport)
	p.log.Info().Str("subscriberId", id).Str("transport", transport).Msg("Subscriber attached")
	return s, nil
}

// HasSubscriber reports whether a subscriber is attached.
func (p *Publisher) HasSubscriber() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil
}

// Publish queues ev for the subscriber.
func (p *Publisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mirror != nil {
		p.mirror.Mirror(ev)
	}

	if p.sub == nil {
		p.metrics.RecordEventDropped(string(ev.Type), "no_subscriber")
		p.log.Debug().Str("type", string(ev.Type)).Msg("No subscriber, event dropped")
		return
	}

	select {
	case p.sub.events <- ev:
		p.metrics.RecordEventEmitted(string(ev.Type))
	default:
		p.metrics.RecordEventDropped(string(ev.Type), DetachOverflow)
		p.log.Warn().
			Str("subscriberId", p.sub.ID).
			Int("buffer", p.bufferSize).
			Msg("Subscriber queue full, detaching")
		hook := p.detachLocked(p.sub, DetachOverflow)
		if hook != nil {
			// Publish may run under the caller's locks.
			go hook()
		}
	}
}

// detachLocked removes s if it is current and returns the hook to run.
func (p *Publisher) detachLocked(s *Subscription, reason string) func() {
	if p.sub != s {
		return nil
	}
	p.sub = nil
	close(s.done)
	p.metrics.RecordStreamEnd(time.Since(s.AttachedAt).Seconds())
	p.log.Info().Str("subscriberId", s.ID).Str("reason", reason).Msg("Subscriber detached")

	if p.onDetach == nil {
		return nil
	}
	fn := p.onDetach
	return func() { fn(reason) }
}

// Subscription is the attached subscriber's view of the publisher.
type Subscription struct {
	ID         string
	Transport  string
	AttachedAt time.Time

	events chan Event
	done   chan struct{}
	p      *Publisher
}

// Events yields queued events in publish order.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed when the subscription is detached.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close detaches the subscription and runs the detach hook. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.p.mu.Lock()
	hook := s.p.detachLocked(s, DetachClosed)
	s.p.mu.Unlock()

	if hook != nil {
		hook()
	}
}
