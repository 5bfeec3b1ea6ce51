package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"recorder-transcriber-service/internal/observability/metrics"
)

// KafkaConfig holds Kafka mirror configuration.
type KafkaConfig struct {
	Brokers     []string
	TopicState  string
	TopicResult string
	Principal   string
	Enabled     bool
	QueueSize   int
}

// KafkaMirror copies session events to Kafka: state changes and errors to
// the state topic, results to the result topic. Writes happen on a
// background goroutine so Mirror never blocks the session machine.
type KafkaMirror struct {
	writerState  *kafka.Writer
	writerResult *kafka.Writer
	principal    string
	topicState   string
	topicResult  string
	enabled      bool
	metrics      *metrics.Metrics

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	wg     sync.WaitGroup
}

// NewKafkaMirror creates the mirror. Without brokers it runs in log-only mode.
func NewKafkaMirror(cfg *KafkaConfig) *KafkaMirror {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &KafkaMirror{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &KafkaMirror{
			principal:   cfg.Principal,
			topicState:  cfg.TopicState,
			topicResult: cfg.TopicResult,
			enabled:     false,
			metrics:     m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	k := &KafkaMirror{
		writerState:  newWriter(cfg.TopicState),
		writerResult: newWriter(cfg.TopicResult),
		principal:    cfg.Principal,
		topicState:   cfg.TopicState,
		topicResult:  cfg.TopicResult,
		enabled:      true,
		metrics:      m,
		queue:        make(chan Event, queueSize),
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicState", cfg.TopicState).
		Str("topicResult", cfg.TopicResult).
		Str("principal", cfg.Principal).
		Msg("Kafka mirror initialized")

	k.wg.Add(1)
	go k.run()
	return k
}

// Mirror queues ev for publication.
func (k *KafkaMirror) Mirror(ev Event) {
	if !k.enabled {
		_ = k.dispatch(context.Background(), ev)
		return
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return
	}
	select {
	case k.queue <- ev:
	default:
		k.metrics.RecordEventDropped(string(ev.Type), "kafka_queue_full")
		log.Warn().Str("type", string(ev.Type)).Msg("Kafka mirror queue full, event dropped")
	}
}

func (k *KafkaMirror) run() {
	defer k.wg.Done()
	for ev := range k.queue {
		_ = k.dispatch(context.Background(), ev)
	}
}

func (k *KafkaMirror) dispatch(ctx context.Context, ev Event) error {
	key := sessionKey(ev.Generation)
	if ev.Type == TypeResult {
		return k.PublishResult(ctx, key, ev.Payload())
	}
	return k.PublishState(ctx, key, ev.Payload())
}

// PublishState publishes a state or error event to the state topic.
func (k *KafkaMirror) PublishState(ctx context.Context, key string, event any) error {
	return k.publish(ctx, k.writerState, k.topicState, "state", key, event)
}

// PublishResult publishes a result event to the result topic.
func (k *KafkaMirror) PublishResult(ctx context.Context, key string, event any) error {
	return k.publish(ctx, k.writerResult, k.topicResult, "result", key, event)
}

func (k *KafkaMirror) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", k.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !k.enabled || writer == nil {
		k.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(k.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		k.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	k.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close drains the queue and closes both writers.
func (k *KafkaMirror) Close() error {
	k.mu.Lock()
	if !k.closed && k.queue != nil {
		close(k.queue)
	}
	k.closed = true
	k.mu.Unlock()
	k.wg.Wait()

	var err error
	if k.writerState != nil {
		if e := k.writerState.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing state writer")
			err = e
		}
	}
	if k.writerResult != nil {
		if e := k.writerResult.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing result writer")
			err = e
		}
	}
	return err
}

func sessionKey(gen uint64) string {
	return "session-" + strconv.FormatUint(gen, 10)
}
