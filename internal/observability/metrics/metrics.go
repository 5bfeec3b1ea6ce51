// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recorder_transcriber"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal       *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	SessionDuration     *prometheus.HistogramVec
	Transitions         *prometheus.CounterVec
	TransitionConflicts *prometheus.CounterVec
	ForcedStops         *prometheus.CounterVec

	// Listening metrics
	WakeDetections     prometheus.Counter
	Utterances         *prometheus.CounterVec
	UtteranceDuration  prometheus.Histogram
	ListenerFailures   *prometheus.CounterVec
	StaleResultsDenied prometheus.Counter

	// Streaming metrics
	StreamsTotal   *prometheus.CounterVec
	StreamsActive  prometheus.Gauge
	StreamDuration prometheus.Histogram
	EventsEmitted  *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec

	// Audio metrics
	AudioBytesRead  prometheus.Counter
	AudioFramesRead prometheus.Counter

	// Storage metrics
	RecordingsSaved *prometheus.CounterVec
	StorageErrors   *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Gateway metrics
	GatewayLatency *prometheus.HistogramVec
	GatewayErrors  *prometheus.CounterVec

	// Request metrics (HTTP and gRPC)
	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of capture sessions started",
		}, []string{"kind"}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently holding the audio source",
		}),
		SessionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of capture sessions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"kind"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to"}),
		TransitionConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_conflicts_total",
			Help:      "Total number of operations rejected because of the current state",
		}, []string{"operation"}),
		ForcedStops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_stops_total",
			Help:      "Total number of listening sessions stopped by a failure",
		}, []string{"reason"}),

		WakeDetections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_detections_total",
			Help:      "Total number of wake-word detections",
		}),
		Utterances: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of segmented utterances by outcome",
		}, []string{"outcome"}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_duration_seconds",
			Help:      "Voiced duration of completed utterances",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		ListenerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Total number of listening loop failures",
		}, []string{"kind"}),
		StaleResultsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_denied_total",
			Help:      "Total number of controller reports rejected by the generation check",
		}),

		StreamsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of streaming subscribers attached",
		}, []string{"transport"}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently attached streaming subscribers",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of streaming connections in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 3600},
		}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Total number of events delivered to the subscriber queue",
		}, []string{"type"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped",
		}, []string{"type", "reason"}),

		AudioBytesRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_read_total",
			Help:      "Total audio bytes read from the source",
		}),
		AudioFramesRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_read_total",
			Help:      "Total audio frames read from the source",
		}),

		RecordingsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_saved_total",
			Help:      "Total number of recordings persisted",
		}, []string{"origin"}),
		StorageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of storage failures",
		}, []string{"operation"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GatewayLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_latency_seconds",
			Help:      "Transcription and enhancement gateway latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"gateway", "provider"}),
		GatewayErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Total number of gateway failures",
		}, []string{"gateway", "provider"}),

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of control requests by transport, method and status",
		}, []string{"transport", "method", "code"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Control request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "method"}),
	}
}

// RecordSessionStart records a session acquiring the audio source.
func (m *Metrics) RecordSessionStart(kind string) {
	m.SessionsTotal.WithLabelValues(kind).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session releasing the audio source.
func (m *Metrics) RecordSessionEnd(kind string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordTransition records a state transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordConflict records an operation rejected for the current state.
func (m *Metrics) RecordConflict(operation string) {
	m.TransitionConflicts.WithLabelValues(operation).Inc()
}

// RecordForcedStop records a listening session stopped by a failure.
func (m *Metrics) RecordForcedStop(reason string) {
	m.ForcedStops.WithLabelValues(reason).Inc()
}

// RecordWakeDetection records a wake-word detection.
func (m *Metrics) RecordWakeDetection() {
	m.WakeDetections.Inc()
}

// RecordUtterance records a segmented utterance and its voiced duration.
// Outcome is completed, ceiling (cut by the maximum length) or dropped.
func (m *Metrics) RecordUtterance(outcome string, voicedSeconds float64) {
	m.Utterances.WithLabelValues(outcome).Inc()
	if outcome != "dropped" {
		m.UtteranceDuration.Observe(voicedSeconds)
	}
}

// RecordListenerFailure records a detector, segmenter or resource failure.
func (m *Metrics) RecordListenerFailure(kind string) {
	m.ListenerFailures.WithLabelValues(kind).Inc()
}

// RecordStaleReport records a controller report rejected as stale.
func (m *Metrics) RecordStaleReport() {
	m.StaleResultsDenied.Inc()
}

// RecordStreamStart records a new streaming subscriber.
func (m *Metrics) RecordStreamStart(transport string) {
	m.StreamsTotal.WithLabelValues(transport).Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a streaming subscriber detaching.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordEventEmitted records an event queued for the subscriber.
func (m *Metrics) RecordEventEmitted(eventType string) {
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records a dropped event.
func (m *Metrics) RecordEventDropped(eventType, reason string) {
	m.EventsDropped.WithLabelValues(eventType, reason).Inc()
}

// RecordAudioRead records audio bytes and frames read from a source.
func (m *Metrics) RecordAudioRead(bytes int) {
	m.AudioBytesRead.Add(float64(bytes))
	m.AudioFramesRead.Inc()
}

// RecordRecordingSaved records a persisted recording.
func (m *Metrics) RecordRecordingSaved(origin string) {
	m.RecordingsSaved.WithLabelValues(origin).Inc()
}

// RecordStorageError records a storage failure.
func (m *Metrics) RecordStorageError(operation string) {
	m.StorageErrors.WithLabelValues(operation).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGatewayCall records a gateway call and its outcome.
func (m *Metrics) RecordGatewayCall(gateway, provider string, err error, latencySeconds float64) {
	m.GatewayLatency.WithLabelValues(gateway, provider).Observe(latencySeconds)
	if err != nil {
		m.GatewayErrors.WithLabelValues(gateway, provider).Inc()
	}
}

// RecordRequest records a finished HTTP or gRPC request.
func (m *Metrics) RecordRequest(transport, method, code string, latencySeconds float64) {
	m.RequestsTotal.WithLabelValues(transport, method, code).Inc()
	m.RequestLatency.WithLabelValues(transport, method).Observe(latencySeconds)
}
