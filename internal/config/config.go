// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Recording     RecordingConfig
	Listener      ListenerConfig
	Segmenter     SegmenterConfig
	Storage       StorageConfig
	STT           STTConfig
	LLM           LLMConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds identity and listener ports.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
}

// AudioConfig describes the capture device.
type AudioConfig struct {
	Source        string // ffmpeg, wav
	FFmpegCommand string
	InputFormat   string
	InputDevice   string
	WAVPath       string
	WAVLoop       bool
	SampleRate    int
	Channels      int
	FrameSize     int // samples per frame
}

// RecordingConfig bounds manual capture sessions.
type RecordingConfig struct {
	MaxDuration time.Duration
	StopGrace   time.Duration
}

// ListenerConfig tunes wake-word detection and the listening loop.
type ListenerConfig struct {
	WakeWindow       time.Duration
	WakeTrigger      time.Duration
	WakeThreshold    float64
	WakeKeyword      string
	IncludeWakeWord  bool
	FailureThreshold int
	GatewayTimeout   time.Duration
	SubscriberBuffer int
}

// SegmenterConfig tunes utterance end-of-speech detection.
type SegmenterConfig struct {
	TrailingSilence  time.Duration
	LeadingSilence   time.Duration
	MaxUtterance     time.Duration
	MinUtterance     time.Duration
	SpeechThreshold  float64
	SilenceThreshold float64
}

// StorageConfig locates the recording directory and its index.
type StorageConfig struct {
	Dir    string
	DBPath string
}

// STTConfig selects the transcription gateway.
type STTConfig struct {
	Provider      string // mock, google, openai
	LanguageCode  string
	AudioEncoding string
	Model         string
	APIKey        string
	BaseURL       string
}

// LLMConfig selects the enhancement gateway.
type LLMConfig struct {
	Provider    string // mock, openai, gemini
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// KafkaConfig configures the optional event mirror.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicState  string
	TopicResult string
	Principal   string
}

// ObservabilityConfig configures logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration from the environment.
// Malformed values fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-recorder-transcriber")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8000"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
		},
		Audio: AudioConfig{
			Source:        envOrDefault("AUDIO_SOURCE", "ffmpeg"),
			FFmpegCommand: envOrDefault("AUDIO_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:   envOrDefault("AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:   envOrDefault("AUDIO_INPUT_DEVICE", "default"),
			WAVPath:       envOrDefault("AUDIO_WAV_PATH", ""),
			WAVLoop:       envOrDefaultBool("AUDIO_WAV_LOOP", false),
			SampleRate:    envOrDefaultInt("AUDIO_SAMPLE_RATE", 16000),
			Channels:      envOrDefaultInt("AUDIO_CHANNELS", 1),
			FrameSize:     envOrDefaultInt("AUDIO_BLOCKSIZE", 512),
		},
		Recording: RecordingConfig{
			MaxDuration: envOrDefaultDuration("RECORDING_MAX_DURATION", 300*time.Second),
			StopGrace:   envOrDefaultDuration("SESSION_STOP_GRACE", 2*time.Second),
		},
		Listener: ListenerConfig{
			WakeWindow:       envOrDefaultDuration("WAKE_WINDOW", 2*time.Second),
			WakeTrigger:      envOrDefaultDuration("WAKE_TRIGGER", 240*time.Millisecond),
			WakeThreshold:    envOrDefaultFloat("WAKE_THRESHOLD", 0.5),
			WakeKeyword:      envOrDefault("WAKE_KEYWORD", "hey recorder"),
			IncludeWakeWord:  envOrDefaultBool("LISTENER_INCLUDE_WAKE_WORD", false),
			FailureThreshold: envOrDefaultInt("LISTENER_FAILURE_THRESHOLD", 3),
			GatewayTimeout:   envOrDefaultDuration("GATEWAY_TIMEOUT", 60*time.Second),
			SubscriberBuffer: envOrDefaultInt("SUBSCRIBER_BUFFER", 64),
		},
		Segmenter: SegmenterConfig{
			TrailingSilence:  envOrDefaultDuration("SEGMENT_TRAILING_SILENCE", 700*time.Millisecond),
			LeadingSilence:   envOrDefaultDuration("SEGMENT_LEADING_SILENCE", 5*time.Second),
			MaxUtterance:     envOrDefaultDuration("SEGMENT_MAX_UTTERANCE", 20*time.Second),
			MinUtterance:     envOrDefaultDuration("SEGMENT_MIN_UTTERANCE", 300*time.Millisecond),
			SpeechThreshold:  envOrDefaultFloat("VAD_SPEECH_THRESHOLD", 0.02),
			SilenceThreshold: envOrDefaultFloat("VAD_SILENCE_THRESHOLD", 0.01),
		},
		Storage: StorageConfig{
			Dir:    envOrDefault("STORAGE_DIR", "data/recordings"),
			DBPath: envOrDefault("STORAGE_DB_PATH", "data/recordings.sqlite"),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Model:         envOrDefault("STT_MODEL", "whisper-1"),
			APIKey:        envOrDefault("STT_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:       envOrDefault("STT_BASE_URL", ""),
		},
		LLM: LLMConfig{
			Provider:    envOrDefault("LLM_PROVIDER", "mock"),
			Model:       envOrDefault("LLM_MODEL", ""),
			APIKey:      envOrDefault("LLM_API_KEY", ""),
			BaseURL:     envOrDefault("LLM_BASE_URL", ""),
			Temperature: envOrDefaultFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:   envOrDefaultInt("LLM_MAX_TOKENS", 1024),
			Timeout:     envOrDefaultDuration("LLM_TIMEOUT", 160*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     envList("KAFKA_BROKERS"),
			TopicState:  envOrDefault("KAFKA_TOPIC_STATE", "recorder.session.state"),
			TopicResult: envOrDefault("KAFKA_TOPIC_RESULT", "recorder.session.result"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
