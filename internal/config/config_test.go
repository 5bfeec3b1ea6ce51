package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "LOG_LEVEL",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_AUDIO_ENCODING",
		"AUDIO_SAMPLE_RATE", "RECORDING_MAX_DURATION", "LISTENER_FAILURE_THRESHOLD",
		"SEGMENT_TRAILING_SILENCE", "SEGMENT_MIN_UTTERANCE", "KAFKA_BROKERS",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-recorder-transcriber" {
		t.Errorf("expected default principal 'svc-recorder-transcriber', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8000" {
		t.Errorf("expected default http port '8000', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default grpc port '50051', got %s", cfg.Service.GRPCPort)
	}

	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.STT.AudioEncoding)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSize != 512 {
		t.Errorf("expected default blocksize 512, got %d", cfg.Audio.FrameSize)
	}
	if cfg.Recording.MaxDuration != 300*time.Second {
		t.Errorf("expected default max duration 300s, got %v", cfg.Recording.MaxDuration)
	}
	if cfg.Listener.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold 3, got %d", cfg.Listener.FailureThreshold)
	}
	if cfg.Listener.WakeWindow != 2*time.Second {
		t.Errorf("expected default wake window 2s, got %v", cfg.Listener.WakeWindow)
	}
	if cfg.Segmenter.MaxUtterance != 20*time.Second {
		t.Errorf("expected default max utterance 20s, got %v", cfg.Segmenter.MaxUtterance)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no default brokers, got %v", cfg.Kafka.Brokers)
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("STT_LANGUAGE_CODE", "es-ES")
	t.Setenv("AUDIO_SAMPLE_RATE", "8000")
	t.Setenv("LISTENER_INCLUDE_WAKE_WORD", "true")
	t.Setenv("RECORDING_MAX_DURATION", "10m")
	t.Setenv("SEGMENT_TRAILING_SILENCE", "1500ms")
	t.Setenv("VAD_SPEECH_THRESHOLD", "0.05")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.STT.LanguageCode)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Audio.SampleRate)
	}
	if !cfg.Listener.IncludeWakeWord {
		t.Error("expected wake word inclusion enabled")
	}
	if cfg.Recording.MaxDuration != 10*time.Minute {
		t.Errorf("expected max duration 10m, got %v", cfg.Recording.MaxDuration)
	}
	if cfg.Segmenter.TrailingSilence != 1500*time.Millisecond {
		t.Errorf("expected trailing silence 1.5s, got %v", cfg.Segmenter.TrailingSilence)
	}
	if cfg.Segmenter.SpeechThreshold != 0.05 {
		t.Errorf("expected speech threshold 0.05, got %v", cfg.Segmenter.SpeechThreshold)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	t.Setenv("AUDIO_SAMPLE_RATE", "not-a-number")
	t.Setenv("AUDIO_WAV_LOOP", "invalid")
	t.Setenv("RECORDING_MAX_DURATION", "invalid")
	t.Setenv("WAKE_THRESHOLD", "invalid")
	t.Setenv("LISTENER_FAILURE_THRESHOLD", "invalid")

	cfg := Load()

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.WAVLoop != false {
		t.Errorf("expected default wav loop on invalid input, got %v", cfg.Audio.WAVLoop)
	}
	if cfg.Recording.MaxDuration != 300*time.Second {
		t.Errorf("expected default max duration on invalid input, got %v", cfg.Recording.MaxDuration)
	}
	if cfg.Listener.WakeThreshold != 0.5 {
		t.Errorf("expected default wake threshold on invalid input, got %v", cfg.Listener.WakeThreshold)
	}
	if cfg.Listener.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold on invalid input, got %d", cfg.Listener.FailureThreshold)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST_VAR", "a,, b ,c")

	got := envList("TEST_LIST_VAR")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected [a b c], got %v", got)
	}
}
