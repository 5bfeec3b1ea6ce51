package events

import (
	"context"
	"testing"
	"time"
)

func TestNewKafkaMirror_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *KafkaConfig
	}{
		{"nil config", nil},
		{"disabled", &KafkaConfig{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &KafkaConfig{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &KafkaConfig{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKafkaMirror(tt.cfg)
			if k == nil {
				t.Fatal("expected non-nil mirror")
			}
			if k.enabled {
				t.Error("expected mirror to be disabled")
			}
			if k.writerState != nil {
				t.Error("expected nil state writer when disabled")
			}
			if k.writerResult != nil {
				t.Error("expected nil result writer when disabled")
			}
		})
	}
}

func TestNewKafkaMirror_ConfigValues(t *testing.T) {
	k := NewKafkaMirror(&KafkaConfig{
		Enabled:     false,
		Brokers:     []string{"localhost:9092"},
		TopicState:  "test.state",
		TopicResult: "test.result",
		Principal:   "test-principal",
	})

	if k.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", k.principal)
	}
	if k.topicState != "test.state" {
		t.Errorf("expected topic state 'test.state', got %s", k.topicState)
	}
	if k.topicResult != "test.result" {
		t.Errorf("expected topic result 'test.result', got %s", k.topicResult)
	}
}

func TestKafkaMirror_Publish_Disabled(t *testing.T) {
	k := NewKafkaMirror(&KafkaConfig{Enabled: false})

	if err := k.PublishState(context.Background(), "session-1", StateChange(1, "ARMED", time.Now()).Payload()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if err := k.PublishResult(context.Background(), "session-1", Event{Type: TypeResult, Text: "hello"}.Payload()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestKafkaMirror_Publish_InvalidJSON(t *testing.T) {
	k := NewKafkaMirror(&KafkaConfig{Enabled: false})

	event := make(chan int)
	if err := k.PublishState(context.Background(), "session-1", event); err == nil {
		t.Error("expected error for unmarshalable event")
	}
	if err := k.PublishResult(context.Background(), "session-1", event); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestKafkaMirror_MirrorDisabledDoesNotBlock(t *testing.T) {
	k := NewKafkaMirror(nil)

	for i := 0; i < 1000; i++ {
		k.Mirror(StateChange(uint64(i), "ARMED", time.Now()))
	}
}

func TestKafkaMirror_Close_NoWriters(t *testing.T) {
	k := NewKafkaMirror(&KafkaConfig{Enabled: false})

	if err := k.Close(); err != nil {
		t.Errorf("expected no error closing disabled mirror, got %v", err)
	}
	// Mirroring after close is a no-op.
	k.Mirror(StateChange(1, "IDLE", time.Now()))
}

func TestSessionKey(t *testing.T) {
	if got := sessionKey(42); got != "session-42" {
		t.Errorf("expected 'session-42', got %s", got)
	}
}
