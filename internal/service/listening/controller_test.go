package listening

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/events"
	"recorder-transcriber-service/internal/observability/metrics"
	"recorder-transcriber-service/internal/service/segment"
	"recorder-transcriber-service/internal/service/session"
	"recorder-transcriber-service/internal/service/transcription"
	"recorder-transcriber-service/internal/service/wakeword"
	"recorder-transcriber-service/internal/storage"
)

const frameDur = 20 * time.Millisecond

var epoch = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type part struct {
	d     time.Duration
	level float64
}

func silence(d time.Duration) part { return part{d: d} }
func speech(d time.Duration) part  { return part{d: d, level: 0.3} }

// script renders parts as 20ms frames with consecutive timestamps.
func script(parts ...part) []audio.Frame {
	f := audio.DefaultFormat
	var out []audio.Frame
	at := epoch
	for _, p := range parts {
		for n := time.Duration(0); n < p.d; n += frameDur {
			data := make([]byte, f.Bytes(frameDur))
			if p.level > 0 {
				data = audio.Tone(f, frameDur, p.level)
			}
			out = append(out, audio.Frame{Data: data, Format: f, Sequence: uint64(len(out) + 1), Timestamp: at})
			at = at.Add(frameDur)
		}
	}
	return out
}

// scriptedSource plays its frames once, then fails with readErr or blocks
// until closed.
type scriptedSource struct {
	frames  []audio.Frame
	openErr error
	readErr error
}

func (s *scriptedSource) Open(ctx context.Context) (audio.Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &scriptedStream{src: s, closed: make(chan struct{})}, nil
}

type scriptedStream struct {
	src    *scriptedSource
	i      int
	once   sync.Once
	closed chan struct{}
}

func (s *scriptedStream) Read(ctx context.Context) (audio.Frame, error) {
	select {
	case <-s.closed:
		return audio.Frame{}, audio.ErrStreamClosed
	default:
	}
	if s.i < len(s.src.frames) {
		s.i++
		return s.src.frames[s.i-1], nil
	}
	if s.src.readErr != nil {
		return audio.Frame{}, s.src.readErr
	}
	select {
	case <-s.closed:
		return audio.Frame{}, audio.ErrStreamClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type memorySaver struct {
	mu    sync.Mutex
	saved []storage.Recording
}

func (s *memorySaver) Save(ctx context.Context, origin string, pcm []byte, format audio.Format, capturedAt time.Time) (storage.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "/data/" + origin + "-" + capturedAt.Format("150405.000") + ".wav"
	rec := storage.Recording{ID: id, Path: id, Origin: origin, CapturedAt: capturedAt, Duration: format.Duration(len(pcm))}
	s.saved = append(s.saved, rec)
	return rec, nil
}

type fakeTranscriber struct {
	text    string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeTranscriber) TranscribeRecording(ctx context.Context, rec storage.Recording, format audio.Format, pcm []byte) (transcription.Transcript, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return transcription.Transcript{}, f.err
	}
	return transcription.Transcript{RecordingID: rec.ID, Text: f.text, GeneratedAt: time.Now().UTC()}, nil
}

type failingDetector struct {
	mu    sync.Mutex
	calls int
}

func (d *failingDetector) Detect(w *wakeword.Window) (wakeword.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return wakeword.Detection{}, wakeword.ErrInvalidFrame
}

func (d *failingDetector) Reset() {}

type recordingPublisher struct {
	mu  sync.Mutex
	evs []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
}

func (p *recordingPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.evs...)
}

func trace(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		if ev.Type == events.TypeStateChange {
			out = append(out, ev.State)
		} else {
			out = append(out, string(ev.Type))
		}
	}
	return out
}

// waitEvents polls until n events were published.
func (p *recordingPublisher) waitEvents(t *testing.T, n int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if evs := p.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	evs := p.snapshot()
	t.Fatalf("expected %d events, got %v", n, trace(evs))
	return nil
}

type harness struct {
	machine *session.Machine
	pub     *recordingPublisher
	saver   *memorySaver
}

func newHarness(src audio.Source, det wakeword.Detector, tr Transcriber) *harness {
	return newHarnessWith(segment.DefaultConfig(), src, det, tr)
}

func newHarnessWith(segCfg segment.Config, src audio.Source, det wakeword.Detector, tr Transcriber) *harness {
	saver := &memorySaver{}
	pub := &recordingPublisher{}
	ctrl := NewController(Config{
		WakeWindow:       2 * time.Second,
		FailureThreshold: 3,
		GatewayTimeout:   time.Second,
		Segmenter:        segCfg,
	}, src, det, saver, tr)
	m := session.NewMachine(session.Config{StopGrace: 100 * time.Millisecond}, src, saver, ctrl, pub)
	return &harness{machine: m, pub: pub, saver: saver}
}

func energyDetector() wakeword.Detector {
	return wakeword.NewEnergyDetector("hey recorder", 240*time.Millisecond, 0.5)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListen_WakeWordUtteranceProducesResult(t *testing.T) {
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(2*time.Second), silence(time.Second))}
	h := newHarness(src, energyDetector(), &fakeTranscriber{text: "remind me to water the plants"})

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	evs := h.pub.waitEvents(t, 4)

	if got := trace(evs); !equal(got, []string{"ARMED", "LISTENING", "result", "ARMED"}) {
		t.Fatalf("unexpected events %v", got)
	}
	res := evs[2]
	if res.Text != "remind me to water the plants" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.RecordingID == "" || res.Path != res.RecordingID {
		t.Errorf("unexpected recording %q at %q", res.RecordingID, res.Path)
	}
	// End of speech is declared 700ms into the trailing second of silence.
	wantEnd := epoch.Add(300*time.Millisecond + 2*time.Second + 680*time.Millisecond)
	if d := res.CapturedAt.Sub(wantEnd); d < -frameDur || d > frameDur {
		t.Errorf("captured_at %v, want about %v", res.CapturedAt, wantEnd)
	}
	if len(h.saver.saved) != 1 || h.saver.saved[0].Origin != storage.OriginListening {
		t.Errorf("expected one listening recording, got %+v", h.saver.saved)
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].Timestamp.Before(evs[i-1].Timestamp) {
			t.Errorf("event %d timestamp goes backwards", i)
		}
	}

	if err := h.machine.DisarmListening(context.Background()); err != nil {
		t.Fatalf("disarm: %v", err)
	}
	if got := trace(h.pub.snapshot()); got[len(got)-1] != "STOPPED" {
		t.Errorf("expected STOPPED last, got %v", got)
	}
}

func TestListen_ShortSpikeProducesNoEvents(t *testing.T) {
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(60*time.Millisecond), silence(2*time.Second))}
	tr := &fakeTranscriber{text: "should not happen"}
	h := newHarness(src, energyDetector(), tr)

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := trace(h.pub.snapshot()); !equal(got, []string{"ARMED"}) {
		t.Errorf("expected only ARMED, got %v", got)
	}
	_ = h.machine.DisarmListening(context.Background())
}

func TestListen_ShortUtteranceAfterWakeIsDropped(t *testing.T) {
	// The wake span leaves under 300ms of voiced audio for the segmenter.
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(300*time.Millisecond), silence(time.Second))}
	tr := &fakeTranscriber{text: "should not happen"}
	h := newHarness(src, energyDetector(), tr)

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	h.pub.waitEvents(t, 3)
	time.Sleep(50 * time.Millisecond)

	if got := trace(h.pub.snapshot()); !equal(got, []string{"ARMED", "LISTENING", "ARMED"}) {
		t.Errorf("expected no result or error, got %v", got)
	}
	if len(h.saver.saved) != 0 {
		t.Error("dropped utterance must not be saved")
	}
	_ = h.machine.DisarmListening(context.Background())
}

func TestListen_GatewayErrorReturnsToArmed(t *testing.T) {
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(time.Second), silence(time.Second))}
	tr := &fakeTranscriber{err: errors.New("transcription failed: upstream timeout")}
	h := newHarness(src, energyDetector(), tr)

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	evs := h.pub.waitEvents(t, 4)

	if got := trace(evs); !equal(got, []string{"ARMED", "LISTENING", "error", "ARMED"}) {
		t.Fatalf("unexpected events %v", got)
	}
	if evs[2].Message != "transcription failed: upstream timeout" {
		t.Errorf("unexpected error message %q", evs[2].Message)
	}
	if st := h.machine.State(); st != session.StateArmed {
		t.Errorf("expected loop to keep listening, state %s", st)
	}
	_ = h.machine.DisarmListening(context.Background())
}

func TestListen_RepeatedDetectorFailuresStopSession(t *testing.T) {
	src := &scriptedSource{frames: script(silence(time.Second))}
	det := &failingDetector{}
	h := newHarness(src, det, &fakeTranscriber{})

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	evs := h.pub.waitEvents(t, 3)

	if got := trace(evs); !equal(got, []string{"ARMED", "error", "STOPPED"}) {
		t.Fatalf("unexpected events %v", got)
	}
	det.mu.Lock()
	calls := det.calls
	det.mu.Unlock()
	if calls != 3 {
		t.Errorf("expected stop after 3 failures, detector called %d times", calls)
	}
	if st := h.machine.State(); st != session.StateIdle {
		t.Errorf("expected IDLE, got %s", st)
	}
}

func TestListen_ResourceFailure(t *testing.T) {
	tests := []struct {
		name string
		src  *scriptedSource
	}{
		{"open fails", &scriptedSource{openErr: errors.New("device busy")}},
		{"lost mid-stream", &scriptedSource{frames: script(silence(100 * time.Millisecond)), readErr: errors.New("read audio: broken pipe")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.src, energyDetector(), &fakeTranscriber{})

			if _, err := h.machine.ArmListening(); err != nil {
				t.Fatalf("arm: %v", err)
			}
			evs := h.pub.waitEvents(t, 3)

			if got := trace(evs); !equal(got, []string{"ARMED", "error", "STOPPED"}) {
				t.Fatalf("unexpected events %v", got)
			}
			if h.machine.State() != session.StateIdle {
				t.Errorf("expected IDLE, got %s", h.machine.State())
			}
			if h.machine.Status().LastError == "" {
				t.Error("expected last error")
			}
		})
	}
}

func TestListen_StaleResultSuppressedAfterDisarm(t *testing.T) {
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(time.Second), silence(time.Second))}
	tr := &fakeTranscriber{text: "late result", started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(src, energyDetector(), tr)

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	select {
	case <-tr.started:
	case <-time.After(3 * time.Second):
		t.Fatal("gateway was not called")
	}

	if err := h.machine.DisarmListening(context.Background()); err != nil {
		t.Fatalf("disarm: %v", err)
	}
	close(tr.release)
	time.Sleep(100 * time.Millisecond)

	if got := trace(h.pub.snapshot()); !equal(got, []string{"ARMED", "LISTENING", "STOPPED"}) {
		t.Errorf("expected no events after disarm, got %v", got)
	}
}

func TestListen_DisarmReleasesSourceDuringGatewayCall(t *testing.T) {
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(time.Second), silence(time.Second))}
	tr := &fakeTranscriber{text: "late result", started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(src, energyDetector(), tr)
	defer close(tr.release)

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	select {
	case <-tr.started:
	case <-time.After(3 * time.Second):
		t.Fatal("gateway was not called")
	}

	begin := time.Now()
	if err := h.machine.DisarmListening(context.Background()); err != nil {
		t.Fatalf("disarm: %v", err)
	}
	if d := time.Since(begin); d >= 100*time.Millisecond {
		t.Errorf("disarm waited %v for the gateway call", d)
	}

	// The transcription is still blocked; the next session must get the source anyway.
	if _, err := h.machine.BeginManualRecording(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	rec, err := h.machine.EndManualRecording(context.Background())
	if err != nil {
		t.Fatalf("manual recording after disarm: %v", err)
	}
	if rec.Duration <= 0 {
		t.Errorf("expected captured audio, got duration %v", rec.Duration)
	}
}

func TestListen_CeilingUtteranceIsCountedAndDelivered(t *testing.T) {
	cfg := segment.DefaultConfig()
	cfg.MaxUtterance = 800 * time.Millisecond
	src := &scriptedSource{frames: script(silence(300*time.Millisecond), speech(1200*time.Millisecond), silence(2*time.Second))}
	h := newHarnessWith(cfg, src, energyDetector(), &fakeTranscriber{text: "cut short"})

	ceiling := metrics.DefaultMetrics.Utterances.WithLabelValues("ceiling")
	before := testutil.ToFloat64(ceiling)

	if _, err := h.machine.ArmListening(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	evs := h.pub.waitEvents(t, 4)
	if got := trace(evs); !equal(got[:4], []string{"ARMED", "LISTENING", "result", "ARMED"}) {
		t.Fatalf("unexpected events %v", got)
	}
	if evs[2].Text != "cut short" {
		t.Errorf("unexpected text %q", evs[2].Text)
	}
	if got := testutil.ToFloat64(ceiling) - before; got != 1 {
		t.Errorf("ceiling utterances = %v, want 1", got)
	}

	if err := h.machine.DisarmListening(context.Background()); err != nil {
		t.Fatalf("disarm: %v", err)
	}
}

func TestUtteranceOutcome(t *testing.T) {
	tests := []struct {
		name string
		u    *segment.Utterance
		want string
	}{
		{name: "trailing silence", u: &segment.Utterance{}, want: "completed"},
		{name: "max length", u: &segment.Utterance{Ceiling: true}, want: "ceiling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := utteranceOutcome(tt.u); got != tt.want {
				t.Errorf("utteranceOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}
