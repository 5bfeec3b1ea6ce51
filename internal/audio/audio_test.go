package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormat_Duration(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1}

	if got := f.Duration(32000); got != time.Second {
		t.Errorf("expected 1s for 32000 bytes, got %v", got)
	}
	if got := f.Duration(1024); got != 32*time.Millisecond {
		t.Errorf("expected 32ms for 512 samples, got %v", got)
	}
	if got := (Format{}).Duration(100); got != 0 {
		t.Errorf("expected zero duration for empty format, got %v", got)
	}
}

func TestFormat_Bytes_AlignsToSamples(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 2}

	n := f.Bytes(time.Second / 3)
	if n%4 != 0 {
		t.Errorf("expected byte count aligned to 4, got %d", n)
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
		tol  float64
	}{
		{"empty", nil, 0, 0},
		{"silence", make([]byte, 1024), 0, 0},
		{"half scale tone", Tone(DefaultFormat, 10*time.Millisecond, 0.5), 0.5, 0.001},
		{"full scale tone", Tone(DefaultFormat, 10*time.Millisecond, 1.0), 1.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.pcm)
			if got < tt.want-tt.tol || got > tt.want+tt.tol {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcat(t *testing.T) {
	frames := []Frame{{Data: []byte{1, 2}}, {Data: []byte{3}}, {Data: nil}}

	got := Concat(frames)
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	var buf bytes.Buffer
	pcm := Tone(DefaultFormat, 100*time.Millisecond, 0.2)

	if err := EncodeWAV(&buf, pcm, DefaultFormat); err != nil {
		t.Fatalf("EncodeWAV() error: %v", err)
	}

	header := buf.Bytes()[:wavHeaderSize]
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Fatal("expected RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(header[24:28]); rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(header[40:44]); int(size) != len(pcm) {
		t.Errorf("expected data size %d, got %d", len(pcm), size)
	}
	if buf.Len() != wavHeaderSize+len(pcm) {
		t.Errorf("expected %d bytes, got %d", wavHeaderSize+len(pcm), buf.Len())
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	pcm := Tone(DefaultFormat, 20*time.Millisecond, 0.3)
	if err := EncodeWAV(&buf, pcm, DefaultFormat); err != nil {
		t.Fatalf("EncodeWAV() error: %v", err)
	}

	// Insert a LIST chunk between fmt and data.
	raw := buf.Bytes()
	list := append([]byte("LIST"), 4, 0, 0, 0, 'a', 'b', 'c', 'd')
	withList := append(append(append([]byte{}, raw[:36]...), list...), raw[36:]...)

	format, got, err := DecodeWAV(bytes.NewReader(withList))
	if err != nil {
		t.Fatalf("DecodeWAV() error: %v", err)
	}
	if format != DefaultFormat {
		t.Errorf("expected %+v, got %+v", DefaultFormat, format)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded samples differ from encoded samples")
	}
}

func TestDecodeWAV_RejectsNonWAV(t *testing.T) {
	_, _, err := DecodeWAV(bytes.NewReader([]byte("this is not a wav file at all")))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}

func TestMemorySource_FramesAndEOF(t *testing.T) {
	src := &MemorySource{Format: DefaultFormat, SamplesPerFrame: 160, PCM: make([]byte, 800)}
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer stream.Close()

	var frames int
	var last uint64
	for {
		f, err := stream.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		if f.Sequence != last+1 {
			t.Errorf("expected sequence %d, got %d", last+1, f.Sequence)
		}
		last = f.Sequence
		frames++
	}
	// 800 bytes / 320 bytes per frame = 2 full frames + 1 partial.
	if frames != 3 {
		t.Errorf("expected 3 frames, got %d", frames)
	}
}

func TestMemorySource_ReadAfterClose(t *testing.T) {
	src := &MemorySource{Format: DefaultFormat, PCM: make([]byte, 4096), Loop: true}
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("expected idempotent close, got %v", err)
	}
	if _, err := stream.Read(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestMemorySource_PacedReadUnblocksOnClose(t *testing.T) {
	src := &MemorySource{Format: DefaultFormat, SamplesPerFrame: 16000, PCM: make([]byte, 64000), Pace: true}
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	// First frame is immediate, the second waits a full second.
	if _, err := stream.Read(context.Background()); err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := stream.Read(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	stream.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamClosed) {
			t.Errorf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("paced read did not unblock on close")
	}
}

func TestWAVSource_Open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	pcm := Tone(Format{SampleRate: 8000, Channels: 1}, 100*time.Millisecond, 0.4)
	if err := EncodeWAV(f, pcm, Format{SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	src := &WAVSource{Path: path, SamplesPerFrame: 80}
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer stream.Close()

	frame, err := stream.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if frame.Format.SampleRate != 8000 {
		t.Errorf("expected 8000 Hz frames, got %d", frame.Format.SampleRate)
	}
	if frame.Duration() != 10*time.Millisecond {
		t.Errorf("expected 10ms frame, got %v", frame.Duration())
	}
}

func TestWAVSource_MissingFile(t *testing.T) {
	src := &WAVSource{Path: filepath.Join(t.TempDir(), "missing.wav")}
	if _, err := src.Open(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFFmpegSource_Args(t *testing.T) {
	src := NewFFmpegSource("", "", "", Format{}, 512)

	args := src.Args()
	want := []string{"-nostdin", "-hide_banner", "-loglevel", "warning", "-f", "pulse", "-i", "default",
		"-ac", "1", "-ar", "16000", "-f", "s16le", "-"}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}
}

func TestFFmpegSource_MissingBinary(t *testing.T) {
	src := NewFFmpegSource(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "", "", DefaultFormat, 512)
	if _, err := src.Open(context.Background()); err == nil {
		t.Error("expected error starting a missing binary")
	}
}

func TestReaderStream_ReturnsPartialTailFrame(t *testing.T) {
	// 2.5 frames of 4 samples each, plus a dangling odd byte.
	data := make([]byte, 2*8+4+1)
	for i := range data {
		data[i] = byte(i)
	}
	s := newReaderStream(io.NopCloser(bytes.NewReader(data)), DefaultFormat, 4)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		f, err := s.Read(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(f.Data) != 8 {
			t.Fatalf("frame %d length = %d, want 8", i, len(f.Data))
		}
	}

	f, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("tail frame: %v", err)
	}
	if len(f.Data) != 4 {
		t.Fatalf("tail length = %d, want 4", len(f.Data))
	}
	if !bytes.Equal(f.Data, data[16:20]) {
		t.Fatalf("tail data = %v, want %v", f.Data, data[16:20])
	}
	if f.Sequence != 3 {
		t.Fatalf("tail sequence = %d, want 3", f.Sequence)
	}

	if _, err := s.Read(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("after tail err = %v, want io.EOF", err)
	}
}
