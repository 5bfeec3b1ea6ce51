package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFmpegSource captures microphone PCM by running ffmpeg and reading s16le
// samples from its stdout.
type FFmpegSource struct {
	Command         string
	InputFormat     string
	InputDevice     string
	Format          Format
	SamplesPerFrame int

	// StartupWait is how long ffmpeg must survive before the device is
	// considered open.
	StartupWait time.Duration
}

// NewFFmpegSource returns a source with pulse/default input.
func NewFFmpegSource(command, inputFormat, inputDevice string, format Format, samplesPerFrame int) *FFmpegSource {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultFormat.SampleRate
	}
	if format.Channels <= 0 {
		format.Channels = DefaultFormat.Channels
	}
	return &FFmpegSource{
		Command:         command,
		InputFormat:     inputFormat,
		InputDevice:     inputDevice,
		Format:          format,
		SamplesPerFrame: samplesPerFrame,
		StartupWait:     250 * time.Millisecond,
	}
}

// Args returns the ffmpeg command line.
func (s *FFmpegSource) Args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.InputFormat,
		"-i", s.InputDevice,
		"-ac", strconv.Itoa(s.Format.Channels),
		"-ar", strconv.Itoa(s.Format.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Open starts ffmpeg. The process lives until the stream is closed.
func (s *FFmpegSource) Open(ctx context.Context) (Stream, error) {
	cmd := exec.Command(s.Command, s.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimSpace(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(s.StartupWait):
	}

	proc := &ffmpegProcess{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}
	return newReaderStream(proc, s.Format, s.SamplesPerFrame), nil
}

// ffmpegProcess adapts a running ffmpeg to io.ReadCloser.
type ffmpegProcess struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (p *ffmpegProcess) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *ffmpegProcess) Close() error {
	p.stopOnce.Do(func() {
		if p.process != nil {
			_ = p.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if p.process != nil {
				_ = p.process.Kill()
			}
			err, ok := <-p.waitErr
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if p.stopErr == nil {
				p.stopErr = closeErr
			}
		}

		if p.stopErr != nil && p.stderr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimSpace(p.stderr.String()))
		}
	})
	return p.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(s string) string {
	if s == "" {
		return s
	}
	return string(bytes.TrimSpace([]byte(s)))
}
