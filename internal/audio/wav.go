package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotWAV is returned when a file is not RIFF/WAVE PCM.
var ErrNotWAV = errors.New("not a PCM WAV file")

const wavHeaderSize = 44

// EncodeWAV writes pcm as a 16-bit PCM WAV file.
func EncodeWAV(w io.Writer, pcm []byte, f Format) error {
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.Channels*2))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit PCM WAV file, skipping non-audio chunks.
func DecodeWAV(r io.Reader) (Format, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var (
		format  Format
		haveFmt bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Format{}, nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if size < 16 || binary.LittleEndian.Uint16(body[0:2]) != 1 || binary.LittleEndian.Uint16(body[14:16]) != 16 {
				return Format{}, nil, ErrNotWAV
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, ErrNotWAV
			}
			var buf bytes.Buffer
			if _, err := io.CopyN(&buf, r, size); err != nil && !errors.Is(err, io.EOF) {
				return Format{}, nil, fmt.Errorf("read data chunk: %w", err)
			}
			return format, buf.Bytes(), nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Format{}, nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Format, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, nil, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WAVSource replays a WAV file as if it were a live device.
type WAVSource struct {
	Path            string
	SamplesPerFrame int
	Loop            bool
	Pace            bool
}

// Open decodes the file and streams it frame by frame.
func (s *WAVSource) Open(ctx context.Context) (Stream, error) {
	format, pcm, err := ReadWAVFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open wav source %s: %w", s.Path, err)
	}
	mem := &MemorySource{
		Format:          format,
		SamplesPerFrame: s.SamplesPerFrame,
		PCM:             pcm,
		Loop:            s.Loop,
		Pace:            s.Pace,
	}
	return mem.Open(ctx)
}
