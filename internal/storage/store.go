// Package storage persists captured audio as WAV files and keeps a SQLite
// index of recordings. A recording id is the absolute path of its file.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/observability/metrics"
)

// ErrNotFound is returned for unknown recording ids.
var ErrNotFound = errors.New("recording not found")

// Origins of a recording.
const (
	OriginManual    = "manual"
	OriginListening = "listening"
)

// Recording is an index entry.
type Recording struct {
	ID         string
	Path       string
	Origin     string
	CapturedAt time.Time
	SampleRate int
	Channels   int
	Duration   time.Duration
	Bytes      int
}

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id          TEXT PRIMARY KEY,
	origin      TEXT NOT NULL,
	capturedAt  INTEGER NOT NULL,
	sampleRate  INTEGER NOT NULL,
	channels    INTEGER NOT NULL,
	durationMs  INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	createdAt   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recordings_capturedAt ON recordings(capturedAt);
`

// Store writes recordings under a directory and indexes them in SQLite.
type Store struct {
	dir     string
	db      *sql.DB
	namer   *Namer
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Open prepares the recording directory and opens (or creates) the index.
// dbPath ":memory:" keeps the index in memory.
func Open(dir, dbPath string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve recording dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		dir:     abs,
		db:      db,
		namer:   NewNamer(),
		log:     logging.WithComponent("storage"),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Dir returns the absolute recording directory.
func (s *Store) Dir() string { return s.dir }

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes pcm as a WAV file and indexes it.
func (s *Store) Save(ctx context.Context, origin string, pcm []byte, format audio.Format, capturedAt time.Time) (Recording, error) {
	path := filepath.Join(s.dir, s.namer.Next(origin, capturedAt))

	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, pcm, format); err != nil {
		s.metrics.RecordStorageError("encode")
		return Recording{}, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		s.metrics.RecordStorageError("write")
		return Recording{}, fmt.Errorf("write recording: %w", err)
	}

	rec := Recording{
		ID:         path,
		Path:       path,
		Origin:     origin,
		CapturedAt: capturedAt.UTC(),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Duration:   format.Duration(len(pcm)),
		Bytes:      len(pcm),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, origin, capturedAt, sampleRate, channels, durationMs, bytes, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Origin, rec.CapturedAt.UnixNano(), rec.SampleRate, rec.Channels,
		rec.Duration.Milliseconds(), rec.Bytes, time.Now().UnixNano())
	if err != nil {
		s.metrics.RecordStorageError("index")
		_ = os.Remove(path)
		return Recording{}, fmt.Errorf("index recording: %w", err)
	}

	s.metrics.RecordRecordingSaved(origin)
	s.log.Info().
		Str("recordingId", rec.ID).
		Str("origin", origin).
		Dur("duration", rec.Duration).
		Msg("Recording saved")
	return rec, nil
}

// Get resolves a recording id. Ids whose file has disappeared are reported
// as not found.
func (s *Store) Get(ctx context.Context, id string) (Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, origin, capturedAt, sampleRate, channels, durationMs, bytes
		FROM recordings
		WHERE id = ?
	`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("query recording: %w", err)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// List returns the most recent recordings, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, origin, capturedAt, sampleRate, channels, durationMs, bytes
		FROM recordings
		ORDER BY capturedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReadPCM loads the samples of a recording.
func (s *Store) ReadPCM(rec Recording) (audio.Format, []byte, error) {
	return audio.ReadWAVFile(rec.Path)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (Recording, error) {
	var (
		rec        Recording
		capturedAt int64
		durationMs int64
	)
	if err := row.Scan(&rec.ID, &rec.Origin, &capturedAt, &rec.SampleRate, &rec.Channels, &durationMs, &rec.Bytes); err != nil {
		return Recording{}, err
	}
	rec.Path = rec.ID
	rec.CapturedAt = time.Unix(0, capturedAt).UTC()
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return rec, nil
}
