// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal records batch runs in a SQLite database so earlier
// results can be listed with their source and artifact digests.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/blake3"

	"github.com/pdiddy/texbatch/pkg/types"
)

// digestPrefix tags stored digests with their algorithm.
const digestPrefix = "blake3:"

// ErrNoRun is returned by Record before BeginRun was called.
var ErrNoRun = errors.New("journal: no run started")

// Journal is an open build journal.
type Journal struct {
	db    *sql.DB
	runID int64
}

// Run is one batch invocation.
type Run struct {
	ID        int64
	Folder    string
	Format    types.ArtifactFormat
	StartedAt time.Time
}

// Entry is the journal row for one fragment of one run.
type Entry struct {
	RunID          int64
	Folder         string
	Format         types.ArtifactFormat
	Fragment       string
	Status         types.FragmentStatus
	Stage          types.Stage
	Error          string
	SourceDigest   string
	ArtifactPath   string
	ArtifactDigest string
	Duration       time.Duration
	RecordedAt     time.Time
}

// Open opens or creates the journal database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	j := &Journal{db: db}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return j, nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			folder TEXT NOT NULL,
			format TEXT NOT NULL,
			started_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fragments (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT,
			error TEXT,
			source_digest TEXT,
			artifact_path TEXT,
			artifact_digest TEXT,
			duration_ms INTEGER,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_run_id ON fragments(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_name ON fragments(name)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun starts a new run. Subsequent Record calls attach to it.
func (j *Journal) BeginRun(ctx context.Context, folder string, format types.ArtifactFormat) (Run, error) {
	run := Run{Folder: folder, Format: format, StartedAt: time.Now().UTC()}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (folder, format, started_at) VALUES (?, ?, ?)`,
		folder, string(format), run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return Run{}, fmt.Errorf("reading run id: %w", err)
	}
	j.runID = run.ID
	return run, nil
}

// Record stores the result of one fragment in the current run. Digests are
// computed from the fragment and artifact files as they are on disk now.
func (j *Journal) Record(ctx context.Context, r types.FragmentResult) error {
	if j.runID == 0 {
		return ErrNoRun
	}
	srcDigest, err := DigestFile(r.Fragment.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	var artPath, artDigest string
	if r.Artifact != nil {
		artPath = r.Artifact.Path
		if artDigest, err = DigestFile(artPath); err != nil {
			return err
		}
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO fragments (run_id, name, status, stage, error, source_digest,
			artifact_path, artifact_digest, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, r.Fragment.Name, string(r.Status), string(r.Stage), r.Error, srcDigest,
		artPath, artDigest, r.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting fragment %s: %w", r.Fragment.Name, err)
	}
	return nil
}

// Recent returns the latest limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT f.run_id, r.folder, r.format, f.name, f.status, f.stage, f.error,
			f.source_digest, f.artifact_path, f.artifact_digest, f.duration_ms, f.recorded_at
		FROM fragments f JOIN runs r ON r.id = f.run_id
		ORDER BY f.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var format, status, stage, recordedAt string
		var durationMS int64
		if err := rows.Scan(&e.RunID, &e.Folder, &format, &e.Fragment, &status, &stage, &e.Error,
			&e.SourceDigest, &e.ArtifactPath, &e.ArtifactDigest, &durationMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Format = types.ArtifactFormat(format)
		e.Status = types.FragmentStatus(status)
		e.Stage = types.Stage(stage)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DigestFile returns the BLAKE3 digest of the file at path as
// "blake3:<hex>".
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", filepath.Base(path), err)
	}
	return digestPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Recorder records every result of a batch into a Journal. Write errors are
// logged and never fail the batch.
type Recorder struct {
	ctx     context.Context
	journal *Journal
	logger  *slog.Logger
}

// NewRecorder returns a batch observer writing to j.
func NewRecorder(ctx context.Context, j *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{ctx: ctx, journal: j, logger: logger}
}

func (r *Recorder) Start(types.Fragment) {}

func (r *Recorder) Result(res types.FragmentResult) {
	// The batch context may already be cancelled; the record is still wanted.
	if err := r.journal.Record(context.WithoutCancel(r.ctx), res); err != nil {
		r.logger.Warn("recording fragment in journal", "fragment", res.Fragment.Name, "err", err)
	}
}
