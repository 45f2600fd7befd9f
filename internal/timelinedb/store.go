// Package timelinedb persists run history and per-frame detection counts
// in a local SQLite database, so past runs can be compared and queried.
package timelinedb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	frames       INTEGER NOT NULL DEFAULT 0,
	detections   INTEGER NOT NULL DEFAULT 0,
	coverage     REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS frames (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	frame_index     INTEGER NOT NULL,
	timestamp_sec   REAL NOT NULL,
	weed_count      INTEGER NOT NULL,
	detections_json TEXT NOT NULL,
	PRIMARY KEY (run_id, frame_index)
);
CREATE INDEX IF NOT EXISTS idx_frames_run ON frames(run_id);
`

// RunRecord is one row of run history.
type RunRecord struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Frames     int64
	Detections int64
	Coverage   float64
}

// Store wraps the SQLite database. Safe for concurrent use through the
// underlying *sql.DB.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("timelinedb: open %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection avoids lock errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("timelinedb: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// BeginRun inserts a new run row and returns its generated ID.
func (s *Store) BeginRun(source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)`,
		id, source, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("timelinedb: begin run: %w", err)
	}
	return id, nil
}

// RecordEntry stores one processed frame for a run.
func (s *Store) RecordEntry(runID string, entry types.TimelineEntry) error {
	detections, err := json.Marshal(entry.Detections)
	if err != nil {
		return fmt.Errorf("timelinedb: marshal detections: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO frames (run_id, frame_index, timestamp_sec, weed_count, detections_json)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, entry.FrameIndex, entry.Timestamp, entry.WeedCount(), string(detections),
	)
	if err != nil {
		return fmt.Errorf("timelinedb: record frame %d: %w", entry.FrameIndex, err)
	}
	return nil
}

// FinishRun stamps the run with its end time and final summary.
func (s *Store) FinishRun(runID string, summary timeline.Summary) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, frames = ?, detections = ?, coverage = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339),
		summary.FramesObserved, summary.TotalDetections, summary.Coverage, runID,
	)
	if err != nil {
		return fmt.Errorf("timelinedb: finish run: %w", err)
	}
	return nil
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, source, started_at, COALESCE(finished_at, ''), frames, detections, coverage
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("timelinedb: list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Source, &started, &finished, &r.Frames, &r.Detections, &r.Coverage); err != nil {
			return nil, fmt.Errorf("timelinedb: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunEntries loads the stored timeline of one run, in frame order.
func (s *Store) RunEntries(runID string) ([]types.TimelineEntry, error) {
	rows, err := s.db.Query(
		`SELECT frame_index, timestamp_sec, detections_json
		 FROM frames WHERE run_id = ? ORDER BY frame_index`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("timelinedb: load run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []types.TimelineEntry
	for rows.Next() {
		var entry types.TimelineEntry
		var detections string
		if err := rows.Scan(&entry.FrameIndex, &entry.Timestamp, &detections); err != nil {
			return nil, fmt.Errorf("timelinedb: scan frame: %w", err)
		}
		if err := json.Unmarshal([]byte(detections), &entry.Detections); err != nil {
			return nil, fmt.Errorf("timelinedb: decode detections: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
