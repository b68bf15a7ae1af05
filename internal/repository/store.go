// Package repository implements C1, the Store: durable persistence for
// episodes, transcripts, summaries, download-success history and the
// bounded failure log, all keyed by the (podcast, title, published) triple
// and isolated per mode.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"digestpipe/internal/domain"
)

// Store wraps the embedded database connection opened by internal/storage.
type Store struct {
	db *sql.DB
}

// New wraps an already-open, already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertEpisode inserts ep if its identity triple is new, or updates its
// mutable fields (audio/transcript URLs, description, metadata) otherwise.
// It never touches transcript or summary columns. Idempotent on identity.
func (s *Store) UpsertEpisode(ctx context.Context, ep domain.Episode) error {
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO episodes
(podcast, title, published, audio_url, transcript_url, description, link, guid, duration_seconds, apple_podcast_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(podcast, title, published) DO UPDATE SET
  audio_url = excluded.audio_url,
  transcript_url = excluded.transcript_url,
  description = excluded.description,
  link = excluded.link,
  guid = excluded.guid,
  duration_seconds = excluded.duration_seconds,
  apple_podcast_id = excluded.apple_podcast_id,
  updated_at = excluded.updated_at`,
			ep.Podcast, ep.Title, ep.Published.UTC(), ep.AudioURL, ep.TranscriptURL,
			ep.Description, ep.Link, ep.GUID, int64(ep.Duration.Seconds()), ep.ApplePodcastID,
			now, now)
		return err
	})
}

// GetTranscript returns the mode-specific transcript text and source for
// ep, or ok=false if none has been saved yet. It never reads the other
// mode's columns.
func (s *Store) GetTranscript(ctx context.Context, ep domain.Episode, mode domain.Mode) (text string, source domain.TranscriptSource, ok bool, err error) {
	textCol, sourceCol, qerr := transcriptColumns(mode)
	if qerr != nil {
		return "", "", false, qerr
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM episodes WHERE podcast = ? AND title = ? AND published = ?`, textCol, sourceCol)

	var (
		textVal   sql.NullString
		sourceVal sql.NullString
	)
	err = s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, ep.Podcast, ep.Title, ep.Published.UTC())
		return row.Scan(&textVal, &sourceVal)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	if !textVal.Valid || textVal.String == "" {
		return "", "", false, nil
	}
	return textVal.String, domain.TranscriptSource(sourceVal.String), true, nil
}

// SaveTranscript writes the transcript text and source tag for (ep, mode),
// leaving the other mode's columns untouched.
func (s *Store) SaveTranscript(ctx context.Context, ep domain.Episode, mode domain.Mode, text string, source domain.TranscriptSource) error {
	textCol, sourceCol, err := transcriptColumns(mode)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`UPDATE episodes SET %s = ?, %s = ?, updated_at = ? WHERE podcast = ? AND title = ? AND published = ?`, textCol, sourceCol)
	return s.withRetry(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, stmt, text, string(source), time.Now().UTC(), ep.Podcast, ep.Title, ep.Published.UTC())
		if execErr != nil {
			return execErr
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		if affected == 0 {
			return fmt.Errorf("save transcript: episode not found: %s/%s", ep.Podcast, ep.Title)
		}
		return nil
	})
}

// Summary is the partial result of GetSummary: either field may be absent.
type Summary struct {
	Paragraph   string
	Long        string
	HasParagraph bool
	HasLong      bool
}

// GetSummary returns whatever summary fields have been saved for (ep, mode).
// Partial returns are allowed per spec.
func (s *Store) GetSummary(ctx context.Context, ep domain.Episode, mode domain.Mode) (Summary, error) {
	longCol, paragraphCol, err := summaryColumns(mode)
	if err != nil {
		return Summary{}, err
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM episodes WHERE podcast = ? AND title = ? AND published = ?`, longCol, paragraphCol)

	var (
		longVal      sql.NullString
		paragraphVal sql.NullString
	)
	err = s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, ep.Podcast, ep.Title, ep.Published.UTC())
		return row.Scan(&longVal, &paragraphVal)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, nil
		}
		return Summary{}, err
	}

	out := Summary{}
	if longVal.Valid && longVal.String != "" {
		out.Long = longVal.String
		out.HasLong = true
	}
	if paragraphVal.Valid && paragraphVal.String != "" {
		out.Paragraph = paragraphVal.String
		out.HasParagraph = true
	}
	return out, nil
}

// SaveSummary writes both summary fields for (ep, mode) atomically.
func (s *Store) SaveSummary(ctx context.Context, ep domain.Episode, mode domain.Mode, paragraph, long string) error {
	longCol, paragraphCol, err := summaryColumns(mode)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`UPDATE episodes SET %s = ?, %s = ?, updated_at = ? WHERE podcast = ? AND title = ? AND published = ?`, longCol, paragraphCol)
	return s.withRetry(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, stmt, long, paragraph, time.Now().UTC(), ep.Podcast, ep.Title, ep.Published.UTC())
		if execErr != nil {
			return execErr
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		if affected == 0 {
			return fmt.Errorf("save summary: episode not found: %s/%s", ep.Podcast, ep.Title)
		}
		return nil
	})
}

// RecordDownloadStrategy pushes strategy to the head of podcast's MRU
// success history, bounded to domain.MaxHistoryLength.
func (s *Store) RecordDownloadStrategy(ctx context.Context, podcast, strategy string) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		history := domain.StrategyHistory{Podcast: podcast}
		var raw string
		row := tx.QueryRowContext(ctx, `SELECT strategies_json FROM download_history WHERE podcast = ?`, podcast)
		switch err := row.Scan(&raw); {
		case err == nil:
			if jsonErr := json.Unmarshal([]byte(raw), &history.Strategies); jsonErr != nil {
				return jsonErr
			}
		case errors.Is(err, sql.ErrNoRows):
			// no prior history, start empty
		default:
			return err
		}

		history.Push(strategy)

		encoded, err := json.Marshal(history.Strategies)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO download_history (podcast, strategies_json, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(podcast) DO UPDATE SET strategies_json = excluded.strategies_json, updated_at = excluded.updated_at`,
			podcast, string(encoded), time.Now().UTC()); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		return nil
	})
}

// LoadStrategyHistory returns the ordered MRU strategy list for podcast,
// or an empty slice if it has never recorded a success.
func (s *Store) LoadStrategyHistory(ctx context.Context, podcast string) ([]string, error) {
	var raw string
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT strategies_json FROM download_history WHERE podcast = ?`, podcast)
		return row.Scan(&raw)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, err
	}

	var strategies []string
	if err := json.Unmarshal([]byte(raw), &strategies); err != nil {
		return nil, err
	}
	return strategies, nil
}

// AppendFailure records a failure, trimming the oldest rows once the
// bounded retention limit is exceeded.
func (s *Store) AppendFailure(ctx context.Context, rec domain.FailureRecord) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		if _, err := tx.ExecContext(ctx, `INSERT INTO failures (id, ts, component, podcast, title, error_kind, error_msg, retries, mode)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Timestamp.UTC(), rec.Component, rec.Podcast, rec.Title, string(rec.ErrorKind), rec.ErrorMsg, rec.Retries, string(rec.Mode)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM failures WHERE id IN (
  SELECT id FROM failures ORDER BY ts DESC LIMIT -1 OFFSET ?
)`, domain.MaxFailureRecords); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		return nil
	})
}

func transcriptColumns(mode domain.Mode) (textCol, sourceCol string, err error) {
	switch mode {
	case domain.ModeFull:
		return "transcript", "transcript_source", nil
	case domain.ModeTest:
		return "transcript_test", "transcript_source_test", nil
	default:
		return "", "", fmt.Errorf("invalid mode: %q", mode)
	}
}

func summaryColumns(mode domain.Mode) (longCol, paragraphCol string, err error) {
	switch mode {
	case domain.ModeFull:
		return "summary", "paragraph_summary", nil
	case domain.ModeTest:
		return "summary_test", "paragraph_summary_test", nil
	default:
		return "", "", fmt.Errorf("invalid mode: %q", mode)
	}
}

// withRetry mirrors the teacher's busy-retry loop for SQLite's single
// writer: exponential backoff over 5 attempts on SQLITE_BUSY, immediate
// return on any other error or context cancellation.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		backoff := 50 * time.Millisecond * time.Duration(1<<i)
		if waitErr := waitWithContext(ctx, backoff); waitErr != nil {
			return waitErr
		}
	}
	return err
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IsUniqueViolation reports whether err represents a unique-constraint
// failure, which per spec.md §4.1 is treated as "already present" and not
// surfaced as an error to callers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
