// Package storage persists session data in SQLite: per-post engagement
// results, session summaries, search history and the session cookie
// snapshot used to skip the login flow on the next run.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/so032019/browser-automation/logger"
)

// PostResult is one processed post.
type PostResult struct {
	ID          int64
	URL         string
	Navigation  bool
	Follow      bool
	Repost      bool
	Like        bool
	Success     bool
	DurationSec float64
	FillerCount int
	ProcessedAt time.Time
}

// SessionSummary is one completed session.
type SessionSummary struct {
	ID              int64
	StartedAt       time.Time
	FinishedAt      time.Time
	PostsProcessed  int
	SuccessfulPosts int
	SuccessRate     float64
	DiversityScore  float64
	FillerRuns      int
}

// SearchRecord is one executed search.
type SearchRecord struct {
	ID          int64
	Query       string
	ResultCount int
	SearchedAt  time.Time
}

// Database wraps the SQLite connection.
type Database struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDatabase opens (creating if necessary) the database at the given path
// and ensures the schema exists.
func NewDatabase(dbPath string, log *logger.Logger) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{
		db:     db,
		logger: log.WithModule("storage"),
	}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.logger.Infof("Database opened: %s", dbPath)
	return d, nil
}

func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS post_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		navigation BOOLEAN NOT NULL DEFAULT 0,
		followed BOOLEAN NOT NULL DEFAULT 0,
		reposted BOOLEAN NOT NULL DEFAULT 0,
		liked BOOLEAN NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL DEFAULT 0,
		duration_sec REAL NOT NULL DEFAULT 0,
		filler_count INTEGER NOT NULL DEFAULT 0,
		processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_post_results_url ON post_results(url);

	CREATE TABLE IF NOT EXISTS session_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		posts_processed INTEGER NOT NULL DEFAULT 0,
		successful_posts INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0,
		diversity_score REAL NOT NULL DEFAULT 0,
		filler_runs INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		result_count INTEGER NOT NULL DEFAULT 0,
		searched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS session_cookies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL UNIQUE,
		cookies TEXT NOT NULL,
		saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SavePostResult inserts one post result.
func (d *Database) SavePostResult(r *PostResult) error {
	query := `
	INSERT INTO post_results (url, navigation, followed, reposted, liked, success, duration_sec, filler_count, processed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	processedAt := r.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	result, err := d.db.Exec(query,
		r.URL, r.Navigation, r.Follow, r.Repost, r.Like, r.Success,
		r.DurationSec, r.FillerCount, processedAt)
	if err != nil {
		return fmt.Errorf("failed to save post result: %w", err)
	}

	r.ID, _ = result.LastInsertId()
	return nil
}

// IsPostProcessed reports whether the post was already fully engaged in a
// previous session, so it can be skipped.
func (d *Database) IsPostProcessed(url string) (bool, error) {
	var count int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM post_results WHERE url = ? AND success = 1`, url,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check post result: %w", err)
	}
	return count > 0, nil
}

// RecentPostResults returns the latest post results, newest first.
func (d *Database) RecentPostResults(limit int) ([]*PostResult, error) {
	query := `
	SELECT id, url, navigation, followed, reposted, liked, success, duration_sec, filler_count, processed_at
	FROM post_results
	ORDER BY processed_at DESC
	LIMIT ?
	`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query post results: %w", err)
	}
	defer rows.Close()

	var results []*PostResult
	for rows.Next() {
		r := &PostResult{}
		if err := rows.Scan(&r.ID, &r.URL, &r.Navigation, &r.Follow, &r.Repost,
			&r.Like, &r.Success, &r.DurationSec, &r.FillerCount, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveSessionSummary inserts one session summary.
func (d *Database) SaveSessionSummary(s *SessionSummary) error {
	query := `
	INSERT INTO session_summaries (started_at, finished_at, posts_processed, successful_posts, success_rate, diversity_score, filler_runs)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.Exec(query,
		s.StartedAt, s.FinishedAt, s.PostsProcessed, s.SuccessfulPosts,
		s.SuccessRate, s.DiversityScore, s.FillerRuns)
	if err != nil {
		return fmt.Errorf("failed to save session summary: %w", err)
	}

	s.ID, _ = result.LastInsertId()
	return nil
}

// RecentSessions returns the latest session summaries, newest first.
func (d *Database) RecentSessions(limit int) ([]*SessionSummary, error) {
	query := `
	SELECT id, started_at, finished_at, posts_processed, successful_posts, success_rate, diversity_score, filler_runs
	FROM session_summaries
	ORDER BY started_at DESC
	LIMIT ?
	`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionSummary
	for rows.Next() {
		s := &SessionSummary{}
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.PostsProcessed,
			&s.SuccessfulPosts, &s.SuccessRate, &s.DiversityScore, &s.FillerRuns); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordSearch inserts one search-history row.
func (d *Database) RecordSearch(query string, resultCount int) error {
	_, err := d.db.Exec(
		`INSERT INTO search_history (query, result_count) VALUES (?, ?)`,
		query, resultCount)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// SearchHistory returns the latest searches, newest first.
func (d *Database) SearchHistory(limit int) ([]*SearchRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, query, result_count, searched_at FROM search_history ORDER BY searched_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	var records []*SearchRecord
	for rows.Next() {
		r := &SearchRecord{}
		if err := rows.Scan(&r.ID, &r.Query, &r.ResultCount, &r.SearchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveCookies stores the serialized cookie snapshot for an account,
// replacing any previous snapshot.
func (d *Database) SaveCookies(account, cookies string) error {
	query := `
	INSERT INTO session_cookies (account, cookies, saved_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(account) DO UPDATE SET cookies = excluded.cookies, saved_at = CURRENT_TIMESTAMP
	`

	if _, err := d.db.Exec(query, account, cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	return nil
}

// LoadCookies returns the stored cookie snapshot for an account, or "" when
// none is stored.
func (d *Database) LoadCookies(account string) (string, error) {
	var cookies string
	err := d.db.QueryRow(
		`SELECT cookies FROM session_cookies WHERE account = ?`, account,
	).Scan(&cookies)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load cookies: %w", err)
	}
	return cookies, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}
