// Package storage - Tests for the SQLite layer
package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/so032019/browser-automation/logger"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndQueryPostResults(t *testing.T) {
	db := testDatabase(t)

	r := &PostResult{
		URL:         "https://x.com/a/status/1",
		Navigation:  true,
		Follow:      true,
		Repost:      true,
		Like:        true,
		Success:     true,
		DurationSec: 12.5,
		FillerCount: 3,
	}
	if err := db.SavePostResult(r); err != nil {
		t.Fatalf("SavePostResult failed: %v", err)
	}
	if r.ID == 0 {
		t.Error("Expected assigned ID after insert")
	}

	results, err := db.RecentPostResults(10)
	if err != nil {
		t.Fatalf("RecentPostResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.URL != r.URL || !got.Success || got.FillerCount != 3 {
		t.Errorf("Round-trip mismatch: %+v", got)
	}
	if got.DurationSec != 12.5 {
		t.Errorf("Expected duration 12.5, got %f", got.DurationSec)
	}
}

func TestIsPostProcessed(t *testing.T) {
	db := testDatabase(t)

	processed, err := db.IsPostProcessed("https://x.com/a/status/1")
	if err != nil {
		t.Fatalf("IsPostProcessed failed: %v", err)
	}
	if processed {
		t.Error("Unknown post should not be processed")
	}

	// A failed attempt does not mark the post processed
	if err := db.SavePostResult(&PostResult{URL: "https://x.com/a/status/1", Navigation: true}); err != nil {
		t.Fatal(err)
	}
	processed, _ = db.IsPostProcessed("https://x.com/a/status/1")
	if processed {
		t.Error("A failed attempt should leave the post eligible for retry")
	}

	if err := db.SavePostResult(&PostResult{URL: "https://x.com/a/status/1", Success: true}); err != nil {
		t.Fatal(err)
	}
	processed, _ = db.IsPostProcessed("https://x.com/a/status/1")
	if !processed {
		t.Error("A successful attempt should mark the post processed")
	}
}

func TestSessionSummaries(t *testing.T) {
	db := testDatabase(t)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &SessionSummary{
		StartedAt:       start,
		FinishedAt:      start.Add(10 * time.Minute),
		PostsProcessed:  5,
		SuccessfulPosts: 4,
		SuccessRate:     0.8,
		DiversityScore:  0.42,
		FillerRuns:      12,
	}
	if err := db.SaveSessionSummary(s); err != nil {
		t.Fatalf("SaveSessionSummary failed: %v", err)
	}

	sessions, err := db.RecentSessions(5)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	if sessions[0].SuccessRate != 0.8 || sessions[0].DiversityScore != 0.42 {
		t.Errorf("Round-trip mismatch: %+v", sessions[0])
	}
}

func TestSearchHistory(t *testing.T) {
	db := testDatabase(t)

	if err := db.RecordSearch("リポスト OR フォロー", 7); err != nil {
		t.Fatalf("RecordSearch failed: %v", err)
	}

	records, err := db.SearchHistory(5)
	if err != nil {
		t.Fatalf("SearchHistory failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Query != "リポスト OR フォロー" || records[0].ResultCount != 7 {
		t.Errorf("Round-trip mismatch: %+v", records[0])
	}
}

func TestCookies(t *testing.T) {
	db := testDatabase(t)

	got, err := db.LoadCookies("alice")
	if err != nil {
		t.Fatalf("LoadCookies failed: %v", err)
	}
	if got != "" {
		t.Error("Expected empty cookies for unknown account")
	}

	if err := db.SaveCookies("alice", `[{"name":"auth_token"}]`); err != nil {
		t.Fatalf("SaveCookies failed: %v", err)
	}
	// Upsert replaces the previous snapshot
	if err := db.SaveCookies("alice", `[{"name":"auth_token","value":"v2"}]`); err != nil {
		t.Fatalf("SaveCookies upsert failed: %v", err)
	}

	got, err = db.LoadCookies("alice")
	if err != nil {
		t.Fatalf("LoadCookies failed: %v", err)
	}
	if got != `[{"name":"auth_token","value":"v2"}]` {
		t.Errorf("Expected latest snapshot, got %s", got)
	}
}
