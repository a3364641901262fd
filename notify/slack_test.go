// Package notify - Tests for Slack notifications
package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func sampleSummary() *Summary {
	return &Summary{
		StartedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:        10 * time.Minute,
		PostsProcessed:  5,
		SuccessfulPosts: 4,
		SuccessRate:     0.8,
		DiversityScore:  0.42,
		FillerRuns:      map[string]int{"post_reading": 5, "home_browsing": 2},
	}
}

func TestSendSessionSummary(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.NotifyConfig{Enabled: true, APIURL: srv.URL, APIKey: "secret", Workspace: "ops"}
	n := NewNotifier(cfg, testLogger(t))

	if err := n.SendSessionSummary(sampleSummary()); err != nil {
		t.Fatalf("SendSessionSummary failed: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if !strings.Contains(gotBody["text"], "5 processed, 4 succeeded (80%)") {
		t.Errorf("Unexpected message text: %s", gotBody["text"])
	}
	if !strings.Contains(gotBody["text"], "ops") {
		t.Errorf("Expected workspace in message, got %s", gotBody["text"])
	}
}

func TestSendDisabled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cfg := &config.NotifyConfig{Enabled: false, APIURL: srv.URL}
	n := NewNotifier(cfg, testLogger(t))

	if err := n.SendSessionSummary(sampleSummary()); err != nil {
		t.Fatalf("Disabled send should be a no-op: %v", err)
	}
	if called {
		t.Error("Webhook must not be called when notifications are disabled")
	}
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := &config.NotifyConfig{Enabled: true, APIURL: srv.URL}
	n := NewNotifier(cfg, testLogger(t))

	if err := n.SendSessionSummary(sampleSummary()); err == nil {
		t.Error("Expected error on non-2xx response")
	}
}

func TestFormatSummary(t *testing.T) {
	text := FormatSummary(sampleSummary(), "ops")

	if !strings.Contains(text, "Behavior diversity: 0.42") {
		t.Errorf("Expected diversity in summary, got %s", text)
	}
	// Filler counts are listed deterministically
	if !strings.Contains(text, "home_browsing×2, post_reading×5") {
		t.Errorf("Expected sorted filler counts, got %s", text)
	}
}

func TestFormatSummaryWithErrors(t *testing.T) {
	s := sampleSummary()
	s.Errors = []string{"login: captcha challenge"}

	text := FormatSummary(s, "ops")
	if !strings.Contains(text, "captcha challenge") {
		t.Errorf("Expected errors listed, got %s", text)
	}
}
