// Package notify sends session summaries to a Slack incoming webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
)

// Summary is the session report sent after a run.
type Summary struct {
	StartedAt       time.Time
	Duration        time.Duration
	PostsProcessed  int
	SuccessfulPosts int
	SuccessRate     float64
	DiversityScore  float64
	FillerRuns      map[string]int
	Errors          []string
}

// Notifier posts messages to the configured webhook.
type Notifier struct {
	cfg    *config.NotifyConfig
	logger *logger.Logger
	client *http.Client
}

// NewNotifier creates a notifier. When notifications are disabled every
// send becomes a logged no-op.
func NewNotifier(cfg *config.NotifyConfig, log *logger.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		logger: log.WithModule("notify"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// SendSessionSummary formats and posts the session report.
func (n *Notifier) SendSessionSummary(s *Summary) error {
	if !n.cfg.Enabled || n.cfg.APIURL == "" {
		n.logger.Debug("Notifications disabled, skipping session summary")
		return nil
	}
	return n.send(FormatSummary(s, n.cfg.Workspace))
}

// send posts a plain-text message to the webhook.
func (n *Notifier) send(text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}

	n.logger.Info("Session summary sent")
	return nil
}

// FormatSummary renders the Slack message body.
func FormatSummary(s *Summary, workspace string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Engagement session finished* (%s)\n", workspace)
	fmt.Fprintf(&b, "Started: %s / Duration: %s\n",
		s.StartedAt.Format("2006-01-02 15:04"), s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Posts: %d processed, %d succeeded (%.0f%%)\n",
		s.PostsProcessed, s.SuccessfulPosts, s.SuccessRate*100)
	fmt.Fprintf(&b, "Behavior diversity: %.2f\n", s.DiversityScore)

	if len(s.FillerRuns) > 0 {
		keys := make([]string, 0, len(s.FillerRuns))
		for k := range s.FillerRuns {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s×%d", k, s.FillerRuns[k]))
		}
		fmt.Fprintf(&b, "Filler: %s\n", strings.Join(parts, ", "))
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "Errors:\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "• %s\n", e)
		}
	}

	return b.String()
}
