// Package search finds campaign posts. It builds a live-search query from
// the configured keywords, optionally narrowed by today's date in the
// common campaign formats, then collects unique post URLs by scrolling
// through the result timeline.
package search

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/so032019/browser-automation/config"
	"github.com/so032019/browser-automation/logger"
	"github.com/so032019/browser-automation/page"
	"github.com/so032019/browser-automation/selectors"
)

const searchBaseURL = "https://x.com/search"

// Scroller performs humanized scrolling. Satisfied by stealth.Humanizer.
type Scroller interface {
	Scroll(totalY float64) error
}

// Pacer supplies the browsing-rhythm delays. Satisfied by delay.Manager.
type Pacer interface {
	WaitScroll()
	WaitPageTransition()
}

// Searcher collects campaign post URLs from the live search timeline.
type Searcher struct {
	driver   page.Driver
	registry *selectors.Registry
	scroller Scroller
	delays   Pacer
	cfg      *config.SearchConfig
	logger   *logger.Logger
	rand     *rand.Rand

	now func() time.Time
}

// NewSearcher creates a searcher.
func NewSearcher(d page.Driver, reg *selectors.Registry, sc Scroller, pacer Pacer, cfg *config.SearchConfig, log *logger.Logger) *Searcher {
	return &Searcher{
		driver:   d,
		registry: reg,
		scroller: sc,
		delays:   pacer,
		cfg:      cfg,
		logger:   log.WithModule("search"),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// BuildQuery assembles the search query from the configured keywords. When
// date narrowing is on, today's date is appended in both zero-padded and
// plain forms since campaign posts write it either way.
func (s *Searcher) BuildQuery() string {
	parts := make([]string, 0, len(s.cfg.Keywords))
	for _, kw := range s.cfg.Keywords {
		parts = append(parts, kw)
	}
	query := strings.Join(parts, " OR ")

	if s.cfg.IncludeDate {
		now := s.now()
		padded := fmt.Sprintf("%02d/%02d", int(now.Month()), now.Day())
		plain := fmt.Sprintf("%d/%d", int(now.Month()), now.Day())
		if padded == plain {
			query = fmt.Sprintf("(%s) %s", query, plain)
		} else {
			query = fmt.Sprintf("(%s) (%s OR %s)", query, padded, plain)
		}
	}
	return query
}

// BuildSearchURL renders the live-search URL for a query.
func BuildSearchURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("src", "typed_query")
	v.Set("f", "live")
	return searchBaseURL + "?" + v.Encode()
}

// CollectPostURLs opens the live search for the configured keywords and
// gathers up to limit unique post URLs, scrolling for more results until
// the limit or the scroll budget is reached.
func (s *Searcher) CollectPostURLs(limit int) ([]string, error) {
	query := s.BuildQuery()
	searchURL := BuildSearchURL(query)
	s.logger.Infof("Searching: %s", query)

	if err := s.driver.Navigate(searchURL); err != nil {
		return nil, fmt.Errorf("failed to open search results: %w", err)
	}
	s.delays.WaitPageTransition()

	seen := make(map[string]bool)
	var urls []string

	stagnant := 0
	for attempt := 0; attempt <= s.cfg.MaxScrollAttempts; attempt++ {
		before := len(urls)
		for _, link := range s.collectLinks() {
			clean := CleanPostURL(link)
			if clean == "" || seen[clean] {
				continue
			}
			seen[clean] = true
			urls = append(urls, clean)
			if len(urls) >= limit {
				s.logger.Infof("Collected %d post URLs", len(urls))
				return urls, nil
			}
		}

		// Three scrolls in a row with nothing new means the timeline ran dry.
		if len(urls) == before {
			stagnant++
			if stagnant >= 3 {
				break
			}
		} else {
			stagnant = 0
		}

		if attempt == s.cfg.MaxScrollAttempts {
			break
		}
		if err := s.scroller.Scroll(600 + s.rand.Float64()*400); err != nil {
			s.logger.WithError(err).Warn("Scroll failed while collecting results")
			break
		}
		s.delays.WaitScroll()
	}

	s.logger.Infof("Collected %d post URLs", len(urls))
	return urls, nil
}

// collectLinks reads the hrefs of all result links currently rendered.
func (s *Searcher) collectLinks() []string {
	var out []string
	for _, sel := range s.registry.Lookup(selectors.CategoryTimeline, "post_links") {
		controls, err := s.driver.FindAll(sel)
		if err != nil || len(controls) == 0 {
			continue
		}
		for _, c := range controls {
			if href, ok := c.Attribute("href"); ok {
				out = append(out, href)
			}
		}
		break
	}
	return out
}

// CleanPostURL normalizes a result link to its canonical post URL: absolute
// x.com form, no query string or fragment, and trailing sub-pages such as
// /analytics or /photo/1 cut off after the status ID. Links that are not
// post links at all yield "".
func CleanPostURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	path := u.Path
	idx := strings.Index(path, "/status/")
	if idx < 0 {
		return ""
	}

	rest := path[idx+len("/status/"):]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	if rest == "" {
		return ""
	}

	return "https://x.com" + path[:idx] + "/status/" + rest
}
