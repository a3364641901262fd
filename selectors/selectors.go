// Package selectors provides the selector registry: ordered lists of CSS
// selectors per (category, key), with a fallback-key convention. The site
// changes its markup frequently, so every lookup key carries several
// candidates tried in order, and a YAML file can override the built-in
// defaults without a rebuild.
package selectors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category names.
const (
	CategoryLogin       = "login"
	CategorySearch      = "search"
	CategoryPostActions = "post_actions"
	CategoryTimeline    = "timeline"
	CategoryFallback    = "fallback"
)

// Registry maps (category, key) to an ordered candidate selector list.
type Registry struct {
	categories map[string]map[string][]string
}

// Default returns a registry with the built-in selector set for x.com.
func Default() *Registry {
	return &Registry{categories: map[string]map[string][]string{
		CategoryLogin: {
			"username_input": {
				`input[autocomplete="username"]`,
				`input[name="text"]`,
			},
			"password_input": {
				`input[autocomplete="current-password"]`,
				`input[name="password"]`,
			},
			"login_button": {
				`[data-testid="LoginForm_Login_Button"]`,
				`[data-testid="login"]`,
			},
			"login_link": {
				`a[href="/login"]`,
				`[data-testid="loginButton"]`,
			},
			"logged_in_indicator": {
				`[data-testid="SideNav_AccountSwitcher_Button"]`,
				`[data-testid="AppTabBar_Home_Link"]`,
				`[data-testid="primaryColumn"]`,
			},
		},
		CategorySearch: {
			"search_input": {
				`input[data-testid="SearchBox_Search_Input"]`,
				`input[placeholder="Search"]`,
			},
			"result_container": {
				`[data-testid="primaryColumn"]`,
				`section[role="region"]`,
			},
		},
		CategoryPostActions: {
			"follow_button": {
				`[data-testid$="-follow"]`,
				`button[aria-label^="Follow"]`,
			},
			"unfollow_button": {
				`[data-testid$="-unfollow"]`,
				`button[aria-label^="Following"]`,
			},
			"repost_button": {
				`[data-testid="retweet"]`,
				`button[aria-label*="Repost"]`,
			},
			"unretweet_button": {
				`[data-testid="unretweet"]`,
				`button[aria-label*="Reposted"]`,
			},
			"repost_confirm": {
				`[data-testid="retweetConfirm"]`,
				`div[role="menuitem"][data-testid="retweetConfirm"]`,
			},
			"like_button": {
				`[data-testid="like"]`,
				`button[aria-label*="Like"]`,
			},
			"unlike_button": {
				`[data-testid="unlike"]`,
				`button[aria-label*="Liked"]`,
			},
		},
		CategoryTimeline: {
			"post_links": {
				`[data-testid="tweet"] a[href*="/status/"]`,
				`article a[href*="/status/"]`,
			},
			"article_container": {
				`[data-testid="tweet"]`,
				`article`,
				`[role="article"]`,
			},
			"post_images": {
				`img[src*="pbs.twimg.com"]`,
			},
			"reply_items": {
				`[data-testid="reply"]`,
				`[role="article"]`,
				`[data-testid="tweet"]`,
			},
		},
		CategoryFallback: {
			"follow_button_alt": {`div[role="button"][aria-label*="Follow"]`},
			"like_button_alt":   {`div[role="button"][aria-label*="Like"]`},
			"repost_button_alt": {`div[role="button"][aria-label*="Repost"]`},
		},
	}}
}

// LoadFile loads selector overrides from a YAML file and merges them over
// the defaults. Keys present in the file replace the default candidate list
// for that key; absent keys keep their defaults.
func LoadFile(path string) (*Registry, error) {
	r := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read selector file: %w", err)
	}

	var overrides map[string]map[string][]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse selector file: %w", err)
	}

	for category, keys := range overrides {
		if r.categories[category] == nil {
			r.categories[category] = make(map[string][]string)
		}
		for key, list := range keys {
			r.categories[category][key] = list
		}
	}

	return r, nil
}

// Lookup returns the ordered candidate list for a key, including any
// "<key>_alt" entries from the fallback category. An unknown category
// yields nothing. The returned slice is a copy; callers may not mutate
// the registry through it.
func (r *Registry) Lookup(category, key string) []string {
	keys, ok := r.categories[category]
	if !ok {
		return nil
	}
	out := append([]string(nil), keys[key]...)
	if fb, ok := r.categories[CategoryFallback]; ok {
		out = append(out, fb[key+"_alt"]...)
	}
	return out
}

// Set replaces the candidate list for a key at runtime.
func (r *Registry) Set(category, key string, list []string) {
	if r.categories[category] == nil {
		r.categories[category] = make(map[string][]string)
	}
	r.categories[category][key] = append([]string(nil), list...)
}

// Validate checks that the required lookup keys have at least one candidate.
func (r *Registry) Validate() error {
	required := [][2]string{
		{CategoryLogin, "username_input"},
		{CategoryLogin, "password_input"},
		{CategorySearch, "search_input"},
		{CategoryPostActions, "follow_button"},
		{CategoryPostActions, "repost_button"},
		{CategoryPostActions, "like_button"},
		{CategoryTimeline, "post_links"},
	}

	for _, rk := range required {
		if len(r.Lookup(rk[0], rk[1])) == 0 {
			return fmt.Errorf("missing required selectors for %s.%s", rk[0], rk[1])
		}
	}
	return nil
}
