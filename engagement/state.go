// Package engagement probes and changes a post's engagement state. The
// prober reads whether the account already follows, reposted or liked;
// the executor performs the missing actions idempotently, verifying state
// again immediately before each click.
package engagement

import "github.com/so032019/browser-automation/action"

// State is the engagement snapshot for one post.
type State struct {
	Followed bool
	Reposted bool
	Liked    bool
}

// Engaged reports the state for a single kind.
func (s State) Engaged(kind action.Kind) bool {
	switch kind {
	case action.Follow:
		return s.Followed
	case action.Repost:
		return s.Reposted
	case action.Like:
		return s.Liked
	default:
		return false
	}
}

// SetEngaged marks a single kind as engaged.
func (s *State) SetEngaged(kind action.Kind) {
	switch kind {
	case action.Follow:
		s.Followed = true
	case action.Repost:
		s.Reposted = true
	case action.Like:
		s.Liked = true
	}
}

// AllEngaged reports whether every action is already done.
func (s State) AllEngaged() bool {
	return s.Followed && s.Reposted && s.Liked
}

// Pending returns the kinds still missing, in execution order.
func (s State) Pending() []action.Kind {
	var out []action.Kind
	for _, k := range action.All() {
		if !s.Engaged(k) {
			out = append(out, k)
		}
	}
	return out
}
