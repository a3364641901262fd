// Package action defines the engagement action kinds shared across the
// delay, engagement and orchestrator packages.
package action

// Kind identifies one of the supported engagement actions.
type Kind int

const (
	Follow Kind = iota
	Repost
	Like
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Follow:
		return "follow"
	case Repost:
		return "repost"
	case Like:
		return "like"
	default:
		return "unknown"
	}
}

// All lists the kinds in execution order: follow first, then repost, then
// like.
func All() []Kind {
	return []Kind{Follow, Repost, Like}
}
