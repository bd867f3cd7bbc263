package presence

import (
	"time"
)

// Set is the currently-connected id set, delivered independently of the
// rosters it gets merged into. Membership is its only state.
type Set map[string]struct{}

func NewSet(ids []string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Tier is the coarse display status derived from connectivity plus
// last-activity recency.
type Tier string

const (
	TierOnline   Tier = "online"
	TierRecent   Tier = "recent" // last active < 1h
	TierToday    Tier = "today"  // < 24h
	TierThisWeek Tier = "week"   // < 7d
	TierInactive Tier = "inactive"
)

// Entry is a view-layer roster row (a user, or a feed author).
type Entry struct {
	ID             string    `json:"ID"`
	Name           string    `json:"Name,omitempty"`
	LastActiveDate time.Time `json:"LastActiveDate"`
}

type Merged struct {
	Entry
	IsOnline bool `json:"IsOnline"`
	Tier     Tier `json:"Tier"`
}

// Merge augments a copy of the roster with IsOnline and a display tier.
// Input order is preserved and neither input is mutated; the caller re-runs
// the merge whenever the roster or the presence set changes.
func Merge(roster []Entry, s Set, now time.Time) []Merged {
	out := make([]Merged, len(roster))
	for i, e := range roster {
		online := s.Contains(e.ID)
		out[i] = Merged{
			Entry:    e,
			IsOnline: online,
			Tier:     tierOf(online, e.LastActiveDate, now),
		}
	}
	return out
}

func tierOf(online bool, lastActive, now time.Time) Tier {
	if online {
		return TierOnline
	}
	if lastActive.IsZero() {
		return TierInactive
	}
	switch since := now.Sub(lastActive); {
	case since < time.Hour:
		return TierRecent
	case since < 24*time.Hour:
		return TierToday
	case since < 7*24*time.Hour:
		return TierThisWeek
	default:
		return TierInactive
	}
}
