package feed

import (
	"sort"
	"time"

	"ReadCamp/module/feed/model"
	"ReadCamp/tools/errs"
)

type View string

const (
	ViewRecent   View = "recent"
	ViewPopular  View = "popular"
	ViewTrending View = "trending"
	ViewAdmin    View = "admin"
)

func ParseView(s string) (View, error) {
	switch View(s) {
	case "", ViewRecent:
		return ViewRecent, nil
	case ViewPopular, ViewTrending, ViewAdmin:
		return View(s), nil
	default:
		return "", errs.ErrArgs.WrapMsg("unknown feed view", "view", s)
	}
}

// Ranked pairs a post with its derived scores for one render pass.
type Ranked struct {
	*model.Post
	EngagementScore float64 `json:"EngagementScore"`
	TrendingScore   float64 `json:"TrendingScore"`
}

// Rank orders a feed snapshot for the requested view. Scores are recomputed
// on every call since they are time-dependent; the input slice is not
// mutated. Ties break on recency, then post id, so repeated passes over the
// same snapshot are stable.
func Rank(view View, posts []*model.Post, now time.Time) []Ranked {
	out := make([]Ranked, 0, len(posts))
	for _, p := range posts {
		if view == ViewAdmin && !p.IsPrivileged() {
			continue
		}
		r := Ranked{
			Post:            p,
			EngagementScore: EngagementScore(p, now),
			TrendingScore:   TrendingScore(p, now),
		}
		if view == ViewTrending && r.TrendingScore <= 0 {
			continue
		}
		out = append(out, r)
	}

	less := func(i, j int) bool { return newerFirst(out[i], out[j]) }
	switch view {
	case ViewPopular:
		less = func(i, j int) bool {
			if out[i].EngagementScore != out[j].EngagementScore {
				return out[i].EngagementScore > out[j].EngagementScore
			}
			return newerFirst(out[i], out[j])
		}
	case ViewTrending:
		less = func(i, j int) bool {
			if out[i].TrendingScore != out[j].TrendingScore {
				return out[i].TrendingScore > out[j].TrendingScore
			}
			return newerFirst(out[i], out[j])
		}
	}
	sort.SliceStable(out, less)
	return out
}

func newerFirst(a, b Ranked) bool {
	if !a.CreateTime.Equal(b.CreateTime) {
		return a.CreateTime.After(b.CreateTime)
	}
	return a.PostID < b.PostID
}
