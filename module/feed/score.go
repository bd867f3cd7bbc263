package feed

import (
	"math"
	"time"

	"ReadCamp/module/feed/model"
)

// Scoring constants. Comments and shares outweigh likes because they cost
// the user more effort; trending is hard-bounded to a rolling window.
const (
	engagementHalfLifeHours = 24.0
	trendingWindowHours     = 48.0
	trendingFreshHours      = 6.0
	trendingFreshBoost      = 1.3
)

// EngagementScore ranks the "popular" view: interaction points with an
// exponential time decay, doubled for privileged authors.
func EngagementScore(p *model.Post, now time.Time) float64 {
	hours := hoursSince(p.CreateTime, now)
	points := float64(p.LikeCount)*1 + float64(p.CommentCount)*3 + float64(p.ShareCount)*5
	decay := math.Exp(-hours / engagementHalfLifeHours)
	mult := 1.0
	if p.IsPrivileged() {
		mult = 2.0
	}
	return points * decay * mult
}

// TrendingScore ranks the "trending" view: engagement velocity inside a
// 48-hour window, zero outside it regardless of volume, with a short-lived
// boost for genuinely fresh items.
func TrendingScore(p *model.Post, now time.Time) float64 {
	hours := hoursSince(p.CreateTime, now)
	if hours > trendingWindowHours {
		return 0
	}
	raw := float64(p.LikeCount) + float64(p.CommentCount)*2 + float64(p.ShareCount)*3
	velocity := raw / math.Max(hours, 1)
	windowBoost := math.Max(0, trendingWindowHours-hours) / trendingWindowHours
	mult := 1.0
	if p.IsPrivileged() {
		mult = 1.5
	}
	recencyBoost := 1.0
	if hours < trendingFreshHours {
		recencyBoost = trendingFreshBoost
	}
	return velocity * windowBoost * mult * recencyBoost
}

func hoursSince(t, now time.Time) float64 {
	h := now.Sub(t).Hours()
	if h < 0 {
		return 0
	}
	return h
}
