package feed

import (
	"testing"
	"time"

	"ReadCamp/module/feed/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rankNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func rankFixture() []*model.Post {
	return []*model.Post{
		{PostID: "old-viral", AuthorRole: model.RoleUser,
			LikeCount: 500, CommentCount: 200, ShareCount: 100,
			CreateTime: rankNow.Add(-60 * time.Hour)},
		{PostID: "fresh-quiet", AuthorRole: model.RoleUser,
			LikeCount:  1,
			CreateTime: rankNow.Add(-1 * time.Hour)},
		{PostID: "admin-steady", AuthorRole: model.RoleAdmin,
			LikeCount: 30, CommentCount: 10, ShareCount: 5,
			CreateTime: rankNow.Add(-20 * time.Hour)},
		{PostID: "warm", AuthorRole: model.RoleUser,
			LikeCount: 40, CommentCount: 15, ShareCount: 8,
			CreateTime: rankNow.Add(-10 * time.Hour)},
	}
}

func rankedIDs(rs []Ranked) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.PostID
	}
	return out
}

func TestParseView(t *testing.T) {
	v, err := ParseView("")
	require.NoError(t, err)
	assert.Equal(t, ViewRecent, v)

	for _, s := range []string{"recent", "popular", "trending", "admin"} {
		v, err := ParseView(s)
		require.NoError(t, err)
		assert.Equal(t, View(s), v)
	}

	_, err = ParseView("hot")
	assert.Error(t, err)
}

func TestRankRecentOrdersByCreateTime(t *testing.T) {
	got := Rank(ViewRecent, rankFixture(), rankNow)
	assert.Equal(t, []string{"fresh-quiet", "warm", "admin-steady", "old-viral"}, rankedIDs(got))
}

func TestRankPopularOrdersByEngagement(t *testing.T) {
	got := Rank(ViewPopular, rankFixture(), rankNow)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].EngagementScore, got[i].EngagementScore)
	}
	assert.Equal(t, "fresh-quiet", rankedIDs(got)[3], "one like barely registers")
}

func TestRankTrendingDropsExpiredPosts(t *testing.T) {
	got := Rank(ViewTrending, rankFixture(), rankNow)
	ids := rankedIDs(got)
	assert.NotContains(t, ids, "old-viral", "outside the window regardless of volume")
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].TrendingScore, got[i].TrendingScore)
	}
}

func TestRankAdminFiltersToPrivileged(t *testing.T) {
	got := Rank(ViewAdmin, rankFixture(), rankNow)
	require.Len(t, got, 1)
	assert.Equal(t, "admin-steady", got[0].PostID)
}

func TestRankTieBreaksOnPostID(t *testing.T) {
	same := rankNow.Add(-2 * time.Hour)
	posts := []*model.Post{
		{PostID: "b", CreateTime: same},
		{PostID: "a", CreateTime: same},
		{PostID: "c", CreateTime: same},
	}
	got := Rank(ViewRecent, posts, rankNow)
	assert.Equal(t, []string{"a", "b", "c"}, rankedIDs(got))
}

func TestRankDoesNotMutateInput(t *testing.T) {
	posts := rankFixture()
	before := rankedIDsFromPosts(posts)
	_ = Rank(ViewPopular, posts, rankNow)
	assert.Equal(t, before, rankedIDsFromPosts(posts), "input slice order untouched")
}

func rankedIDsFromPosts(ps []*model.Post) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.PostID
	}
	return out
}
