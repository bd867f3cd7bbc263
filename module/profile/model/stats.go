package model

import (
	"time"

	mgo "ReadCamp/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// Challenge bounds. Day indices in ReadingProgress live in [1, ChallengeDays].
const ChallengeDays int32 = 90

// UserStats is the per-user profile/activity document. Server-owned,
// client-mirrored: the coordinator replaces its in-memory copy wholesale on
// every change notification.
//
// TotalReadingDays is a write-through cache of len(ReadingProgress); it is
// recomputed on every progress patch and re-derived on snapshot ingest.
type UserStats struct {
	UserID   string `bson:"user_id" json:"UserID"`
	Nickname string `bson:"nickname,omitempty" json:"Nickname"`

	ReadingStreak    int32   `bson:"reading_streak" json:"ReadingStreak"`
	TotalReadingDays int32   `bson:"total_reading_days" json:"TotalReadingDays"`
	ReadingProgress  []int32 `bson:"reading_progress" json:"ReadingProgress"`
	TimeSpentReading int64   `bson:"time_spent_reading" json:"TimeSpentReading"` // minutes

	MessagesCount int64 `bson:"messages_count" json:"MessagesCount"`
	PostsCount    int64 `bson:"posts_count" json:"PostsCount"`

	LastActiveDate time.Time `bson:"last_active_date" json:"LastActiveDate"`

	Activities []ActivityRecord `bson:"activities" json:"Activities"`

	CreateTime time.Time `bson:"create_time" json:"CreateTime"`
	UpdateTime time.Time `bson:"update_time" json:"UpdateTime"`
}

func (u *UserStats) GetTableName() string {
	return "user_stats"
}

func (u *UserStats) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(u.GetTableName())
}

// ProgressSet materializes the day-index set for streak derivation.
func (u *UserStats) ProgressSet() map[int32]struct{} {
	s := make(map[int32]struct{}, len(u.ReadingProgress))
	for _, d := range u.ReadingProgress {
		s[d] = struct{}{}
	}
	return s
}

func (u *UserStats) HasDay(day int32) bool {
	for _, d := range u.ReadingProgress {
		if d == day {
			return true
		}
	}
	return false
}

// Clone deep-copies the document so optimistic mutations can be rolled back
// without aliasing the published snapshot.
func (u *UserStats) Clone() *UserStats {
	if u == nil {
		return nil
	}
	cp := *u
	cp.ReadingProgress = append([]int32(nil), u.ReadingProgress...)
	cp.Activities = make([]ActivityRecord, len(u.Activities))
	for i, a := range u.Activities {
		cp.Activities[i] = a.Clone()
	}
	return &cp
}
