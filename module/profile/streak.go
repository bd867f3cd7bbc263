package profile

import (
	"time"

	"ReadCamp/module/profile/model"
)

// Streak counts consecutive completed days walking backward from todayIndex,
// stopping at the first gap. A historical run that does not reach today
// contributes zero: the streak rewards current momentum.
func Streak(progress map[int32]struct{}, todayIndex int32) int32 {
	if todayIndex > model.ChallengeDays {
		todayIndex = model.ChallengeDays
	}
	var n int32
	for i := todayIndex; i >= 1; i-- {
		if _, ok := progress[i]; !ok {
			break
		}
		n++
	}
	return n
}

// TodayIndex maps wall-clock time onto the challenge day axis: elapsed
// calendar days since the fixed start date, clamped to [1, ChallengeDays].
// Never extrapolated past the end of the challenge.
func TodayIndex(start time.Time, now time.Time) int32 {
	days := int32(now.Sub(start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	if days > model.ChallengeDays {
		return model.ChallengeDays
	}
	return days
}
