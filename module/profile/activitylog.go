package profile

import (
	"sort"
	"strings"
	"sync"
	"time"

	"ReadCamp/module/profile/model"
)

type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

type TimeRange string

const (
	RangeAll   TimeRange = "all"
	RangeToday TimeRange = "today"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
)

// Filter predicates compose with AND semantics; zero values match everything.
type Filter struct {
	Type   model.ActivityType
	Range  TimeRange
	Search string // case-insensitive substring over type and string data values
	Sort   SortOrder
}

// ActivityLog is the in-memory, subscription-fed mirror of the per-user log.
// The server snapshot is the source of truth: Replace swaps the whole slice;
// Append/Remove/Clear only keep the mirror current between notifications.
type ActivityLog struct {
	mu      sync.RWMutex
	records []model.ActivityRecord
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

func (l *ActivityLog) Replace(recs []model.ActivityRecord) {
	cp := make([]model.ActivityRecord, len(recs))
	for i, r := range recs {
		cp[i] = r.Clone()
	}
	l.mu.Lock()
	l.records = cp
	l.mu.Unlock()
}

func (l *ActivityLog) Append(rec model.ActivityRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec.Clone())
	l.mu.Unlock()
}

func (l *ActivityLog) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.records {
		if r.ID == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			return true
		}
	}
	return false
}

func (l *ActivityLog) Clear() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}

func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns a copy, newest first.
func (l *ActivityLog) Snapshot() []model.ActivityRecord {
	return l.Filter(Filter{}, time.Now())
}

// Filter applies all set predicates and sorts the result (newest first by
// default). The receiver's records are never mutated or aliased.
func (l *ActivityLog) Filter(f Filter, now time.Time) []model.ActivityRecord {
	l.mu.RLock()
	out := make([]model.ActivityRecord, 0, len(l.records))
	cutoff, bounded := rangeCutoff(f.Range, now)
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	for _, r := range l.records {
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if bounded && r.Timestamp.Before(cutoff) {
			continue
		}
		if needle != "" && !recordMatches(r, needle) {
			continue
		}
		out = append(out, r.Clone())
	}
	l.mu.RUnlock()

	oldest := f.Sort == SortOldest
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		if oldest {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func rangeCutoff(r TimeRange, now time.Time) (time.Time, bool) {
	switch r {
	case RangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case RangeWeek:
		return now.AddDate(0, 0, -7), true
	case RangeMonth:
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}

func recordMatches(r model.ActivityRecord, needle string) bool {
	if strings.Contains(strings.ToLower(string(r.Type)), needle) {
		return true
	}
	for _, v := range r.Data {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
