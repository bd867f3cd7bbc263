package profile

import (
	"context"
	"sync"
	"time"

	"ReadCamp/logger"
	"ReadCamp/module/profile/model"
	"ReadCamp/tools/errs"
	"ReadCamp/tools/ids"
	"ReadCamp/tools/safe"

	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateChecking
	StateSubscribed
	StateRetrying
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateSubscribed:
		return "subscribed"
	case StateRetrying:
		return "retrying"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Config struct {
	MaxRetries           int           // subscription retries before Fatal, default 3
	RetryDelay           time.Duration // fixed delay between retries, default 2s
	ChallengeStart       time.Time
	MinutesPerCompletion int64            // added to time_spent_reading per completed day, default 15
	Now                  func() time.Time // injectable clock
}

func (c *Config) withDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MinutesPerCompletion == 0 {
		c.MinutesPerCompletion = 15
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.ChallengeStart.IsZero() {
		c.ChallengeStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// Coordinator owns one user's sync session: document lifecycle, the change
// subscription with its retry policy, the stats/log mirrors, and the mutating
// API. One coordinator per active session, held in a Registry.
type Coordinator struct {
	userID  string
	store   DocStore
	watcher Watcher
	notify  Notifier
	idgen   *ids.Generator
	cfg     Config

	mu    sync.RWMutex
	state State
	stats *model.UserStats

	log *ActivityLog

	// serializes mutating round trips so a second read-modify-write on the
	// same field group cannot start before the prior one resolves
	opMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	sub    Subscription

	lisMu     sync.Mutex
	listeners []func(*model.UserStats)
}

func NewCoordinator(userID string, store DocStore, watcher Watcher, notify Notifier, gen *ids.Generator, cfg Config) *Coordinator {
	cfg.withDefaults()
	if notify == nil {
		notify = NopNotifier{}
	}
	if gen == nil {
		gen = ids.NewGenerator(1)
	}
	return &Coordinator{
		userID:  userID,
		store:   store,
		watcher: watcher,
		notify:  notify,
		idgen:   gen,
		cfg:     cfg,
		log:     NewActivityLog(),
	}
}

func (c *Coordinator) now() time.Time { return c.cfg.Now() }

// Start drives Idle -> Checking -> Subscribed. Missing documents are created
// before the subscription opens; a subscription that cannot be opened after
// the retry budget leaves the coordinator Fatal with the banner raised.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateFatal {
		c.mu.Unlock()
		return errs.ErrArgs.WrapMsg("coordinator already started", "state", c.state.String())
	}
	c.state = StateChecking
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	stats, err := c.store.Read(c.ctx, c.userID)
	if errs.ErrNotFound.Is(err) {
		if err = c.store.EnsureCreated(c.ctx, c.seed(c.now())); err == nil {
			stats, err = c.store.Read(c.ctx, c.userID)
		}
	}
	if err != nil {
		c.setState(StateFatal)
		c.notify.Banner("Could not load activity data")
		return errs.ErrFatalSync.WrapMsg("initial document load failed", "user", c.userID, "err", err)
	}
	c.ingest(stats)

	sub, err := c.subscribeWithRetry()
	if err != nil {
		c.setState(StateFatal)
		c.notify.Banner("Could not load activity data")
		return err
	}
	c.mu.Lock()
	c.sub = sub
	c.state = StateSubscribed
	c.mu.Unlock()
	c.notify.ClearBanner()

	safe.Go("profile.sync."+c.userID, c.run)
	return nil
}

// Retry is the manual affordance behind the Fatal banner.
func (c *Coordinator) Retry(ctx context.Context) error {
	if c.State() != StateFatal {
		return errs.ErrArgs.WrapMsg("retry only valid in fatal state")
	}
	return c.Start(ctx)
}

// Stop tears the subscription down and cancels any in-flight retry timer.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	sub := c.sub
	c.sub = nil
	c.state = StateIdle
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func (c *Coordinator) run() {
	for {
		c.mu.RLock()
		sub := c.sub
		c.mu.RUnlock()
		if sub == nil {
			return
		}

		ev, ok := <-sub.Events()
		if ok {
			c.ingest(ev)
			continue
		}
		if c.ctx.Err() != nil {
			return
		}

		logger.Warn("document subscription dropped",
			zap.String("user", c.userID), zap.Error(sub.Err()))
		c.setState(StateRetrying)
		next, err := c.subscribeWithRetry()
		if err != nil {
			c.setState(StateFatal)
			c.notify.Banner("Could not load activity data")
			return
		}
		c.mu.Lock()
		c.sub = next
		c.state = StateSubscribed
		c.mu.Unlock()
		c.notify.ClearBanner()

		// catch up on anything written while the stream was down
		if stats, rerr := c.store.Read(c.ctx, c.userID); rerr == nil {
			c.ingest(stats)
		}
	}
}

// subscribeWithRetry makes the initial attempt plus cfg.MaxRetries more,
// sleeping the fixed cfg.RetryDelay between attempts. Cancelling the session
// context aborts the timer immediately.
func (c *Coordinator) subscribeWithRetry() (Subscription, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return nil, errs.Wrap(c.ctx.Err())
			case <-time.After(c.cfg.RetryDelay):
			}
		}
		sub, err := c.watcher.Watch(c.ctx, c.userID)
		if err == nil {
			return sub, nil
		}
		lastErr = err
		logger.Warn("subscription attempt failed",
			zap.String("user", c.userID), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, errs.ErrFatalSync.WrapMsg("subscription retries exhausted",
		"user", c.userID, "attempts", c.cfg.MaxRetries+1, "err", lastErr)
}

// ingest replaces the local mirrors with a server snapshot. Derived fields
// are re-derived locally so the invariants hold even against a stale writer.
func (c *Coordinator) ingest(doc *model.UserStats) {
	if doc == nil {
		return
	}
	snap := doc.Clone()
	snap.TotalReadingDays = int32(len(snap.ReadingProgress))
	snap.ReadingStreak = Streak(snap.ProgressSet(), TodayIndex(c.cfg.ChallengeStart, c.now()))

	c.mu.Lock()
	c.stats = snap
	c.mu.Unlock()
	c.log.Replace(snap.Activities)
	c.publish(snap)
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Stats returns the latest snapshot copy, nil before the first load.
func (c *Coordinator) Stats() *model.UserStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.Clone()
}

func (c *Coordinator) StreakValue() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stats == nil {
		return 0
	}
	return c.stats.ReadingStreak
}

func (c *Coordinator) Activities(f Filter) []model.ActivityRecord {
	return c.log.Filter(f, c.now())
}

// OnSnapshot registers a listener for republished stats snapshots.
func (c *Coordinator) OnSnapshot(fn func(*model.UserStats)) {
	c.lisMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.lisMu.Unlock()
}

func (c *Coordinator) publish(snap *model.UserStats) {
	c.lisMu.Lock()
	ls := make([]func(*model.UserStats), len(c.listeners))
	copy(ls, c.listeners)
	c.lisMu.Unlock()
	for _, fn := range ls {
		fn(snap.Clone())
	}
}

func (c *Coordinator) seed(now time.Time) *model.UserStats {
	return &model.UserStats{
		UserID:          c.userID,
		ReadingProgress: []int32{},
		Activities: []model.ActivityRecord{{
			ID:        c.idgen.NextString(),
			Type:      model.ActivitySystem,
			Timestamp: now,
			Data:      model.Bag(model.SystemPayload{Event: "profile_created"}),
		}},
		LastActiveDate: now,
		CreateTime:     now,
		UpdateTime:     now,
	}
}

func (c *Coordinator) requireSubscribed() error {
	if c.State() != StateSubscribed {
		return errs.ErrNotReady.WrapMsg("state", "state", c.State().String())
	}
	return nil
}

// withCreateRetry runs op; on NotFound it creates the document and retries
// exactly once before surfacing the error.
func (c *Coordinator) withCreateRetry(ctx context.Context, op func() error) error {
	err := op()
	if !errs.ErrNotFound.Is(err) {
		return err
	}
	if cerr := c.store.EnsureCreated(ctx, c.seed(c.now())); cerr != nil {
		return cerr
	}
	return op()
}

// UpdateReadingProgress adds or removes one day index, recomputes the derived
// fields, and patches the document. The local mutation is optimistic: on a
// failed round trip the visible stats revert and the failure is toasted.
func (c *Coordinator) UpdateReadingProgress(ctx context.Context, day int32, completed bool) error {
	if day < 1 || day > model.ChallengeDays {
		return errs.ErrArgs.WrapMsg("day out of range", "day", day)
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.requireSubscribed(); err != nil {
		c.notify.Toast(false, "Sync is not ready yet, please wait")
		return err
	}

	now := c.now()
	c.mu.Lock()
	prev := c.stats
	if prev == nil {
		c.mu.Unlock()
		c.notify.Toast(false, "Sync is not ready yet, please wait")
		return errs.ErrNotReady.WrapMsg("no snapshot loaded")
	}
	next := prev.Clone()
	had := next.HasDay(day)
	toCompleted := completed && !had
	switch {
	case toCompleted:
		next.ReadingProgress = append(next.ReadingProgress, day)
	case !completed && had:
		for i, d := range next.ReadingProgress {
			if d == day {
				next.ReadingProgress = append(next.ReadingProgress[:i], next.ReadingProgress[i+1:]...)
				break
			}
		}
	}
	next.TotalReadingDays = int32(len(next.ReadingProgress))
	next.ReadingStreak = Streak(next.ProgressSet(), TodayIndex(c.cfg.ChallengeStart, now))
	if toCompleted {
		next.TimeSpentReading += c.cfg.MinutesPerCompletion
	}
	next.LastActiveDate = now
	c.stats = next
	c.mu.Unlock()
	c.publish(next)

	patch := map[string]any{
		"reading_progress":   next.ReadingProgress,
		"total_reading_days": next.TotalReadingDays,
		"reading_streak":     next.ReadingStreak,
		"time_spent_reading": next.TimeSpentReading,
		"last_active_date":   now,
	}
	err := c.withCreateRetry(ctx, func() error {
		return c.store.ApplyPatch(ctx, c.userID, patch)
	})
	if err != nil {
		// revert; the next server notification wins regardless
		c.mu.Lock()
		c.stats = prev
		c.mu.Unlock()
		c.publish(prev)
		c.notify.Toast(false, "Could not save reading progress")
		return errs.ErrWriteFailure.WrapMsg("progress patch failed", "day", day, "err", err)
	}

	if toCompleted {
		rec := model.ActivityRecord{
			ID:        c.idgen.NextString(),
			Type:      model.ActivityReadingCompleted,
			Timestamp: now,
			Data: model.Bag(model.ReadingCompletedPayload{
				Day:     day,
				Minutes: c.cfg.MinutesPerCompletion,
			}),
		}
		if aerr := c.store.AppendActivity(ctx, c.userID, rec, nil); aerr != nil {
			// progress is saved; only the log entry is missing
			logger.Warn("completion record append failed",
				zap.String("user", c.userID), zap.Error(aerr))
			c.notify.Toast(false, "Could not record the completed day")
			return nil
		}
		c.log.Append(rec)
	}
	c.notify.Toast(true, "Reading progress saved")
	return nil
}

// LogActivity appends one record, filling in id and timestamp when absent.
// chat_message/community_post bump their monotonic counter in the same
// atomic update.
func (c *Coordinator) LogActivity(ctx context.Context, rec model.ActivityRecord) error {
	return c.logActivity(ctx, rec, counterBump(rec.Type))
}

// TrackBibleReading appends a bible_reading record and accumulates the
// reported minutes atomically.
func (c *Coordinator) TrackBibleReading(ctx context.Context, book string, chapter int32, minutes int64) error {
	if minutes < 0 {
		return errs.ErrArgs.WrapMsg("negative minutes", "minutes", minutes)
	}
	rec := model.ActivityRecord{
		Type: model.ActivityBibleReading,
		Data: model.Bag(model.BibleReadingPayload{Book: book, Chapter: chapter, Minutes: minutes}),
	}
	inc := map[string]int64{}
	if minutes > 0 {
		inc["time_spent_reading"] = minutes
	}
	return c.logActivity(ctx, rec, inc)
}

func (c *Coordinator) logActivity(ctx context.Context, rec model.ActivityRecord, inc map[string]int64) error {
	if !rec.Type.Valid() {
		return errs.ErrArgs.WrapMsg("unknown activity type", "type", string(rec.Type))
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	system := rec.Type == model.ActivitySystem
	if err := c.requireSubscribed(); err != nil {
		if system {
			logger.Debug("system activity dropped, sync not ready", zap.String("user", c.userID))
			return nil
		}
		c.notify.Toast(false, "Sync is not ready yet, please wait")
		return err
	}

	if rec.ID == "" {
		rec.ID = c.idgen.NextString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}

	err := c.withCreateRetry(ctx, func() error {
		return c.store.AppendActivity(ctx, c.userID, rec, inc)
	})
	if err != nil {
		if system {
			// system entries never produce visible errors
			logger.Debug("system activity append failed",
				zap.String("user", c.userID), zap.Error(err))
			return nil
		}
		c.notify.Toast(false, "Could not log the activity, try again")
		return errs.ErrWriteFailure.WrapMsg("activity append failed", "type", string(rec.Type), "err", err)
	}

	c.log.Append(rec)
	c.mu.Lock()
	if c.stats != nil {
		snap := c.stats.Clone()
		for field, delta := range inc {
			switch field {
			case "messages_count":
				snap.MessagesCount += delta
			case "posts_count":
				snap.PostsCount += delta
			case "time_spent_reading":
				snap.TimeSpentReading += delta
			}
		}
		snap.LastActiveDate = rec.Timestamp
		c.stats = snap
		c.mu.Unlock()
		c.publish(snap)
	} else {
		c.mu.Unlock()
	}
	return nil
}

// ClearActivity removes one record by id.
func (c *Coordinator) ClearActivity(ctx context.Context, id string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.requireSubscribed(); err != nil {
		c.notify.Toast(false, "Sync is not ready yet, please wait")
		return err
	}
	err := c.withCreateRetry(ctx, func() error {
		return c.store.RemoveActivity(ctx, c.userID, id)
	})
	if err != nil {
		c.notify.Toast(false, "Could not remove the activity")
		return errs.ErrWriteFailure.WrapMsg("activity remove failed", "record", id, "err", err)
	}
	c.log.Remove(id)
	c.notify.Toast(true, "Activity removed")
	return nil
}

// ClearAllActivities empties the log in one patch. Counters are untouched.
func (c *Coordinator) ClearAllActivities(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.requireSubscribed(); err != nil {
		c.notify.Toast(false, "Sync is not ready yet, please wait")
		return err
	}
	err := c.withCreateRetry(ctx, func() error {
		return c.store.ClearActivities(ctx, c.userID)
	})
	if err != nil {
		c.notify.Toast(false, "Could not clear the activity log")
		return errs.ErrWriteFailure.WrapMsg("activity clear failed", "err", err)
	}
	c.log.Clear()
	c.notify.Toast(true, "Activity log cleared")
	return nil
}

func counterBump(t model.ActivityType) map[string]int64 {
	switch t {
	case model.ActivityChatMessage:
		return map[string]int64{"messages_count": 1}
	case model.ActivityCommunityPost:
		return map[string]int64{"posts_count": 1}
	default:
		return nil
	}
}
