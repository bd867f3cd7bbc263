package profile

import (
	"context"
	"sync"
	"testing"
	"time"

	"ReadCamp/module/profile/model"
	"ReadCamp/tools/errs"
	"ReadCamp/tools/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is the in-memory DocStore double. It mimics the server-side
// update-operator semantics: append/remove/clear touch only the log, counter
// increments land in the same call as the append.
type memStore struct {
	mu   sync.Mutex
	docs map[string]*model.UserStats

	failPatch  error
	failAppend error
	failRemove error
	failClear  error

	creates int
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*model.UserStats{}}
}

func (s *memStore) get(userID string) (*model.UserStats, error) {
	doc, ok := s.docs[userID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user stats absent", "user", userID)
	}
	return doc, nil
}

func (s *memStore) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[userID]
	return ok, nil
}

func (s *memStore) EnsureCreated(_ context.Context, seed *model.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if _, ok := s.docs[seed.UserID]; ok {
		return nil
	}
	s.docs[seed.UserID] = seed.Clone()
	return nil
}

func (s *memStore) Read(_ context.Context, userID string) (*model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.get(userID)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *memStore) ApplyPatch(_ context.Context, userID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPatch != nil {
		return s.failPatch
	}
	doc, err := s.get(userID)
	if err != nil {
		return err
	}
	for k, v := range fields {
		switch k {
		case "reading_progress":
			doc.ReadingProgress = append([]int32(nil), v.([]int32)...)
		case "total_reading_days":
			doc.TotalReadingDays = v.(int32)
		case "reading_streak":
			doc.ReadingStreak = v.(int32)
		case "time_spent_reading":
			doc.TimeSpentReading = v.(int64)
		case "last_active_date":
			doc.LastActiveDate = v.(time.Time)
		case "nickname":
			doc.Nickname = v.(string)
		}
	}
	doc.UpdateTime = time.Now()
	return nil
}

func (s *memStore) AppendActivity(_ context.Context, userID string, rec model.ActivityRecord, inc map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	doc, err := s.get(userID)
	if err != nil {
		return err
	}
	doc.Activities = append(doc.Activities, rec.Clone())
	for k, v := range inc {
		switch k {
		case "messages_count":
			doc.MessagesCount += v
		case "posts_count":
			doc.PostsCount += v
		case "time_spent_reading":
			doc.TimeSpentReading += v
		}
	}
	return nil
}

func (s *memStore) RemoveActivity(_ context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemove != nil {
		return s.failRemove
	}
	doc, err := s.get(userID)
	if err != nil {
		return err
	}
	for i, r := range doc.Activities {
		if r.ID == recordID {
			doc.Activities = append(doc.Activities[:i], doc.Activities[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memStore) ClearActivities(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failClear != nil {
		return s.failClear
	}
	doc, err := s.get(userID)
	if err != nil {
		return err
	}
	doc.Activities = nil
	return nil
}

func (s *memStore) doc(t *testing.T, userID string) *model.UserStats {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[userID]
	require.True(t, ok, "document %s should exist", userID)
	return doc.Clone()
}

type fakeSub struct {
	ch   chan *model.UserStats
	once sync.Once
}

func (s *fakeSub) Events() <-chan *model.UserStats { return s.ch }
func (s *fakeSub) Err() error                      { return nil }
func (s *fakeSub) Close()                          { s.once.Do(func() { close(s.ch) }) }

type fakeWatcher struct {
	mu       sync.Mutex
	failLeft int
	attempts int
	last     *fakeSub
}

func (w *fakeWatcher) Watch(context.Context, string) (Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failLeft > 0 {
		w.failLeft--
		return nil, errs.ErrTransientSync.WrapMsg("stream open refused")
	}
	w.last = &fakeSub{ch: make(chan *model.UserStats, 8)}
	return w.last, nil
}

type recNotifier struct {
	mu      sync.Mutex
	banners []string
	cleared int
	toasts  []string
	failed  []string
}

func (n *recNotifier) Banner(msg string) {
	n.mu.Lock()
	n.banners = append(n.banners, msg)
	n.mu.Unlock()
}

func (n *recNotifier) ClearBanner() {
	n.mu.Lock()
	n.cleared++
	n.mu.Unlock()
}

func (n *recNotifier) Toast(ok bool, msg string) {
	n.mu.Lock()
	if ok {
		n.toasts = append(n.toasts, msg)
	} else {
		n.failed = append(n.failed, msg)
	}
	n.mu.Unlock()
}

func (n *recNotifier) lastFailure() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.failed) == 0 {
		return ""
	}
	return n.failed[len(n.failed)-1]
}

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fixed clock: challenge day 5
func testNow() time.Time { return testStart.AddDate(0, 0, 4).Add(time.Hour) }

func testConfig() Config {
	return Config{
		RetryDelay:     time.Millisecond,
		ChallengeStart: testStart,
		Now:            testNow,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *memStore, *fakeWatcher, *recNotifier) {
	t.Helper()
	store := newMemStore()
	watcher := &fakeWatcher{}
	notify := &recNotifier{}
	c := NewCoordinator("u1", store, watcher, notify, ids.NewGenerator(1), testConfig())
	return c, store, watcher, notify
}

func startTestCoordinator(t *testing.T) (*Coordinator, *memStore, *fakeWatcher, *recNotifier) {
	t.Helper()
	c, store, watcher, notify := newTestCoordinator(t)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	return c, store, watcher, notify
}

func TestStartCreatesMissingDocument(t *testing.T) {
	c, store, _, notify := startTestCoordinator(t)

	assert.Equal(t, StateSubscribed, c.State())
	assert.Equal(t, 1, notify.cleared, "banner cleared on reaching subscribed")

	doc := store.doc(t, "u1")
	require.Len(t, doc.Activities, 1, "seed carries exactly one system record")
	assert.Equal(t, model.ActivitySystem, doc.Activities[0].Type)
	assert.Empty(t, doc.ReadingProgress)

	stats := c.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, int32(0), stats.TotalReadingDays)
}

func TestStartIngestsExistingDocument(t *testing.T) {
	c, store, _, _ := newTestCoordinator(t)
	require.NoError(t, store.EnsureCreated(context.Background(), &model.UserStats{
		UserID:          "u1",
		ReadingProgress: []int32{1, 2, 3, 4, 5},
		// stale persisted values, re-derived on ingest
		TotalReadingDays: 99,
		ReadingStreak:    0,
	}))
	createsBefore := store.creates

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)

	stats := c.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, int32(5), stats.TotalReadingDays)
	assert.Equal(t, int32(5), stats.ReadingStreak, "days 1..5 complete on challenge day 5")
	assert.Equal(t, createsBefore, store.creates, "existing document is never re-created")
}

func TestUpdateReadingProgressCompletionTransition(t *testing.T) {
	c, store, _, notify := startTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.UpdateReadingProgress(ctx, 5, true))

	stats := c.Stats()
	assert.Equal(t, int32(1), stats.TotalReadingDays)
	assert.Equal(t, int32(1), stats.ReadingStreak)
	assert.Equal(t, int64(15), stats.TimeSpentReading, "completion transition adds the session minutes")

	doc := store.doc(t, "u1")
	assert.Equal(t, []int32{5}, doc.ReadingProgress)
	require.Len(t, doc.Activities, 2)
	assert.Equal(t, model.ActivityReadingCompleted, doc.Activities[1].Type)

	// marking an already-completed day is a no-op on minutes and the log
	require.NoError(t, c.UpdateReadingProgress(ctx, 5, true))
	assert.Equal(t, int64(15), c.Stats().TimeSpentReading)
	assert.Len(t, store.doc(t, "u1").Activities, 2)

	// unmarking removes the day but keeps accumulated minutes
	require.NoError(t, c.UpdateReadingProgress(ctx, 5, false))
	stats = c.Stats()
	assert.Equal(t, int32(0), stats.TotalReadingDays)
	assert.Equal(t, int32(0), stats.ReadingStreak)
	assert.Equal(t, int64(15), stats.TimeSpentReading)

	notify.mu.Lock()
	assert.NotEmpty(t, notify.toasts)
	notify.mu.Unlock()
}

func TestCompletionRecordFailureToastsFailureOnly(t *testing.T) {
	c, store, _, notify := startTestCoordinator(t)

	store.mu.Lock()
	store.failAppend = errs.ErrWriteFailure.WrapMsg("injected")
	store.mu.Unlock()

	// the progress patch lands, only the log record is lost
	require.NoError(t, c.UpdateReadingProgress(context.Background(), 5, true))
	assert.Equal(t, []int32{5}, store.doc(t, "u1").ReadingProgress)

	notify.mu.Lock()
	defer notify.mu.Unlock()
	assert.Equal(t, []string{"Could not record the completed day"}, notify.failed)
	assert.Empty(t, notify.toasts, "a visible failure must not be followed by a success toast")
}

func TestOnSnapshotListenersReceivePublishes(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	var (
		mu   sync.Mutex
		seen []*model.UserStats
	)
	c.OnSnapshot(func(s *model.UserStats) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	require.NoError(t, c.UpdateReadingProgress(context.Background(), 5, true))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 2, "initial ingest plus the optimistic mutation")
	last := seen[len(seen)-1]
	assert.Equal(t, []int32{5}, last.ReadingProgress)

	// listeners get clones, never the live snapshot
	last.ReadingProgress[0] = 77
	assert.Equal(t, []int32{5}, c.Stats().ReadingProgress)
}

func TestUpdateReadingProgressValidatesDay(t *testing.T) {
	c, _, _, _ := startTestCoordinator(t)

	err := c.UpdateReadingProgress(context.Background(), 0, true)
	assert.True(t, errs.ErrArgs.Is(err))
	err = c.UpdateReadingProgress(context.Background(), model.ChallengeDays+1, true)
	assert.True(t, errs.ErrArgs.Is(err))
}

func TestUpdateReadingProgressRollsBackOnWriteFailure(t *testing.T) {
	c, store, _, notify := startTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.UpdateReadingProgress(ctx, 3, true))
	before := c.Stats()

	store.mu.Lock()
	store.failPatch = errs.ErrWriteFailure.WrapMsg("injected")
	store.mu.Unlock()

	err := c.UpdateReadingProgress(ctx, 4, true)
	require.Error(t, err)
	assert.True(t, errs.ErrWriteFailure.Is(err))

	after := c.Stats()
	assert.Equal(t, before.ReadingProgress, after.ReadingProgress, "optimistic mutation reverted")
	assert.Equal(t, before.TimeSpentReading, after.TimeSpentReading)
	assert.Equal(t, "Could not save reading progress", notify.lastFailure())
}

func TestMutationsRejectedBeforeSubscribed(t *testing.T) {
	c, _, _, notify := newTestCoordinator(t)
	ctx := context.Background()

	err := c.UpdateReadingProgress(ctx, 1, true)
	assert.True(t, errs.ErrNotReady.Is(err))

	err = c.LogActivity(ctx, model.ActivityRecord{Type: model.ActivityChatMessage})
	assert.True(t, errs.ErrNotReady.Is(err))

	err = c.ClearAllActivities(ctx)
	assert.True(t, errs.ErrNotReady.Is(err))

	// system entries are dropped silently instead
	err = c.LogActivity(ctx, model.ActivityRecord{
		Type: model.ActivitySystem,
		Data: model.Bag(model.SystemPayload{Event: "heartbeat"}),
	})
	assert.NoError(t, err)

	notify.mu.Lock()
	assert.Len(t, notify.failed, 3, "system drop raises no toast")
	notify.mu.Unlock()
}

func TestLogActivityBumpsCounters(t *testing.T) {
	c, store, _, _ := startTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{
		Type: model.ActivityChatMessage,
		Data: model.Bag(model.ChatMessagePayload{ChannelID: "general", Preview: "hello"}),
	}))
	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{
		Type: model.ActivityCommunityPost,
		Data: model.Bag(model.CommunityPostPayload{PostID: "p1", Title: "week one"}),
	}))
	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{
		Type: model.ActivityLogin,
		Data: model.Bag(model.LoginPayload{Device: "ios"}),
	}))

	doc := store.doc(t, "u1")
	assert.Equal(t, int64(1), doc.MessagesCount)
	assert.Equal(t, int64(1), doc.PostsCount)
	assert.Len(t, doc.Activities, 4, "seed record plus three logged")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.MessagesCount)
	assert.Equal(t, int64(1), stats.PostsCount)

	recs := c.Activities(Filter{Type: model.ActivityChatMessage})
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID, "missing id filled on append")
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestLogActivityRejectsUnknownType(t *testing.T) {
	c, _, _, _ := startTestCoordinator(t)
	err := c.LogActivity(context.Background(), model.ActivityRecord{Type: "unknown"})
	assert.True(t, errs.ErrArgs.Is(err))
}

func TestSystemActivityFailuresAreSwallowed(t *testing.T) {
	c, store, _, notify := startTestCoordinator(t)

	store.mu.Lock()
	store.failAppend = errs.ErrWriteFailure.WrapMsg("injected")
	store.mu.Unlock()

	err := c.LogActivity(context.Background(), model.ActivityRecord{
		Type: model.ActivitySystem,
		Data: model.Bag(model.SystemPayload{Event: "migration"}),
	})
	assert.NoError(t, err)
	assert.Empty(t, notify.lastFailure())

	// the same failure on a user-visible type must surface
	err = c.LogActivity(context.Background(), model.ActivityRecord{Type: model.ActivityChatMessage})
	assert.True(t, errs.ErrWriteFailure.Is(err))
	assert.NotEmpty(t, notify.lastFailure())
}

func TestTrackBibleReading(t *testing.T) {
	c, store, _, _ := startTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.TrackBibleReading(ctx, "John", 3, 20))

	doc := store.doc(t, "u1")
	assert.Equal(t, int64(20), doc.TimeSpentReading)
	require.Len(t, doc.Activities, 2)
	assert.Equal(t, model.ActivityBibleReading, doc.Activities[1].Type)

	p, err := doc.Activities[1].Payload()
	require.NoError(t, err)
	br := p.(*model.BibleReadingPayload)
	assert.Equal(t, "John", br.Book)
	assert.Equal(t, int32(3), br.Chapter)
	assert.Equal(t, int64(20), br.Minutes)

	err = c.TrackBibleReading(ctx, "John", 4, -5)
	assert.True(t, errs.ErrArgs.Is(err))
}

func TestClearActivityRemovesOneRecord(t *testing.T) {
	c, store, _, _ := startTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{ID: "keep", Type: model.ActivityLogin}))
	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{ID: "drop", Type: model.ActivityLogin}))

	require.NoError(t, c.ClearActivity(ctx, "drop"))

	assert.Len(t, store.doc(t, "u1").Activities, 2, "seed plus the kept record")
	for _, r := range c.Activities(Filter{}) {
		assert.NotEqual(t, "drop", r.ID)
	}
}

func TestClearAllLeavesCountersIntact(t *testing.T) {
	c, store, _, _ := startTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{Type: model.ActivityChatMessage}))
	require.NoError(t, c.UpdateReadingProgress(ctx, 2, true))

	require.NoError(t, c.ClearAllActivities(ctx))

	doc := store.doc(t, "u1")
	assert.Empty(t, doc.Activities)
	assert.Equal(t, int64(1), doc.MessagesCount, "counters survive a log clear")
	assert.Equal(t, []int32{2}, doc.ReadingProgress, "progress survives a log clear")
	assert.Equal(t, 0, c.log.Len())
}

func TestSubscriptionRetryExhaustionGoesFatal(t *testing.T) {
	c, _, watcher, notify := newTestCoordinator(t)
	watcher.failLeft = 100

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errs.ErrFatalSync.Is(err))
	assert.Equal(t, StateFatal, c.State())
	assert.Equal(t, 4, watcher.attempts, "initial attempt plus three retries")

	notify.mu.Lock()
	assert.Contains(t, notify.banners, "Could not load activity data")
	notify.mu.Unlock()

	// manual retry against a recovered watcher succeeds
	watcher.mu.Lock()
	watcher.failLeft = 0
	watcher.mu.Unlock()
	require.NoError(t, c.Retry(context.Background()))
	t.Cleanup(c.Stop)
	assert.Equal(t, StateSubscribed, c.State())
}

func TestRetryOnlyValidWhenFatal(t *testing.T) {
	c, _, _, _ := startTestCoordinator(t)
	err := c.Retry(context.Background())
	assert.True(t, errs.ErrArgs.Is(err))
}

func TestSubscriptionEventsUpdateSnapshot(t *testing.T) {
	c, _, watcher, _ := startTestCoordinator(t)

	watcher.mu.Lock()
	sub := watcher.last
	watcher.mu.Unlock()
	require.NotNil(t, sub)

	sub.ch <- &model.UserStats{
		UserID:          "u1",
		ReadingProgress: []int32{4, 5},
		Activities: []model.ActivityRecord{
			{ID: "r1", Type: model.ActivityReadingCompleted, Timestamp: testNow()},
		},
	}

	require.Eventually(t, func() bool {
		s := c.Stats()
		return s != nil && s.TotalReadingDays == 2
	}, time.Second, 5*time.Millisecond)

	stats := c.Stats()
	assert.Equal(t, int32(2), stats.ReadingStreak, "days 4..5 on challenge day 5")
	assert.Equal(t, 1, c.log.Len(), "log mirror replaced from the snapshot")
}

func TestSubscriptionDropResubscribesAndCatchesUp(t *testing.T) {
	c, store, watcher, _ := startTestCoordinator(t)

	// a write that lands while the stream is down
	require.NoError(t, store.AppendActivity(context.Background(), "u1",
		model.ActivityRecord{ID: "missed", Type: model.ActivityLogin, Timestamp: testNow()}, nil))

	watcher.mu.Lock()
	first := watcher.last
	watcher.mu.Unlock()
	first.Close()

	require.Eventually(t, func() bool {
		return c.State() == StateSubscribed && c.log.Len() == 2
	}, time.Second, 5*time.Millisecond, "resubscribe then re-read should pick up the missed record")

	watcher.mu.Lock()
	assert.GreaterOrEqual(t, watcher.attempts, 2)
	watcher.mu.Unlock()
}

func TestWriteRecreatesDeletedDocument(t *testing.T) {
	c, store, _, _ := startTestCoordinator(t)
	ctx := context.Background()

	// document vanishes out from under the session
	store.mu.Lock()
	delete(store.docs, "u1")
	store.mu.Unlock()

	require.NoError(t, c.LogActivity(ctx, model.ActivityRecord{Type: model.ActivityLogin}))

	doc := store.doc(t, "u1")
	assert.Len(t, doc.Activities, 2, "recreated seed plus the logged record")
}
