package feed

import (
	"context"
	"sync"
	"time"

	"ReadCamp/logger"
	"ReadCamp/module/feed/model"
	"ReadCamp/tools/safe"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Mirror holds the latest feed snapshot. Rankers read it on every render
// pass; it may legitimately be ahead of or behind the presence snapshot.
type Mirror struct {
	mu    sync.RWMutex
	posts []*model.Post
}

func NewMirror() *Mirror { return &Mirror{} }

func (m *Mirror) Replace(posts []*model.Post) {
	m.mu.Lock()
	m.posts = posts
	m.mu.Unlock()
}

func (m *Mirror) Snapshot() []*model.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*model.Post(nil), m.posts...)
}

// StartWatch keeps the mirror fed from a change stream over the posts
// collection: on any write event the recent window is re-listed wholesale.
// Stream loss is retried with a fixed delay until ctx ends; the feed is a
// read-only ranking input, so a stale mirror is degraded, not fatal.
func StartWatch(ctx context.Context, store *Store, m *Mirror, limit int64) {
	refresh := func() {
		qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		posts, err := store.ListRecent(qctx, limit)
		if err != nil {
			logger.Warn("feed refresh failed", zap.Error(err))
			return
		}
		m.Replace(posts)
	}

	safe.Go("feed.watch", func() {
		refresh()
		for ctx.Err() == nil {
			cs, err := store.coll().Watch(ctx, bson.A{})
			if err != nil {
				logger.Warn("feed stream open failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
				continue
			}
			for cs.Next(ctx) {
				refresh()
			}
			if err := cs.Err(); err != nil && ctx.Err() == nil {
				logger.Warn("feed stream dropped", zap.Error(err))
			}
			_ = cs.Close(context.Background())
		}
	})
}
