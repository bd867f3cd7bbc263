package profile

import (
	"context"
	"sync"

	"ReadCamp/logger"
	"ReadCamp/module/profile/model"
	mgo "ReadCamp/service/mgo"
	"ReadCamp/tools/errs"
	"ReadCamp/tools/safe"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Subscription is one open change stream on a user's document. Events()
// delivers full post-change snapshots in server order; the channel closes
// when the stream drops, and Err() then says why.
type Subscription interface {
	Events() <-chan *model.UserStats
	Err() error
	Close()
}

// Watcher opens subscriptions; swapped for a fake in coordinator tests.
type Watcher interface {
	Watch(ctx context.Context, userID string) (Subscription, error)
}

type MongoWatcher struct{}

func NewMongoWatcher() *MongoWatcher { return &MongoWatcher{} }

func (w *MongoWatcher) Watch(ctx context.Context, userID string) (Subscription, error) {
	coll := mgo.GetDB().Collection((&model.UserStats{}).GetTableName())

	pipeline := bson.A{
		bson.M{"$match": bson.M{"fullDocument.user_id": userID}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, errs.ErrTransientSync.WrapMsg("change stream open failed", "user", userID, "err", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sub := &changeStreamSub{
		ch:     make(chan *model.UserStats, 8),
		cancel: cancel,
	}

	safe.Go("profile.watch."+userID, func() {
		defer close(sub.ch)
		defer func() { _ = cs.Close(context.Background()) }()
		for cs.Next(streamCtx) {
			var ev struct {
				FullDocument *model.UserStats `bson:"fullDocument"`
			}
			if err := cs.Decode(&ev); err != nil {
				logger.Warn("change event undecodable", zap.String("user", userID), zap.Error(err))
				continue
			}
			if ev.FullDocument == nil {
				// delete/invalidate events carry no document
				continue
			}
			select {
			case sub.ch <- ev.FullDocument:
			case <-streamCtx.Done():
				return
			}
		}
		if err := cs.Err(); err != nil && streamCtx.Err() == nil {
			sub.setErr(errs.ErrTransientSync.WrapMsg("change stream dropped", "user", userID, "err", err))
		}
	})

	return sub, nil
}

type changeStreamSub struct {
	ch     chan *model.UserStats
	cancel context.CancelFunc

	errMu sync.Mutex
	err   error
}

func (s *changeStreamSub) Events() <-chan *model.UserStats { return s.ch }

func (s *changeStreamSub) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

func (s *changeStreamSub) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *changeStreamSub) Close() { s.cancel() }
