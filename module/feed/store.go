package feed

import (
	"context"
	"time"

	"ReadCamp/module/feed/model"
	mgo "ReadCamp/service/mgo"
	"ReadCamp/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store reads and mutates the posts collection. All counter movement is a
// server-side $inc; both the quick-comment and threaded-comment paths call
// IncCommentCount, so concurrent commenters can never under- or over-count.
type Store struct{}

func NewStore() *Store { return &Store{} }

func (s *Store) coll() *mongo.Collection {
	return mgo.GetDB().Collection((&model.Post{}).GetTableName())
}

func (s *Store) Insert(ctx context.Context, p *model.Post) error {
	if p.PostID == "" || p.AuthorID == "" {
		return errs.ErrArgs.WrapMsg("post missing id or author")
	}
	if p.CreateTime.IsZero() {
		p.CreateTime = time.Now()
	}
	_, err := s.coll().InsertOne(ctx, p)
	return errs.WrapMsg(err, "post insert failed", "post", p.PostID)
}

// ListRecent returns the newest posts, the feed snapshot the rankers run on.
func (s *Store) ListRecent(ctx context.Context, limit int64) ([]*model.Post, error) {
	if limit <= 0 {
		limit = 200
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "create_time", Value: -1}}).
		SetLimit(limit)
	cur, err := s.coll().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "feed query failed")
	}
	defer cur.Close(ctx)

	var out []*model.Post
	for cur.Next(ctx) {
		var p model.Post
		if err := cur.Decode(&p); err != nil {
			return nil, errs.WrapMsg(err, "feed decode failed")
		}
		out = append(out, &p)
	}
	return out, errs.Wrap(cur.Err())
}

func (s *Store) IncLikeCount(ctx context.Context, postID string, delta int64) error {
	return s.inc(ctx, postID, "like_count", delta)
}

func (s *Store) IncCommentCount(ctx context.Context, postID string) error {
	return s.inc(ctx, postID, "comment_count", 1)
}

func (s *Store) IncShareCount(ctx context.Context, postID string) error {
	return s.inc(ctx, postID, "share_count", 1)
}

func (s *Store) inc(ctx context.Context, postID, field string, delta int64) error {
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"post_id": postID},
		bson.M{"$inc": bson.M{field: delta}},
	)
	if err != nil {
		return errs.WrapMsg(err, "counter inc failed", "post", postID, "field", field)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("post absent", "post", postID)
	}
	return nil
}
