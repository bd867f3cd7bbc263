package profile

import (
	"context"
	"time"

	"ReadCamp/module/profile/model"
	mgo "ReadCamp/service/mgo"
	"ReadCamp/tools/errs"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocStore is the typed handle on one user's profile/activity document.
// Log mutations are server-side update operators ($push/$pull/$set), never a
// client-computed whole-array replacement, so concurrent appenders cannot
// lose each other's records.
type DocStore interface {
	Exists(ctx context.Context, userID string) (bool, error)
	// EnsureCreated is idempotent: writes the seed (identity fields, empty
	// log plus one system record, zeroed counters) only when absent.
	EnsureCreated(ctx context.Context, seed *model.UserStats) error
	// Read returns errs.ErrNotFound when the document is absent.
	Read(ctx context.Context, userID string) (*model.UserStats, error)
	// ApplyPatch $sets scalar fields. It must not touch the activities field.
	ApplyPatch(ctx context.Context, userID string, fields map[string]any) error
	// AppendActivity atomically appends one record and applies counter
	// increments ($inc) in the same update.
	AppendActivity(ctx context.Context, userID string, rec model.ActivityRecord, inc map[string]int64) error
	RemoveActivity(ctx context.Context, userID, recordID string) error
	ClearActivities(ctx context.Context, userID string) error
}

type MongoStore struct{}

func NewMongoStore() *MongoStore { return &MongoStore{} }

func (s *MongoStore) coll() *mongo.Collection {
	return mgo.GetDB().Collection((&model.UserStats{}).GetTableName())
}

func (s *MongoStore) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := s.coll().CountDocuments(ctx, bson.M{"user_id": userID},
		options.Count().SetLimit(1))
	if err != nil {
		return false, errs.WrapMsg(err, "exists query failed", "user", userID)
	}
	return n > 0, nil
}

func (s *MongoStore) EnsureCreated(ctx context.Context, seed *model.UserStats) error {
	if seed == nil || seed.UserID == "" {
		return errs.ErrArgs.WrapMsg("seed missing user id")
	}
	// $setOnInsert + upsert: two racing creators still yield one document
	// with exactly one system record.
	_, err := s.coll().UpdateOne(ctx,
		bson.M{"user_id": seed.UserID},
		bson.M{"$setOnInsert": seed},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errs.WrapMsg(err, "ensure create failed", "user", seed.UserID)
	}
	return nil
}

func (s *MongoStore) Read(ctx context.Context, userID string) (*model.UserStats, error) {
	var doc model.UserStats
	err := s.coll().FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg("user stats absent", "user", userID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "read failed", "user", userID)
	}
	return &doc, nil
}

func (s *MongoStore) ApplyPatch(ctx context.Context, userID string, fields map[string]any) error {
	if _, ok := fields["activities"]; ok {
		return errs.ErrArgs.WrapMsg("activities is not patchable, use the log operations")
	}
	set := bson.M{"update_time": time.Now()}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.coll().UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return errs.WrapMsg(err, "patch failed", "user", userID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("patch target absent", "user", userID)
	}
	return nil
}

func (s *MongoStore) AppendActivity(ctx context.Context, userID string, rec model.ActivityRecord, inc map[string]int64) error {
	update := bson.M{
		"$push": bson.M{"activities": rec},
		"$set":  bson.M{"update_time": time.Now()},
	}
	if len(inc) > 0 {
		incDoc := bson.M{}
		for k, v := range inc {
			incDoc[k] = v
		}
		update["$inc"] = incDoc
	}
	res, err := s.coll().UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return errs.WrapMsg(err, "append failed", "user", userID, "type", string(rec.Type))
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("append target absent", "user", userID)
	}
	return nil
}

func (s *MongoStore) RemoveActivity(ctx context.Context, userID, recordID string) error {
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$pull": bson.M{"activities": bson.M{"id": recordID}},
			"$set":  bson.M{"update_time": time.Now()},
		},
	)
	if err != nil {
		return errs.WrapMsg(err, "remove failed", "user", userID, "record", recordID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("remove target absent", "user", userID)
	}
	return nil
}

func (s *MongoStore) ClearActivities(ctx context.Context, userID string) error {
	res, err := s.coll().UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"activities": []model.ActivityRecord{}, "update_time": time.Now()}},
	)
	if err != nil {
		return errs.WrapMsg(err, "clear failed", "user", userID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("clear target absent", "user", userID)
	}
	return nil
}

// Roster lists member profiles for presence merging. Sorted by the
// total-reading-days cache, which is why that field stays persisted.
func (s *MongoStore) Roster(ctx context.Context, limit int64) ([]*model.UserStats, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "total_reading_days", Value: -1}}).
		SetLimit(limit).
		SetProjection(bson.M{"activities": 0})
	cur, err := s.coll().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "roster query failed")
	}
	defer cur.Close(ctx)

	var out []*model.UserStats
	for cur.Next(ctx) {
		var doc model.UserStats
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.WrapMsg(err, "roster decode failed")
		}
		out = append(out, &doc)
	}
	return out, errs.Wrap(cur.Err())
}
