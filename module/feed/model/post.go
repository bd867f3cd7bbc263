package model

import (
	"time"

	mgo "ReadCamp/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// AuthorRole
const (
	RoleUser  int32 = 0
	RoleAdmin int32 = 1
	RoleOwner int32 = 2
)

// Post is one content-feed item. Counters are server-owned and only ever
// moved with atomic increments; CreateTime is immutable once written.
// Scores are derived at read time and never persisted.
type Post struct {
	PostID     string `bson:"post_id" json:"PostID"`
	AuthorID   string `bson:"author_id" json:"AuthorID"`
	AuthorName string `bson:"author_name,omitempty" json:"AuthorName"`
	AuthorRole int32  `bson:"author_role" json:"AuthorRole"`

	Title string `bson:"title,omitempty" json:"Title"`
	Body  string `bson:"body,omitempty" json:"Body"`

	LikeCount    int64 `bson:"like_count" json:"LikeCount"`
	CommentCount int64 `bson:"comment_count" json:"CommentCount"`
	ShareCount   int64 `bson:"share_count" json:"ShareCount"`

	CreateTime time.Time `bson:"create_time" json:"CreateTime"`
}

// IsPrivileged marks elevated-role authors; a scoring modifier, not an ACL.
func (p *Post) IsPrivileged() bool {
	return p.AuthorRole >= RoleAdmin
}

func (p *Post) GetTableName() string {
	return "posts"
}

func (p *Post) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(p.GetTableName())
}
