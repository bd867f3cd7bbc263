package model

import (
	"time"

	"ReadCamp/tools/decode"
	"ReadCamp/tools/errs"
)

type ActivityType string

const (
	ActivityReadingCompleted ActivityType = "reading_completed"
	ActivityBibleReading     ActivityType = "bible_reading"
	ActivityChatMessage      ActivityType = "chat_message"
	ActivityCommunityPost    ActivityType = "community_post"
	ActivityProfileUpdate    ActivityType = "profile_update"
	ActivityLogin            ActivityType = "login"
	ActivitySystem           ActivityType = "system"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityReadingCompleted, ActivityBibleReading, ActivityChatMessage,
		ActivityCommunityPost, ActivityProfileUpdate, ActivityLogin, ActivitySystem:
		return true
	}
	return false
}

// ActivityRecord is one append-only element of the per-user log. Never
// mutated in place; removed individually or via clear-all.
type ActivityRecord struct {
	ID        string         `bson:"id" json:"ID"`
	Type      ActivityType   `bson:"type" json:"Type"`
	Timestamp time.Time      `bson:"timestamp" json:"Timestamp"`
	Data      map[string]any `bson:"data,omitempty" json:"Data,omitempty"`
}

func (r ActivityRecord) Clone() ActivityRecord {
	cp := r
	if r.Data != nil {
		cp.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			cp.Data[k] = v
		}
	}
	return cp
}

// Typed payloads, one shape per activity type. The open bag is decoded
// exhaustively at this boundary; display code never touches raw maps.

type ReadingCompletedPayload struct {
	Day     int32 `json:"day"`
	Minutes int64 `json:"minutes"`
}

type BibleReadingPayload struct {
	Book    string `json:"book"`
	Chapter int32  `json:"chapter"`
	Minutes int64  `json:"minutes"`
}

type ChatMessagePayload struct {
	ChannelID string `json:"channel_id"`
	Preview   string `json:"preview"`
}

type CommunityPostPayload struct {
	PostID string `json:"post_id"`
	Title  string `json:"title"`
}

type ProfileUpdatePayload struct {
	Fields []string `json:"fields"`
}

type LoginPayload struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
}

type SystemPayload struct {
	Event string `json:"event"`
}

// Payload decodes Data into the typed payload for the record's type.
func (r *ActivityRecord) Payload() (any, error) {
	if r.Data == nil {
		return nil, errs.ErrArgs.WrapMsg("record has no data", "id", r.ID)
	}
	switch r.Type {
	case ActivityReadingCompleted:
		return decode.DecodeMap[ReadingCompletedPayload](r.Data)
	case ActivityBibleReading:
		return decode.DecodeMap[BibleReadingPayload](r.Data)
	case ActivityChatMessage:
		return decode.DecodeMap[ChatMessagePayload](r.Data)
	case ActivityCommunityPost:
		return decode.DecodeMap[CommunityPostPayload](r.Data)
	case ActivityProfileUpdate:
		return decode.DecodeMap[ProfileUpdatePayload](r.Data)
	case ActivityLogin:
		return decode.DecodeMap[LoginPayload](r.Data)
	case ActivitySystem:
		return decode.DecodeMap[SystemPayload](r.Data)
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown activity type", "type", string(r.Type))
	}
}

// Bag flattens a typed payload into the record's Data field.
func Bag(payload any) map[string]any {
	m, err := decode.ToMap(payload)
	if err != nil {
		return map[string]any{}
	}
	return m
}
