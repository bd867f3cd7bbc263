package natsx

import (
	"context"
	"encoding/json"
	"time"

	"ReadCamp/logger"
	"ReadCamp/service/storage"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Presence fan-in: gateways publish connect/disconnect events here, the
// consumer folds them into the Redis presence keyspace. This is the third
// independent subscription of a session; it carries no ordering guarantee
// relative to the document or feed streams.
const (
	SubjectPresenceConnect    = "rc.presence.connect"
	SubjectPresenceDisconnect = "rc.presence.disconnect"
)

type PresenceEvent struct {
	UserID    string `json:"user_id"`
	GatewayID string `json:"gateway_id,omitempty"`
}

// PublishPresence emits one connect/disconnect event.
func (c *Client) PublishPresence(connected bool, ev PresenceEvent) error {
	subject := SubjectPresenceDisconnect
	if connected {
		subject = SubjectPresenceConnect
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// SubscribePresence consumes presence events in a queue group and applies
// them to Redis. ttl bounds how long a connect is honoured without renewal.
func (c *Client) SubscribePresence(queue string, ttl time.Duration) error {
	handle := func(connected bool) nats.MsgHandler {
		return func(m *nats.Msg) {
			var ev PresenceEvent
			if err := json.Unmarshal(m.Data, &ev); err != nil {
				logger.Warn("presence event undecodable", zap.Error(err))
				return
			}
			if ev.UserID == "" {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			var err error
			if connected {
				err = storage.PresenceOnline(ctx, ev.UserID, ev.GatewayID, ttl)
			} else {
				err = storage.PresenceOffline(ctx, ev.UserID)
			}
			if err != nil {
				logger.Warn("presence apply failed",
					zap.String("user", ev.UserID), zap.Bool("connected", connected), zap.Error(err))
			}
		}
	}

	sub, err := c.nc.QueueSubscribe(SubjectPresenceConnect, queue, handle(true))
	if err != nil {
		return err
	}
	c.track(sub)

	sub, err = c.nc.QueueSubscribe(SubjectPresenceDisconnect, queue, handle(false))
	if err != nil {
		return err
	}
	c.track(sub)
	return nil
}
