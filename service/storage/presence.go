package storage

import (
	"context"
	"strings"
	"time"

	redissrv "ReadCamp/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: rc:presence:<id>
// Value: gateway_id, TTL controls the online validity period.
const presencePrefix = "rc:presence:"

func presenceKey(id string) string { return presencePrefix + id }

// PresenceOnline marks the entity online and renews the TTL.
func PresenceOnline(ctx context.Context, id, gatewayID string, ttl time.Duration) error {
	return redissrv.GetRedis().Set(ctx, presenceKey(id), gatewayID, ttl).Err()
}

// PresenceOffline removes the key (explicit disconnect).
func PresenceOffline(ctx context.Context, id string) error {
	return redissrv.GetRedis().Del(ctx, presenceKey(id)).Err()
}

// PresenceLookup checks whether a single entity is online.
func PresenceLookup(ctx context.Context, id string) (gatewayID string, online bool, err error) {
	val, err := redissrv.GetRedis().Get(ctx, presenceKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PresenceSnapshot scans the presence keyspace and returns the connected ids.
// The caller folds this into a presence.Set; expired keys fall out via TTL.
func PresenceSnapshot(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	rdb := redissrv.GetRedis()
	for {
		keys, next, err := rdb.Scan(ctx, cursor, presencePrefix+"*", 256).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, presencePrefix))
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}
