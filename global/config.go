package global

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"ReadCamp/data/database/mgo/mongoutil"
	mgoSrv "ReadCamp/service/mgo"
	"ReadCamp/service/natsx"
	redissrv "ReadCamp/service/storage/redis"
	"ReadCamp/tools/errs"
	"ReadCamp/tools/ids"
)

type ChallengeConfig struct {
	Start                time.Time
	MinutesPerCompletion int64
}

type AppConfig struct {
	HTTPAddr    string
	GatewayID   string
	PresenceTTL time.Duration

	Mongo     mongoutil.Config
	Redis     redissrv.Config
	Nats      natsx.Config
	Challenge ChallengeConfig
}

// Load builds the process configuration from the environment with local
// defaults, same knobs in dev and prod.
func Load() *AppConfig {
	return &AppConfig{
		HTTPAddr:    envStr("RC_HTTP_ADDR", ":8080"),
		GatewayID:   envStr("RC_GATEWAY_ID", "rc-gw-1"),
		PresenceTTL: envDur("RC_PRESENCE_TTL", 60*time.Second),
		Mongo: mongoutil.Config{
			Uri:         envStr("RC_MONGO_URI", "mongodb://localhost:27017"),
			Database:    envStr("RC_MONGO_DB", "readcamp"),
			MaxPoolSize: envInt("RC_MONGO_POOL", 20),
		},
		Redis: redissrv.Config{
			Addr:     envStr("RC_REDIS_ADDR", "127.0.0.1:6379"),
			Password: envStr("RC_REDIS_PASSWORD", ""),
			DB:       envInt("RC_REDIS_DB", 0),
		},
		Nats: natsx.Config{
			Servers: strings.Split(envStr("RC_NATS_URL", "nats://127.0.0.1:4222"), ","),
			Name:    "readcamp",
		},
		Challenge: ChallengeConfig{
			Start:                envDate("RC_CHALLENGE_START", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
			MinutesPerCompletion: int64(envInt("RC_MINUTES_PER_DAY", 15)),
		},
	}
}

func GetJwtSecret() []byte {
	return []byte(envStr("RC_JWT_SECRET", "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o="))
}

// ConfigAll wires the shared subsystems: id node, Redis, and the async
// Mongo manager. Blocks until Mongo is first reachable or the deadline hits.
func ConfigAll(ctx context.Context, cfg *AppConfig) error {
	ConfigIds()

	if err := redissrv.InitRedis(cfg.Redis); err != nil {
		return errs.WrapMsg(err, "redis init failed", "addr", cfg.Redis.Addr)
	}

	mgoSrv.StartAsync(ctx, &cfg.Mongo)
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := mgoSrv.WaitReady(waitCtx, mgoSrv.Manager()); err != nil {
		return errs.WrapMsg(err, "mongo not ready", "uri", cfg.Mongo.Uri)
	}
	return nil
}

func ConfigIds() {
	ids.SetNodeID(int64(envInt("RC_NODE_ID", 100)))
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envDate(key string, def time.Time) time.Time {
	if v := os.Getenv(key); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t
		}
	}
	return def
}
