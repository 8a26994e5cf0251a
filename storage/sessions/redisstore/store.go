// Package redisstore keeps login sessions in Redis so they survive restarts & are shared by every instance.
package redisstore

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
)

const keyPrefix = "session:"

type store struct {
	rdb redis.Cmdable
}

var _ auth.SessionStore = (*store)(nil)

func New(rdb redis.Cmdable) auth.SessionStore {
	return &store{rdb: rdb}
}

// Open connects to the Redis server configured in conf.Sessions.
func Open(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Sessions.RedisAddr,
		Password: conf.Sessions.RedisPassword,
		DB:       conf.Sessions.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func (s *store) Create(ctx context.Context, sess *auth.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return auth.ErrSessionExpired
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return s.rdb.Set(ctx, sessionKey(sess.ID), data, ttl).Err()
}

func (s *store) Get(ctx context.Context, id string) (*auth.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, auth.ErrSessionNotFound
		}
		return nil, err
	}

	sess := new(auth.Session)
	if err = json.Unmarshal(data, sess); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	// redis expiry has a 1ms resolution
	if sess.IsExpired() {
		_ = s.Delete(ctx, id)
		return nil, auth.ErrSessionExpired
	}
	return sess, nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}
