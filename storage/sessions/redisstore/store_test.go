package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/user"
)

const testAddrEnv = "SCHOOLSYS_TEST_REDIS_ADDR"

func setup(t *testing.T) auth.SessionStore {
	addr := os.Getenv(testAddrEnv)
	if addr == "" {
		t.Skipf("%s not set", testAddrEnv)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	return New(rdb)
}

func TestStore(t *testing.T) {
	st := setup(t)
	ctx := context.Background()
	id := auth.Identity{UserID: "42", Username: "awe", Role: user.RoleTeacher}

	sess, err := auth.NewSession(id, time.Hour)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, sess))

	got, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, id, got.Identity)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, st.Delete(ctx, sess.ID))
	_, err = st.Get(ctx, sess.ID)
	assert.Equal(t, auth.ErrSessionNotFound, err)

	expired, err := auth.NewSession(id, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, auth.ErrSessionExpired, st.Create(ctx, expired))
}
