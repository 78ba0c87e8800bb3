package revocation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/lookaly/internal/db"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(ctx, gdb))
	return NewDatabase(gdb)
}

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb), mr
}

func backends(t *testing.T) map[string]Registry {
	t.Helper()
	r, _ := newTestRedis(t)
	return map[string]Registry{
		"memory":   NewMemory(time.Minute),
		"redis":    r,
		"database": newTestDatabase(t),
	}
}

func TestRegistry_RevokeThenIsRevoked(t *testing.T) {
	for name, reg := range backends(t) {
		reg := reg
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			exp := time.Now().Add(time.Hour)

			revoked, err := reg.IsRevoked(ctx, "token-a")
			require.NoError(t, err)
			assert.False(t, revoked)

			first, err := reg.Revoke(ctx, "token-a", exp)
			require.NoError(t, err)
			assert.True(t, first)

			revoked, err = reg.IsRevoked(ctx, "token-a")
			require.NoError(t, err)
			assert.True(t, revoked)

			revoked, err = reg.IsRevoked(ctx, "token-b")
			require.NoError(t, err)
			assert.False(t, revoked)
		})
	}
}

func TestRegistry_RevokeIsIdempotent(t *testing.T) {
	for name, reg := range backends(t) {
		reg := reg
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			exp := time.Now().Add(time.Hour)

			first, err := reg.Revoke(ctx, "token-a", exp)
			require.NoError(t, err)
			assert.True(t, first)

			again, err := reg.Revoke(ctx, "token-a", exp)
			require.NoError(t, err)
			assert.False(t, again)

			revoked, err := reg.IsRevoked(ctx, "token-a")
			require.NoError(t, err)
			assert.True(t, revoked)
		})
	}
}

func TestRegistry_ConcurrentRevokeHasOneWinner(t *testing.T) {
	for name, reg := range backends(t) {
		reg := reg
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			exp := time.Now().Add(time.Hour)

			var winners atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					first, err := reg.Revoke(ctx, "contended", exp)
					assert.NoError(t, err)
					if first {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestRegistry_ExpiredTokenIsNotStored(t *testing.T) {
	for name, reg := range backends(t) {
		reg := reg
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := reg.Revoke(ctx, "stale", time.Now().Add(-time.Minute))
			require.NoError(t, err)
			assert.True(t, first)

			revoked, err := reg.IsRevoked(ctx, "stale")
			require.NoError(t, err)
			assert.False(t, revoked)
		})
	}
}

func TestMemory_EntriesAreReclaimed(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	_, err := m.Revoke(ctx, "short", time.Now().Add(50*time.Millisecond))
	require.NoError(t, err)
	_, err = m.Revoke(ctx, "long", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	time.Sleep(100 * time.Millisecond)
	m.Purge()
	assert.Equal(t, 1, m.Len())
}

func TestRedis_KeysExpireWithToken(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	_, err := r.Revoke(ctx, "token-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisPrefix+"token-a"))

	mr.FastForward(2 * time.Minute)
	revoked, err := r.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedis_BackendDownIsAnError(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	_, err := r.IsRevoked(context.Background(), "token-a")
	assert.Error(t, err)
	_, err = r.Revoke(context.Background(), "token-a", time.Now().Add(time.Minute))
	assert.Error(t, err)
}

func TestDatabase_Purge(t *testing.T) {
	d := newTestDatabase(t)
	ctx := context.Background()
	base := time.Now()

	_, err := d.Revoke(ctx, "soon", base.Add(time.Minute))
	require.NoError(t, err)
	_, err = d.Revoke(ctx, "later", base.Add(time.Hour))
	require.NoError(t, err)

	d.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err := d.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revoked, err := d.IsRevoked(ctx, "later")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = d.IsRevoked(ctx, "soon")
	require.NoError(t, err)
	assert.False(t, revoked)
}
