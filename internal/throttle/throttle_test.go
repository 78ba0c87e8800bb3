package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Rule
		wantErr bool
	}{
		{in: "5/1m", want: Rule{Requests: 5, Window: time.Minute}},
		{in: "10/minute", want: Rule{Requests: 10, Window: time.Minute}},
		{in: " 3 / 30s ", want: Rule{Requests: 3, Window: 30 * time.Second}},
		{in: "100/day", want: Rule{Requests: 100, Window: 24 * time.Hour}},
		{in: "5", wantErr: true},
		{in: "0/1m", wantErr: true},
		{in: "x/1m", wantErr: true},
		{in: "5/fortnight", wantErr: true},
		{in: "5/-1m", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRule(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimiter_CeilingPerOrigin(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Rule{Requests: 10, Window: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		assert.True(t, l.AllowAt("1.1.1.1", now), "attempt %d", i+1)
	}
	assert.False(t, l.AllowAt("1.1.1.1", now), "11th attempt in the window")
	assert.True(t, l.AllowAt("2.2.2.2", now), "other origin unaffected")
}

func TestLimiter_RefillsOverWindow(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Rule{Requests: 5, Window: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.True(t, l.AllowAt("k", now))
	}
	require.False(t, l.AllowAt("k", now))

	assert.False(t, l.AllowAt("k", now.Add(5*time.Second)))
	assert.True(t, l.AllowAt("k", now.Add(13*time.Second)), "one slot back after window/N")

	later := now.Add(2 * time.Minute)
	for i := 0; i < 5; i++ {
		assert.True(t, l.AllowAt("k", later))
	}
}

func TestLimiter_Sweep(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Rule{Requests: 1, Window: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l.AllowAt("old", now)
	l.AllowAt("new", now.Add(50*time.Second))
	require.Equal(t, 2, l.Len())

	l.Sweep(now.Add(70 * time.Second))
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Rule{Requests: 20, Window: time.Hour})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(context.Background(), "shared")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, allowed)
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLimiter(rdb, "login", Rule{Requests: 3, Window: time.Minute})
	fixed := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "2.2.2.2")
	require.NoError(t, err)
	assert.True(t, ok)

	fixed = fixed.Add(time.Minute)
	ok, err = l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, ok, "next window starts fresh")
}

func TestRuleUnmarshalText(t *testing.T) {
	t.Parallel()

	var r Rule
	require.NoError(t, r.UnmarshalText([]byte("7/1h")))
	assert.Equal(t, Rule{Requests: 7, Window: time.Hour}, r)
	assert.Error(t, r.UnmarshalText([]byte("nope")))
}
