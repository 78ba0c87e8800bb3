package revocation

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is the single-process registry. A restart forgets every entry, so
// deployments with more than one process must use Redis or Database.
type Memory struct {
	c   *cache.Cache
	now func() time.Time
}

func NewMemory(cleanupInterval time.Duration) *Memory {
	return &Memory{
		c:   cache.New(cache.NoExpiration, cleanupInterval),
		now: time.Now,
	}
}

func (m *Memory) Revoke(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(m.now())
	if ttl <= 0 {
		// Already past exp; signature checks reject it without our help.
		return true, nil
	}
	if err := m.c.Add(tokenID, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, found := m.c.Get(tokenID)
	return found, nil
}

// Purge drops entries whose token has expired. The cache janitor does the same
// on its own schedule.
func (m *Memory) Purge() {
	m.c.DeleteExpired()
}

func (m *Memory) Len() int {
	return m.c.ItemCount()
}
