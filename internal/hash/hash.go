package hash

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/Skotchmaster/lookaly/internal/domain"
)

// MaxPasswordBytes is where bcrypt stops reading its input.
const MaxPasswordBytes = 72

var (
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
	ErrPasswordEncoding = errors.New("password is not valid UTF-8")
)

// Hasher wraps bcrypt and bounds how many hashes run at once, so a burst of
// logins cannot take every CPU away from the rest of the server.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	decoyOnce sync.Once
	decoy     []byte
}

func New(cost, concurrency int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range [%d,%d]", domain.ErrConfiguration, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(concurrency))}, nil
}

func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	// Verify refuses such input, so the hash could never be matched.
	if !utf8.ValidString(password) {
		return "", ErrPasswordEncoding
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Verify never returns an error: a corrupt hash, an oversized or non UTF-8
// password and a cancelled context all read as a mismatch.
func (h *Hasher) Verify(ctx context.Context, password, hashed string) bool {
	if hashed == "" || len(password) > MaxPasswordBytes || !utf8.ValidString(password) {
		return false
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// Burn spends one verification worth of work against a throwaway hash. Login
// calls it for unknown emails so response time does not reveal them.
func (h *Hasher) Burn(ctx context.Context, password string) {
	h.decoyOnce.Do(func() {
		h.decoy, _ = bcrypt.GenerateFromPassword([]byte("decoy-password"), h.cost)
	})
	if h.decoy == nil {
		return
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer h.sem.Release(1)
	_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(password))
}

// Unusable hashes random bytes led by 0xff. That byte never occurs in UTF-8
// and Verify refuses non UTF-8 input, so nothing a user types can match.
func (h *Hasher) Unusable(ctx context.Context) (string, error) {
	raw := make([]byte, MaxPasswordBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	raw[0] = 0xff
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword(raw, h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}
