// Package revocation keeps tokens that must stop working before they expire.
package revocation

import (
	"context"
	"time"
)

// Registry is safe for concurrent use. Entries are keyed by the token's jti,
// never by its encoded form, which has more than one spelling for the same
// signature. Revoke reports whether this call was the one that recorded the
// id; refresh rotation relies on that to let exactly one of two racing
// requests through.
type Registry interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
