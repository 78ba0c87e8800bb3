package revocation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/lookaly/internal/models"
)

// Database keeps revocations in the accounts database, for deployments that
// have several processes but no Redis.
type Database struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db, now: time.Now}
}

func (d *Database) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	if !expiresAt.After(d.now()) {
		return true, nil
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RevokedToken{TokenID: tokenID, ExpiresAt: expiresAt.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("insert revoked token: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (d *Database) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&models.RevokedToken{}).
		Where("token_id = ?", tokenID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count revoked token: %w", err)
	}
	return n > 0, nil
}

// Purge deletes rows for tokens that have expired and returns how many went.
func (d *Database) Purge(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("expires_at <= ?", d.now().UTC()).
		Delete(&models.RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Run purges on every tick until ctx is done.
func (d *Database) Run(ctx context.Context, interval time.Duration, onErr func(error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := d.Purge(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
