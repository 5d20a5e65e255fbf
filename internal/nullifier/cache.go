package nullifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	id "idserver/pkg/domain"
	"idserver/pkg/platform/sentinel"
)

// Store persists records. FindRecent ignores rows created before since.
// Insert fails with sentinel.ErrConflict when a row created after
// staleBefore already holds the nullifier; rows at or before it are replaced,
// matching the exclusive upper bound of Lookup.
type Store interface {
	FindRecent(ctx context.Context, nullifier string, since time.Time) (*Record, error)
	Insert(ctx context.Context, rec *Record, staleBefore time.Time) error
}

// Cache applies the replay window on top of a Store.
type Cache struct {
	store  Store
	window time.Duration
}

func NewCache(store Store, window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Cache{store: store, window: window}
}

// Window returns the configured replay window.
func (c *Cache) Window() time.Duration { return c.window }

// Lookup returns the live record for n, or (nil, nil) on a miss.
func (c *Cache) Lookup(ctx context.Context, n id.IssuanceNullifier, now time.Time) (*Record, error) {
	rec, err := c.store.FindRecent(ctx, n.String(), now.Add(-c.window))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup nullifier: %w", err)
	}
	if !rec.LiveAt(now, c.window) {
		return nil, nil
	}
	return rec, nil
}

// Record stores rec. If a live row already exists for the same nullifier
// (a concurrent issuance won), that row is returned instead and stored
// reports false.
func (c *Cache) Record(ctx context.Context, rec *Record, now time.Time) (stored *Record, inserted bool, err error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	cutoff := now.Add(-c.window)
	err = c.store.Insert(ctx, rec, cutoff)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return nil, false, fmt.Errorf("record nullifier: %w", err)
	}
	existing, err := c.store.FindRecent(ctx, rec.IssuanceNullifier, cutoff)
	if err != nil {
		return nil, false, fmt.Errorf("load existing nullifier: %w", err)
	}
	return existing, false, nil
}
