package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Deduplicator suppresses repeated alerts through TTL sentinel keys scoped
// by (category, entity). It stores no meaningful data, only presence.
type Deduplicator struct {
	store Store
}

func NewDeduplicator(store Store) *Deduplicator {
	return &Deduplicator{store: store}
}

// ShouldEmit reports whether an alert for (category, entity) may fire now.
// The first call within a window wins and arms the sentinel for the whole
// window. Cache failures fail open: a duplicate alert beats a lost one.
func (d *Deduplicator) ShouldEmit(ctx context.Context, category, entity string, window time.Duration) bool {
	key := fmt.Sprintf("dedup:%s:%s", category, entity)
	ok, err := d.store.SetIfAbsent(ctx, key, []byte("1"), window)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("dedup sentinel write failed")
		return true
	}
	return ok
}

// Reset clears the sentinel so the next ShouldEmit fires immediately. Used
// when the suppressed condition resolves and re-triggers.
func (d *Deduplicator) Reset(ctx context.Context, category, entity string) {
	key := fmt.Sprintf("dedup:%s:%s", category, entity)
	if err := d.store.Delete(ctx, key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("dedup sentinel delete failed")
	}
}
