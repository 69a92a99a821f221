package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorWindow(t *testing.T) {
	ctx := context.Background()
	m, clock := frozenMemory(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	d := NewDeduplicator(m)

	assert.True(t, d.ShouldEmit(ctx, "reorder", "item-1", time.Hour), "first emission wins")
	assert.False(t, d.ShouldEmit(ctx, "reorder", "item-1", time.Hour), "repeat inside window suppressed")

	// Different entity and category are independent.
	assert.True(t, d.ShouldEmit(ctx, "reorder", "item-2", time.Hour))
	assert.True(t, d.ShouldEmit(ctx, "spike", "item-1", time.Hour))

	*clock = clock.Add(61 * time.Minute)
	assert.True(t, d.ShouldEmit(ctx, "reorder", "item-1", time.Hour), "window elapsed, may fire again")
}

func TestDeduplicatorReset(t *testing.T) {
	ctx := context.Background()
	d := NewDeduplicator(NewMemory())

	assert.True(t, d.ShouldEmit(ctx, "reorder", "item-1", time.Hour))
	d.Reset(ctx, "reorder", "item-1")
	assert.True(t, d.ShouldEmit(ctx, "reorder", "item-1", time.Hour))
}

type failingStore struct {
	Store
}

func (failingStore) SetIfAbsent(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("cache down")
}

func TestDeduplicatorFailsOpen(t *testing.T) {
	d := NewDeduplicator(failingStore{})
	assert.True(t, d.ShouldEmit(context.Background(), "reorder", "item-1", time.Hour),
		"cache errors must not swallow alerts")
}
