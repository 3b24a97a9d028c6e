package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryDedup — dedup-кэш в памяти процесса.
// Подходит для одной реплики воркера.
type MemoryDedup struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemoryDedup создаёт кэш с заданным TTL.
// Просроченные записи вычищаются раз в ttl/2.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &MemoryDedup{
		cache: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

// Seen реализует Dedup.
func (d *MemoryDedup) Seen(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	_, found := d.cache.Get(id)
	return found, nil
}

// MarkProcessed реализует Dedup.
func (d *MemoryDedup) MarkProcessed(_ context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	d.cache.Set(id, struct{}{}, d.ttl)
	return nil
}

// Len возвращает количество непросроченных записей.
func (d *MemoryDedup) Len() int {
	return d.cache.ItemCount()
}
