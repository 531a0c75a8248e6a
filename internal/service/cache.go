package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"fidera/internal/domain"
)

// fileCache хранит LRU записей в статусе STORED для чтения по id.
// Такая запись не меняется до наступления expires_at, а просроченность
// проверяется по часам на каждом чтении, поэтому инвалидация не нужна.
type fileCache struct {
	lru *expirable.LRU[uuid.UUID, domain.File]
}

// newFileCache возвращает nil при size <= 0, nil-кэш ничего не хранит
func newFileCache(size int, ttl time.Duration) *fileCache {
	if size <= 0 {
		return nil
	}
	return &fileCache{lru: expirable.NewLRU[uuid.UUID, domain.File](size, nil, ttl)}
}

func (c *fileCache) get(id uuid.UUID) (*domain.File, bool) {
	if c == nil {
		return nil, false
	}
	file, ok := c.lru.Get(id)
	if !ok {
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	cacheLookupsTotal.WithLabelValues("hit").Inc()
	return &file, true
}

func (c *fileCache) put(file *domain.File) {
	if c == nil || file.Status != domain.StatusStored {
		return
	}
	c.lru.Add(file.UUID, *file)
}

func (c *fileCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
