package collections

import (
	"sort"
	"sync"
	"time"

	"reelstream/models"
)

// snapshotCache holds the single time-boxed result of a full discovery run.
// Replace and clear swap the whole entry under the lock, so readers never
// observe a partially written run.
type snapshotCache struct {
	mu          sync.RWMutex
	collections map[int64]models.Collection
	fetchedAt   time.Time
	ttl         time.Duration
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &snapshotCache{
		collections: make(map[int64]models.Collection),
		ttl:         ttl,
	}
}

func (c *snapshotCache) isValid() bool {
	return c.isValidAt(time.Now())
}

func (c *snapshotCache) isValidAt(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return false
	}
	return now.Sub(c.fetchedAt) < c.ttl
}

func (c *snapshotCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.collections)
}

func (c *snapshotCache) replace(collections map[int64]models.Collection) {
	copied := make(map[int64]models.Collection, len(collections))
	for id, col := range collections {
		copied[id] = col
	}
	c.mu.Lock()
	c.collections = copied
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

func (c *snapshotCache) clear() {
	c.mu.Lock()
	c.collections = make(map[int64]models.Collection)
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// sorted returns the snapshot ordered most members first, name breaking ties.
func (c *snapshotCache) sorted() []models.Collection {
	c.mu.RLock()
	out := make([]models.Collection, 0, len(c.collections))
	for _, col := range c.collections {
		out = append(out, col)
	}
	c.mu.RUnlock()
	sortCollections(out)
	return out
}

func sortCollections(list []models.Collection) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].FilmCount != list[j].FilmCount {
			return list[i].FilmCount > list[j].FilmCount
		}
		return list[i].Name < list[j].Name
	})
}
