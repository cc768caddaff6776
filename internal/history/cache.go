package history

import (
	"sync"

	"github.com/shohag/aptnotify/internal/models"
)

// Cache keeps the most recent dispatch records in memory, newest first. One
// Cache is owned by the application and shared by reference.
type Cache struct {
	mu       sync.RWMutex
	records  []models.DispatchRecord
	capacity int
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{capacity: capacity}
}

func (c *Cache) Add(rec models.DispatchRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append([]models.DispatchRecord{rec}, c.records...)
	if len(c.records) > c.capacity {
		c.records = c.records[:c.capacity]
	}
}

// Replace swaps the contents for recs, which must already be newest first.
func (c *Cache) Replace(recs []models.DispatchRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(recs) > c.capacity {
		recs = recs[:c.capacity]
	}
	c.records = append([]models.DispatchRecord(nil), recs...)
}

// Recent returns up to n records; n <= 0 means all.
func (c *Cache) Recent(n int) []models.DispatchRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.records) {
		n = len(c.records)
	}
	out := make([]models.DispatchRecord, n)
	copy(out, c.records[:n])
	return out
}

func (c *Cache) Get(id string) (models.DispatchRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, rec := range c.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.DispatchRecord{}, false
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
