package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CachedDirectory keeps the last good snapshot for a short TTL. Failed
// fetches are never cached.
type CachedDirectory struct {
	next         Directory
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	sfg          singleflight.Group // collapses concurrent refreshes

	mu        sync.RWMutex
	snapshot  []domain.Medicine
	fetchedAt time.Time
}

func NewCachedDirectory(next Directory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, ttl: ttl, fetchTimeout: defaultFetchTimeout, now: time.Now}
}

const defaultFetchTimeout = 10 * time.Second

func (c *CachedDirectory) All(ctx context.Context) ([]domain.Medicine, error) {
	if meds, ok := c.fresh(); ok {
		return meds, nil
	}

	v, err, _ := c.sfg.Do("all", func() (interface{}, error) {
		if meds, ok := c.fresh(); ok {
			return meds, nil
		}
		// the fetch is shared, so one caller going away must not fail the rest
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		meds, err := c.next.All(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.snapshot = meds
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return meds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Medicine), nil
}

func (c *CachedDirectory) fresh() ([]domain.Medicine, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.snapshot, true
}
