package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"dompet/internal/core"
	"dompet/internal/report"

	"golang.org/x/sync/singleflight"
)

// ReportKey identifies one computed report. Today is part of the key because
// the quick ranges depend on it.
type ReportKey struct {
	OwnerID string
	Today   core.Date
	Start   core.Date
	End     core.Date
}

// keySep cannot appear in an HTTP header value.
const keySep = "\x00"

func (k ReportKey) String() string {
	return strings.Join([]string{k.OwnerID, k.Today.String(), k.Start.String(), k.End.String()}, keySep)
}

// ReportCache holds built reports and collapses concurrent builds of the
// same key into one.
type ReportCache struct {
	lru   *LRUCache[*report.Report]
	group singleflight.Group
	// generation changes on every invalidation so a build that raced with a
	// ledger write is not stored.
	generation atomic.Uint64
}

func NewReportCache(size int, ttl time.Duration) *ReportCache {
	return &ReportCache{lru: NewLRUCache[*report.Report](size, ttl)}
}

// GetOrBuild returns the cached report for key or runs build once for all
// concurrent callers. The second result reports a cache hit.
//
// build runs on a context that keeps ctx's values but not its cancellation.
// Each caller stops waiting when its own ctx is done.
func (c *ReportCache) GetOrBuild(ctx context.Context, key ReportKey, build func(ctx context.Context) (*report.Report, error)) (*report.Report, bool, error) {
	k := key.String()
	if r, ok := c.lru.Get(k); ok {
		return r, true, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		gen := c.generation.Load()
		r, err := build(buildCtx)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.lru.Set(k, r)
		}
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*report.Report), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InvalidateOwner drops reports that can include ownerID's records: the
// owner's own and the unscoped ones.
func (c *ReportCache) InvalidateOwner(ownerID string) int {
	c.generation.Add(1)
	return c.lru.DeleteFunc(func(key string) bool {
		owner, _, _ := strings.Cut(key, keySep)
		return owner == "" || owner == ownerID
	})
}

func (c *ReportCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *ReportCache) Size() int {
	return c.lru.Size()
}
