package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// CachedCounter is a Redis read-through cache in front of a Counter. The quota
// check runs inline with every billable request; caching the per-cycle count keeps
// that path off the database for hot tenants.
//
// Redis failures fall through to the underlying counter, and a failure there too
// is the caller's problem; the cache itself never turns a count into an error.
type CachedCounter struct {
	next   Counter
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
}

// NewCachedCounter creates a new CachedCounter. TTL bounds how stale a cached
// count may be; keep it short since an org can cross its quota within the window.
func NewCachedCounter(next Counter, redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedCounter {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedCounter{
		next:   next,
		redis:  redisClient,
		ttl:    ttl,
		prefix: "usage",
		logger: logger,
	}
}

// CountBillableRequests returns the cached count for the window, filling the cache
// from the underlying counter on a miss
func (c *CachedCounter) CountBillableRequests(ctx context.Context, orgID int64, start, end time.Time) (int64, error) {
	key := c.key(orgID, start, end)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		if count, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
			return count, nil
		}
	} else if err != redis.Nil {
		c.logger.WithError(err).WithField("org_id", orgID).Warn("usage cache read failed, falling through to database")
	}

	count, err := c.next.CountBillableRequests(ctx, orgID, start, end)
	if err != nil {
		return 0, err
	}

	if err := c.redis.Set(ctx, key, strconv.FormatInt(count, 10), c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("org_id", orgID).Warn("usage cache write failed")
	}
	return count, nil
}

// InvalidateOrg drops every cached window for the organization. Used after
// recording a request, when the caller does not know which windows are cached.
func (c *CachedCounter) InvalidateOrg(ctx context.Context, orgID int64) {
	pattern := fmt.Sprintf("%s:%d:*", c.prefix, orgID)
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil && err != redis.Nil {
			c.logger.WithError(err).WithField("org_id", orgID).Warn("usage cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).WithField("org_id", orgID).Warn("usage cache scan failed")
	}
}

func (c *CachedCounter) key(orgID int64, start, end time.Time) string {
	return fmt.Sprintf("%s:%d:%s:%s", c.prefix, orgID, start.Format("20060102"), end.Format("20060102"))
}
