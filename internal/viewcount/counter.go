// Package viewcount buffers project page views in Redis so the hot path never
// writes to Postgres. Views are de-duplicated per viewer and flushed in batches.
package viewcount

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// drainScript returns the pending hash and deletes it in one step.
var drainScript = redis.NewScript(`
local v = redis.call("HGETALL", KEYS[1])
redis.call("DEL", KEYS[1])
return v
`)

// ApplyFunc persists delta additional views for a project.
type ApplyFunc func(projectID string, delta int64) error

type Counter struct {
	client    *redis.Client
	prefix    string
	dedupeTTL time.Duration
}

// New returns a counter. Views from the same viewer on the same project count
// once per dedupeTTL; zero disables de-duplication.
func New(client *redis.Client, prefix string, dedupeTTL time.Duration) (*Counter, error) {
	if client == nil {
		return nil, errors.New("view counter redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "portfoliohub:views"
	}
	return &Counter{client: client, prefix: prefix, dedupeTTL: dedupeTTL}, nil
}

func (c *Counter) pendingKey() string { return c.prefix + ":pending" }

// Record buffers one view and reports whether it was counted.
func (c *Counter) Record(ctx context.Context, projectID, viewer string) (bool, error) {
	if projectID == "" {
		return false, errors.New("project id required")
	}
	if c.dedupeTTL > 0 && viewer != "" {
		seenKey := fmt.Sprintf("%s:seen:%s:%s", c.prefix, projectID, viewer)
		fresh, err := c.client.SetNX(ctx, seenKey, 1, c.dedupeTTL).Result()
		if err != nil {
			return false, fmt.Errorf("dedupe view: %w", err)
		}
		if !fresh {
			return false, nil
		}
	}
	if err := c.client.HIncrBy(ctx, c.pendingKey(), projectID, 1).Err(); err != nil {
		return false, fmt.Errorf("buffer view: %w", err)
	}
	return true, nil
}

// Pending returns the buffered, not yet flushed views of a project.
func (c *Counter) Pending(ctx context.Context, projectID string) (int64, error) {
	n, err := c.client.HGet(ctx, c.pendingKey(), projectID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Flush drains the buffer and applies each project's delta. Deltas whose apply
// fails are added back to the buffer for the next flush.
func (c *Counter) Flush(ctx context.Context, apply ApplyFunc) (int, error) {
	raw, err := drainScript.Run(ctx, c.client, []string{c.pendingKey()}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("drain views: %w", err)
	}
	flushed := 0
	var errs []error
	for i := 0; i+1 < len(raw); i += 2 {
		projectID := raw[i]
		delta, perr := strconv.ParseInt(raw[i+1], 10, 64)
		if perr != nil || delta <= 0 {
			continue
		}
		if aerr := apply(projectID, delta); aerr != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", projectID, aerr))
			if rerr := c.client.HIncrBy(ctx, c.pendingKey(), projectID, delta).Err(); rerr != nil {
				errs = append(errs, fmt.Errorf("re-add views for %s: %w", projectID, rerr))
			}
			continue
		}
		flushed++
	}
	return flushed, errors.Join(errs...)
}
