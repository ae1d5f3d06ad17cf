// Package cache adds a short-TTL redis layer in front of the version
// registry. Listings are the hot read path; training invalidates the
// affected lineage on publish.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/benchwatch-backend/internal/data/repos/registry"
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/pkg/dbctx"
	"github.com/yungbote/benchwatch-backend/internal/platform/logger"
)

const versionListTTL = 60 * time.Second

// NewRedisClient dials redis and verifies the connection.
func NewRedisClient(addr string) (*goredis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// VersionCache decorates a ModelVersionRepo. Reads that miss or fail in
// redis fall through to the repo; cache errors never fail a request.
type VersionCache struct {
	log  *logger.Logger
	rdb  *goredis.Client
	next registry.ModelVersionRepo
}

func NewVersionCache(baseLog *logger.Logger, rdb *goredis.Client, next registry.ModelVersionRepo) registry.ModelVersionRepo {
	return &VersionCache{
		log:  baseLog.With("service", "VersionCache"),
		rdb:  rdb,
		next: next,
	}
}

func listKey(key types.LineageKey, limit int) string {
	return fmt.Sprintf("bw:versions:%s:%s:%s:%d", key.PumpSeries, key.TestType, key.FileType, limit)
}

func (c *VersionCache) Append(dbc dbctx.Context, row *types.ModelVersion) error {
	if err := c.next.Append(dbc, row); err != nil {
		return err
	}
	c.invalidate(dbc.Ctx, row.Key())
	return nil
}

func (c *VersionCache) GetLatestByKey(dbc dbctx.Context, key types.LineageKey) (*types.ModelVersion, error) {
	return c.next.GetLatestByKey(dbc, key)
}

func (c *VersionCache) GetByKeyAndVersion(dbc dbctx.Context, key types.LineageKey, version int) (*types.ModelVersion, error) {
	return c.next.GetByKeyAndVersion(dbc, key, version)
}

func (c *VersionCache) ListByKey(dbc dbctx.Context, key types.LineageKey, limit int) ([]*types.ModelVersion, error) {
	ck := listKey(key, limit)
	if raw, err := c.rdb.Get(dbc.Ctx, ck).Bytes(); err == nil {
		out := []*types.ModelVersion{}
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			return out, nil
		}
		c.log.Warn("Dropping undecodable cache entry", "key", ck)
		_ = c.rdb.Del(dbc.Ctx, ck).Err()
	}

	out, err := c.next.ListByKey(dbc, key, limit)
	if err != nil {
		return nil, err
	}
	if raw, jerr := json.Marshal(out); jerr == nil {
		if serr := c.rdb.Set(dbc.Ctx, ck, raw, versionListTTL).Err(); serr != nil {
			c.log.Warn("Version list cache write failed", "key", ck, "error", serr)
		}
	}
	return out, nil
}

func (c *VersionCache) invalidate(ctx context.Context, key types.LineageKey) {
	pattern := fmt.Sprintf("bw:versions:%s:%s:%s:*", key.PumpSeries, key.TestType, key.FileType)
	iter := c.rdb.Scan(ctx, 0, pattern, 64).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("Version list cache invalidation failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("Version list cache scan failed", "pattern", pattern, "error", err)
	}
}
