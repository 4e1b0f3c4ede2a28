package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

const templateCacheKeyPrefix = "coupon:template:"

// RedisTemplateCache keeps a short-TTL availability snapshot per template.
// Snapshots may lag the ledger by up to the TTL; that staleness is accepted
// because every positive is re-checked by the conditional update.
type RedisTemplateCache struct {
	client *redis.Client
	store  port.TemplateStore
	ttl    time.Duration
}

func NewRedisTemplateCache(client *redis.Client, store port.TemplateStore, ttl time.Duration) *RedisTemplateCache {
	return &RedisTemplateCache{client: client, store: store, ttl: ttl}
}

func (c *RedisTemplateCache) GetOrLoad(ctx context.Context, templateID int64) (*domain.TemplateSnapshot, error) {
	key := templateCacheKey(templateID)

	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read template cache: %w", err)
	}
	if len(fields) > 0 {
		snapshot, err := parseSnapshot(templateID, fields)
		if err == nil {
			return snapshot, nil
		}
		// Corrupt entry: fall through and reload from the store.
	}

	template, err := c.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := c.SaveSnapshot(ctx, template); err != nil {
		return nil, err
	}
	snapshot := domain.SnapshotOfTemplate(template)
	return &snapshot, nil
}

func (c *RedisTemplateCache) SaveSnapshot(ctx context.Context, template *domain.CouponTemplate) error {
	key := templateCacheKey(template.ID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"total_quantity":  template.TotalQuantity,
		"issued_quantity": template.IssuedQuantity,
		"start_at":        template.StartAt.UnixMilli(),
		"end_at":          template.EndAt.UnixMilli(),
	})
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write template cache: %w", err)
	}
	return nil
}

func (c *RedisTemplateCache) Invalidate(ctx context.Context, templateID int64) error {
	return c.client.Del(ctx, templateCacheKey(templateID)).Err()
}

func templateCacheKey(templateID int64) string {
	return templateCacheKeyPrefix + strconv.FormatInt(templateID, 10)
}

func parseSnapshot(templateID int64, fields map[string]string) (*domain.TemplateSnapshot, error) {
	total, err := strconv.Atoi(fields["total_quantity"])
	if err != nil {
		return nil, fmt.Errorf("total_quantity: %w", err)
	}
	issued, err := strconv.Atoi(fields["issued_quantity"])
	if err != nil {
		return nil, fmt.Errorf("issued_quantity: %w", err)
	}
	startMillis, err := strconv.ParseInt(fields["start_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("start_at: %w", err)
	}
	endMillis, err := strconv.ParseInt(fields["end_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("end_at: %w", err)
	}
	return &domain.TemplateSnapshot{
		TemplateID:     templateID,
		TotalQuantity:  total,
		IssuedQuantity: issued,
		StartAt:        time.UnixMilli(startMillis),
		EndAt:          time.UnixMilli(endMillis),
	}, nil
}
