package service

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

const templateLockPrefix = "coupon-template:"

type IssueConfig struct {
	LockWait  time.Duration
	LockLease time.Duration
}

// IssueService performs the authoritative issuance. The store's conditional
// update is the correctness gate; the distributed lock only serializes the
// compound section to keep contention off the hot template row.
type IssueService struct {
	store  port.CouponStore
	cache  port.TemplateCache
	lock   port.DistributedLock
	cfg    IssueConfig
	logger zerolog.Logger
}

func NewIssueService(store port.CouponStore, cache port.TemplateCache, lock port.DistributedLock, cfg IssueConfig, logger zerolog.Logger) *IssueService {
	return &IssueService{
		store:  store,
		cache:  cache,
		lock:   lock,
		cfg:    cfg,
		logger: logger.With().Str("component", "issue_service").Logger(),
	}
}

// Issue runs the synchronous path: ledger attempt under the per-template
// lock. Lock timeout surfaces as domain.ErrLockBusy with no side effect.
func (s *IssueService) Issue(ctx context.Context, templateID, userID int64) (*domain.Coupon, error) {
	var coupon *domain.Coupon
	err := s.withLock(ctx, templateLockKey(templateID), func(ctx context.Context) error {
		var err error
		coupon, err = s.store.IssueCoupon(ctx, templateID, userID, time.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, templateID)
	return coupon, nil
}

// IssueWithoutLock is the coordinator worker path. Requests already went
// through the admission queue, so the per-template lock adds nothing; the
// conditional update alone decides the outcome.
func (s *IssueService) IssueWithoutLock(ctx context.Context, templateID, userID int64) (*domain.Coupon, error) {
	coupon, err := s.store.IssueCoupon(ctx, templateID, userID, time.Now())
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, templateID)
	return coupon, nil
}

// withLock is the scoped acquisition helper: the critical section is a
// closure, and release runs on every exit path.
func (s *IssueService) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	handle, err := s.lock.Acquire(ctx, key, s.cfg.LockWait, s.cfg.LockLease)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Release(ctx); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}()

	return fn(ctx)
}

func (s *IssueService) invalidateCache(ctx context.Context, templateID int64) {
	// Shrinks staleness after a confirmed issuance. Deliberately outside the
	// lock and best-effort: a failed invalidate only widens the pre-filter.
	if err := s.cache.Invalidate(ctx, templateID); err != nil {
		s.logger.Warn().Err(err).Int64("template_id", templateID).Msg("failed to invalidate template cache")
	}
}

func templateLockKey(templateID int64) string {
	return templateLockPrefix + strconv.FormatInt(templateID, 10)
}
