package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

// IssueGate validates preconditions (user existence, template availability)
// and dispatches to the async coordinator or the synchronous ledger path.
// All rejections here happen before any ledger access.
type IssueGate struct {
	users        port.UserVerifier
	cache        port.TemplateCache
	coordinator  *IssueCoordinator
	issuer       *IssueService
	asyncEnabled bool
	logger       zerolog.Logger
}

// IssueOutcome carries exactly one of Coupon (sync path) or Queue (async).
type IssueOutcome struct {
	Coupon *domain.Coupon
	Queue  *QueueResult
}

func NewIssueGate(users port.UserVerifier, cache port.TemplateCache, coordinator *IssueCoordinator, issuer *IssueService, asyncEnabled bool, logger zerolog.Logger) *IssueGate {
	return &IssueGate{
		users:        users,
		cache:        cache,
		coordinator:  coordinator,
		issuer:       issuer,
		asyncEnabled: asyncEnabled,
		logger:       logger.With().Str("component", "issue_gate").Logger(),
	}
}

func (g *IssueGate) RequestIssue(ctx context.Context, templateID, userID int64) (*IssueOutcome, error) {
	if err := g.users.EnsureUserExists(ctx, userID); err != nil {
		return nil, err
	}

	snapshot, err := g.cache.GetOrLoad(ctx, templateID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if !snapshot.WithinWindow(now) {
		return nil, domain.ErrOutsideWindow
	}
	if snapshot.Remaining() <= 0 {
		return nil, domain.ErrSoldOut
	}

	if !g.asyncEnabled {
		coupon, err := g.issuer.Issue(ctx, templateID, userID)
		if err != nil {
			return nil, err
		}
		return &IssueOutcome{Coupon: coupon}, nil
	}

	result := g.coordinator.Enqueue(IssueRequest{TemplateID: templateID, UserID: userID})
	if !result.Accepted {
		return nil, domain.ErrQueueFull
	}
	return &IssueOutcome{Queue: &result}, nil
}
