package port

import (
	"context"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

// TemplateCache is a short-TTL pre-filter over template availability. It may
// serve stale "still available" snapshots; the store's conditional update is
// the final gate.
type TemplateCache interface {
	GetOrLoad(ctx context.Context, templateID int64) (*domain.TemplateSnapshot, error)

	SaveSnapshot(ctx context.Context, template *domain.CouponTemplate) error

	// Invalidate is called after a confirmed issuance to shrink staleness.
	Invalidate(ctx context.Context, templateID int64) error
}
