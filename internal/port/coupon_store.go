package port

import (
	"context"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

type CouponStore interface {
	// IssueCoupon performs the authoritative issuance attempt: the conditional
	// quantity increment and the coupon insert run in one local transaction.
	// Returns domain.ErrSoldOut when the conditional update affects zero rows
	// and domain.ErrAlreadyIssued on a (user_id, template_id) conflict.
	IssueCoupon(ctx context.Context, templateID, userID int64, now time.Time) (*domain.Coupon, error)

	// GetCoupon retrieves a coupon by id, nil error with nil result never occurs.
	GetCoupon(ctx context.Context, couponID int64) (*domain.Coupon, error)

	// GetUserCoupon retrieves a coupon owned by the given user.
	GetUserCoupon(ctx context.Context, couponID, userID int64) (*domain.Coupon, error)

	ListUserCoupons(ctx context.Context, userID int64) ([]domain.Coupon, error)

	// MarkUsed transitions a coupon to used exactly once. Replaying with the
	// orderId it was already used for is a no-op returning the stored coupon;
	// a different orderId returns domain.ErrCouponUsed.
	MarkUsed(ctx context.Context, couponID, userID, orderID int64, usedAt time.Time) (*domain.Coupon, error)
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, templateID int64) (*domain.CouponTemplate, error)

	// UpdateTemplateWindow changes the validity window under an exclusive row
	// read so the compound mutation stays internally consistent.
	UpdateTemplateWindow(ctx context.Context, templateID int64, startAt, endAt time.Time) error
}
