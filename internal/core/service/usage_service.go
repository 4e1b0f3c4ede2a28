package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

// UsageService consumes OrderPaidEvent deliveries. The broker is
// at-least-once, so processing is idempotent keyed by orderId: marking a
// coupon used again for the same order is a quiet no-op.
type UsageService struct {
	store  port.CouponStore
	logger zerolog.Logger
}

func NewUsageService(store port.CouponStore, logger zerolog.Logger) *UsageService {
	return &UsageService{
		store:  store,
		logger: logger.With().Str("component", "usage_service").Logger(),
	}
}

func (s *UsageService) HandleOrderPaid(ctx context.Context, event domain.OrderPaidEvent) error {
	for _, couponID := range event.CouponIDs {
		_, err := s.store.MarkUsed(ctx, couponID, event.UserID, event.OrderID, event.PaidAt)
		switch {
		case err == nil:
			// Either freshly marked or a same-order redelivery.
		case errors.Is(err, domain.ErrCouponNotFound):
			s.logger.Warn().Int64("coupon_id", couponID).Int64("order_id", event.OrderID).
				Msg("paid order references unknown coupon")
		case errors.Is(err, domain.ErrCouponUsed):
			s.logger.Warn().Int64("coupon_id", couponID).Int64("order_id", event.OrderID).
				Msg("coupon already used by a different order")
		case errors.Is(err, domain.ErrCouponExpired):
			s.logger.Warn().Int64("coupon_id", couponID).Int64("order_id", event.OrderID).
				Msg("paid order references expired coupon")
		default:
			return err
		}
	}
	return nil
}
