package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

// CommandService handles the VALIDATE / MARK_USED contract used by the
// order flow. Results are derived deterministically from coupon state, so a
// replayed requestId produces an identical result without re-mutating.
type CommandService struct {
	store  port.CouponStore
	logger zerolog.Logger
}

func NewCommandService(store port.CouponStore, logger zerolog.Logger) *CommandService {
	return &CommandService{
		store:  store,
		logger: logger.With().Str("component", "command_service").Logger(),
	}
}

func (s *CommandService) Handle(ctx context.Context, cmd domain.CouponCommand) domain.CouponCommandResult {
	switch cmd.Type {
	case domain.CommandValidate:
		return s.validate(ctx, cmd)
	case domain.CommandMarkUsed:
		return s.markUsed(ctx, cmd)
	default:
		return domain.CouponCommandResult{
			RequestID:    cmd.RequestID,
			Success:      false,
			ErrorCode:    domain.CodeInvalidCommand,
			ErrorMessage: "unknown command type: " + string(cmd.Type),
		}
	}
}

func (s *CommandService) validate(ctx context.Context, cmd domain.CouponCommand) domain.CouponCommandResult {
	// Single clock read applied uniformly for the whole operation.
	now := time.Now()

	coupon, err := s.store.GetUserCoupon(ctx, cmd.CouponID, cmd.UserID)
	if err != nil {
		return s.failure(cmd, err)
	}
	if coupon.IsUsed() {
		return s.failure(cmd, domain.ErrCouponUsed)
	}
	if coupon.IsExpired(now) {
		return s.failure(cmd, domain.ErrCouponExpired)
	}

	return domain.CouponCommandResult{
		RequestID: cmd.RequestID,
		Success:   true,
		Coupon:    domain.SnapshotOfCoupon(coupon),
	}
}

func (s *CommandService) markUsed(ctx context.Context, cmd domain.CouponCommand) domain.CouponCommandResult {
	if cmd.OrderID == nil {
		return domain.CouponCommandResult{
			RequestID:    cmd.RequestID,
			Success:      false,
			ErrorCode:    domain.CodeInvalidCommand,
			ErrorMessage: "MARK_USED requires order_id",
		}
	}

	coupon, err := s.store.MarkUsed(ctx, cmd.CouponID, cmd.UserID, *cmd.OrderID, time.Now())
	if err != nil {
		return s.failure(cmd, err)
	}

	return domain.CouponCommandResult{
		RequestID: cmd.RequestID,
		Success:   true,
		Coupon:    domain.SnapshotOfCoupon(coupon),
	}
}

func (s *CommandService) failure(cmd domain.CouponCommand, err error) domain.CouponCommandResult {
	code := domain.ErrorCode(err)
	if code == domain.CodeInternal {
		s.logger.Error().Err(err).
			Str("request_id", cmd.RequestID).
			Int64("coupon_id", cmd.CouponID).
			Msg("command failed")
	}
	return domain.CouponCommandResult{
		RequestID:    cmd.RequestID,
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
	}
}
