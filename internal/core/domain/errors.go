package domain

import "errors"

var (
	ErrTemplateNotFound = errors.New("coupon template not found")
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrUserNotFound     = errors.New("user not found")

	// ErrSoldOut means the conditional quantity update affected zero rows.
	// It is a normal outcome under contention, not a system failure.
	ErrSoldOut = errors.New("coupon sold out")

	ErrAlreadyIssued = errors.New("coupon already issued to user")
	ErrOutsideWindow = errors.New("outside issuance window")
	ErrCouponExpired = errors.New("coupon expired")
	ErrCouponUsed    = errors.New("coupon already used")

	// ErrUserVerification means the external existence check itself failed,
	// as opposed to the user being unknown.
	ErrUserVerification = errors.New("user verification failed")

	// ErrLockBusy is safe to retry: no side effect has occurred.
	ErrLockBusy = errors.New("lock busy")

	ErrQueueFull = errors.New("issuance queue full")
)

const (
	CodeNotFound       = "NOT_FOUND"
	CodeUserNotFound   = "USER_NOT_FOUND"
	CodeSoldOut        = "SOLD_OUT"
	CodeAlreadyIssued  = "ALREADY_ISSUED"
	CodeOutsideWindow  = "OUTSIDE_WINDOW"
	CodeExpired        = "EXPIRED"
	CodeAlreadyUsed    = "ALREADY_USED"
	CodeVerification   = "VERIFICATION_FAILED"
	CodeLockBusy       = "LOCK_BUSY"
	CodeQueueFull      = "QUEUE_FULL"
	CodeInvalidCommand = "INVALID_COMMAND"
	CodeInternal       = "INTERNAL"
)

// ErrorCode maps a domain error to its wire-level code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTemplateNotFound), errors.Is(err, ErrCouponNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrSoldOut):
		return CodeSoldOut
	case errors.Is(err, ErrAlreadyIssued):
		return CodeAlreadyIssued
	case errors.Is(err, ErrOutsideWindow):
		return CodeOutsideWindow
	case errors.Is(err, ErrCouponExpired):
		return CodeExpired
	case errors.Is(err, ErrCouponUsed):
		return CodeAlreadyUsed
	case errors.Is(err, ErrUserVerification):
		return CodeVerification
	case errors.Is(err, ErrLockBusy):
		return CodeLockBusy
	case errors.Is(err, ErrQueueFull):
		return CodeQueueFull
	default:
		return CodeInternal
	}
}
