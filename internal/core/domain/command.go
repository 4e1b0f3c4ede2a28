package domain

import "time"

type CouponCommandType string

const (
	CommandValidate CouponCommandType = "VALIDATE"
	CommandMarkUsed CouponCommandType = "MARK_USED"
)

// CouponCommand is the cross-service wire contract for coupon checks during
// the order flow. RequestID is the idempotency key correlating command and
// result end to end.
type CouponCommand struct {
	RequestID string            `json:"request_id"`
	Type      CouponCommandType `json:"type"`
	CouponID  int64             `json:"coupon_id"`
	UserID    int64             `json:"user_id"`
	OrderID   *int64            `json:"order_id,omitempty"`
}

type CouponCommandResult struct {
	RequestID    string          `json:"request_id"`
	Success      bool            `json:"success"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Coupon       *CouponSnapshot `json:"coupon,omitempty"`
}

type CouponSnapshot struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	TemplateID int64      `json:"template_id"`
	Type       CouponType `json:"type"`
	Value      int64      `json:"value"`
	IssuedAt   time.Time  `json:"issued_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ExpiredAt  time.Time  `json:"expired_at"`
	OrderID    *int64     `json:"order_id,omitempty"`
}

func SnapshotOfCoupon(c *Coupon) *CouponSnapshot {
	return &CouponSnapshot{
		ID:         c.ID,
		UserID:     c.UserID,
		TemplateID: c.TemplateID,
		Type:       c.Type,
		Value:      c.Value,
		IssuedAt:   c.IssuedAt,
		UsedAt:     c.UsedAt,
		ExpiredAt:  c.ExpiredAt,
		OrderID:    c.OrderID,
	}
}
