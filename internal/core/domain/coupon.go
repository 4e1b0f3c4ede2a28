package domain

import "time"

// Coupon is a single issued coupon. Expiry is a derived read-time fact from
// ExpiredAt; there is no stored EXPIRED state and no background sweep.
type Coupon struct {
	ID         int64
	UserID     int64
	TemplateID int64
	Type       CouponType
	Value      int64
	IssuedAt   time.Time
	UsedAt     *time.Time
	ExpiredAt  time.Time
	OrderID    *int64
}

func (c *Coupon) IsUsed() bool {
	return c.UsedAt != nil
}

func (c *Coupon) IsExpired(now time.Time) bool {
	return now.After(c.ExpiredAt)
}
