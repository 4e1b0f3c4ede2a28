package domain

import "time"

// OrderPaidEvent crosses the service boundary through the outbox. The
// partition key is the order id, so only same-order ordering is meaningful.
type OrderPaidEvent struct {
	OrderID        int64               `json:"order_id"`
	UserID         int64               `json:"user_id"`
	TotalAmount    int64               `json:"total_amount"`
	DiscountAmount int64               `json:"discount_amount"`
	PaidAt         time.Time           `json:"paid_at"`
	Items          []OrderPaidLineItem `json:"items"`
	CouponIDs      []int64             `json:"coupon_ids,omitempty"`
}

type OrderPaidLineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
	Subtotal  int64 `json:"subtotal"`
}
