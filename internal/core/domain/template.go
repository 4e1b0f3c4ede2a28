package domain

import "time"

type CouponType string

const (
	CouponTypeFixed   CouponType = "fixed"
	CouponTypePercent CouponType = "percent"
)

type CouponTemplate struct {
	ID             int64
	Name           string
	Type           CouponType
	Value          int64
	TotalQuantity  int
	IssuedQuantity int
	StartAt        time.Time
	EndAt          time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t *CouponTemplate) Remaining() int {
	remaining := t.TotalQuantity - t.IssuedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *CouponTemplate) WithinWindow(now time.Time) bool {
	return !now.Before(t.StartAt) && !now.After(t.EndAt)
}

func (t *CouponTemplate) CanIssue(now time.Time) bool {
	return t.WithinWindow(now) && t.Remaining() > 0
}

// TemplateSnapshot is the short-lived cached view of a template used as a
// pre-filter before the authoritative conditional update. It may be stale;
// a stale "still available" read is rejected later by the ledger.
type TemplateSnapshot struct {
	TemplateID     int64
	TotalQuantity  int
	IssuedQuantity int
	StartAt        time.Time
	EndAt          time.Time
}

func SnapshotOfTemplate(t *CouponTemplate) TemplateSnapshot {
	return TemplateSnapshot{
		TemplateID:     t.ID,
		TotalQuantity:  t.TotalQuantity,
		IssuedQuantity: t.IssuedQuantity,
		StartAt:        t.StartAt,
		EndAt:          t.EndAt,
	}
}

func (s TemplateSnapshot) Remaining() int {
	remaining := s.TotalQuantity - s.IssuedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s TemplateSnapshot) WithinWindow(now time.Time) bool {
	return !now.Before(s.StartAt) && !now.After(s.EndAt)
}

func (s TemplateSnapshot) CanIssue(now time.Time) bool {
	return s.WithinWindow(now) && s.Remaining() > 0
}
