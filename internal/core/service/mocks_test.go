package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

// mockCouponStore enforces the same rules as the real store: a capacity
// limit, at most one coupon per user, and idempotent MarkUsed keyed by order.
type mockCouponStore struct {
	mu         sync.Mutex
	remaining  int
	issued     map[int64]int64 // userID -> couponID
	coupons    map[int64]*domain.Coupon
	nextID     int64
	issueCalls int
	issueErr   error
	markErr    error
}

func newMockCouponStore(capacity int) *mockCouponStore {
	return &mockCouponStore{
		remaining: capacity,
		issued:    make(map[int64]int64),
		coupons:   make(map[int64]*domain.Coupon),
	}
}

func (m *mockCouponStore) IssueCoupon(ctx context.Context, templateID, userID int64, now time.Time) (*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.issueCalls++
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	if m.remaining <= 0 {
		return nil, domain.ErrSoldOut
	}
	if _, ok := m.issued[userID]; ok {
		return nil, domain.ErrAlreadyIssued
	}

	m.remaining--
	m.nextID++
	coupon := &domain.Coupon{
		ID:         m.nextID,
		UserID:     userID,
		TemplateID: templateID,
		Type:       domain.CouponTypeFixed,
		Value:      1000,
		IssuedAt:   now,
		ExpiredAt:  now.Add(24 * time.Hour),
	}
	m.issued[userID] = coupon.ID
	m.coupons[coupon.ID] = coupon
	return copyCoupon(coupon), nil
}

func (m *mockCouponStore) GetCoupon(ctx context.Context, couponID int64) (*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coupon, ok := m.coupons[couponID]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	return copyCoupon(coupon), nil
}

func (m *mockCouponStore) GetUserCoupon(ctx context.Context, couponID, userID int64) (*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coupon, ok := m.coupons[couponID]
	if !ok || coupon.UserID != userID {
		return nil, domain.ErrCouponNotFound
	}
	return copyCoupon(coupon), nil
}

func (m *mockCouponStore) ListUserCoupons(ctx context.Context, userID int64) ([]domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Coupon
	for _, coupon := range m.coupons {
		if coupon.UserID == userID {
			out = append(out, *copyCoupon(coupon))
		}
	}
	return out, nil
}

func (m *mockCouponStore) MarkUsed(ctx context.Context, couponID, userID, orderID int64, usedAt time.Time) (*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return nil, m.markErr
	}

	coupon, ok := m.coupons[couponID]
	if !ok || coupon.UserID != userID {
		return nil, domain.ErrCouponNotFound
	}
	if coupon.UsedAt != nil {
		if coupon.OrderID != nil && *coupon.OrderID == orderID {
			return copyCoupon(coupon), nil
		}
		return nil, domain.ErrCouponUsed
	}
	if usedAt.After(coupon.ExpiredAt) {
		return nil, domain.ErrCouponExpired
	}

	t := usedAt
	coupon.UsedAt = &t
	coupon.OrderID = &orderID
	return copyCoupon(coupon), nil
}

func copyCoupon(c *domain.Coupon) *domain.Coupon {
	cp := *c
	if c.UsedAt != nil {
		t := *c.UsedAt
		cp.UsedAt = &t
	}
	if c.OrderID != nil {
		o := *c.OrderID
		cp.OrderID = &o
	}
	return &cp
}

type mockTemplateCache struct {
	mu          sync.Mutex
	snapshot    domain.TemplateSnapshot
	loadErr     error
	loads       int
	invalidated int
}

func availableSnapshot(templateID int64, remaining int) domain.TemplateSnapshot {
	now := time.Now()
	return domain.TemplateSnapshot{
		TemplateID:     templateID,
		TotalQuantity:  remaining,
		IssuedQuantity: 0,
		StartAt:        now.Add(-time.Hour),
		EndAt:          now.Add(time.Hour),
	}
}

func (m *mockTemplateCache) GetOrLoad(ctx context.Context, templateID int64) (*domain.TemplateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	snapshot := m.snapshot
	return &snapshot, nil
}

func (m *mockTemplateCache) SaveSnapshot(ctx context.Context, template *domain.CouponTemplate) error {
	return nil
}

func (m *mockTemplateCache) Invalidate(ctx context.Context, templateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidated++
	return nil
}

type mockLock struct {
	mu       sync.Mutex
	busy     bool
	acquires int
	releases int
}

type mockUnlocker struct {
	lock *mockLock
}

func (m *mockLock) Acquire(ctx context.Context, key string, wait, lease time.Duration) (port.Unlocker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.acquires++
	if m.busy {
		return nil, domain.ErrLockBusy
	}
	return &mockUnlocker{lock: m}, nil
}

func (u *mockUnlocker) Release(ctx context.Context) error {
	u.lock.mu.Lock()
	defer u.lock.mu.Unlock()

	u.lock.releases++
	return nil
}

type mockUserVerifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockUserVerifier) EnsureUserExists(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	return m.err
}

type mockOutboxStore struct {
	mu     sync.Mutex
	events []domain.OutboxEvent
}

func (m *mockOutboxStore) Insert(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *event)
	return nil
}

func (m *mockOutboxStore) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.OutboxEvent
	for _, event := range m.events {
		if event.Status == domain.OutboxStatusPending {
			out = append(out, event)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockOutboxStore) MarkPublished(ctx context.Context, eventID int64, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID == eventID {
			m.events[i].Status = domain.OutboxStatusPublished
			t := publishedAt
			m.events[i].PublishedAt = &t
			return nil
		}
	}
	return nil
}

func (m *mockOutboxStore) RecordFailure(ctx context.Context, eventID int64, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID == eventID {
			m.events[i].RetryCount++
			m.events[i].LastError = lastError
			if terminal {
				m.events[i].Status = domain.OutboxStatusFailed
			}
			return nil
		}
	}
	return nil
}

func (m *mockOutboxStore) event(eventID int64) (domain.OutboxEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, event := range m.events {
		if event.ID == eventID {
			return event, true
		}
	}
	return domain.OutboxEvent{}, false
}

type mockPublisher struct {
	mu        sync.Mutex
	failures  int
	published []string
}

func (m *mockPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return errBrokerDown
	}
	m.published = append(m.published, key)
	return nil
}

var errBrokerDown = &brokerDownError{}

type brokerDownError struct{}

func (e *brokerDownError) Error() string { return "broker unavailable" }
