package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/core/service"
	"github.com/flashmart/coupon-service/internal/port"
)

type stubCouponStore struct {
	mu      sync.Mutex
	nextID  int64
	coupons map[int64]*domain.Coupon
}

func newStubCouponStore() *stubCouponStore {
	return &stubCouponStore{coupons: make(map[int64]*domain.Coupon)}
}

func (s *stubCouponStore) IssueCoupon(ctx context.Context, templateID, userID int64, now time.Time) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	coupon := &domain.Coupon{
		ID:         s.nextID,
		UserID:     userID,
		TemplateID: templateID,
		Type:       domain.CouponTypeFixed,
		Value:      1000,
		IssuedAt:   now,
		ExpiredAt:  now.Add(24 * time.Hour),
	}
	s.coupons[coupon.ID] = coupon
	return coupon, nil
}

func (s *stubCouponStore) GetCoupon(ctx context.Context, couponID int64) (*domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, ok := s.coupons[couponID]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (s *stubCouponStore) GetUserCoupon(ctx context.Context, couponID, userID int64) (*domain.Coupon, error) {
	coupon, err := s.GetCoupon(ctx, couponID)
	if err != nil || coupon.UserID != userID {
		return nil, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (s *stubCouponStore) ListUserCoupons(ctx context.Context, userID int64) ([]domain.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Coupon
	for _, coupon := range s.coupons {
		if coupon.UserID == userID {
			out = append(out, *coupon)
		}
	}
	return out, nil
}

func (s *stubCouponStore) MarkUsed(ctx context.Context, couponID, userID, orderID int64, usedAt time.Time) (*domain.Coupon, error) {
	coupon, err := s.GetUserCoupon(ctx, couponID, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coupon.UsedAt = &usedAt
	coupon.OrderID = &orderID
	return coupon, nil
}

type stubTemplateCache struct{}

func (stubTemplateCache) GetOrLoad(ctx context.Context, templateID int64) (*domain.TemplateSnapshot, error) {
	now := time.Now()
	return &domain.TemplateSnapshot{
		TemplateID:    templateID,
		TotalQuantity: 100,
		StartAt:       now.Add(-time.Hour),
		EndAt:         now.Add(time.Hour),
	}, nil
}

func (stubTemplateCache) SaveSnapshot(ctx context.Context, template *domain.CouponTemplate) error {
	return nil
}

func (stubTemplateCache) Invalidate(ctx context.Context, templateID int64) error {
	return nil
}

type stubLock struct{}

func (stubLock) Acquire(ctx context.Context, key string, wait, lease time.Duration) (port.Unlocker, error) {
	return stubUnlocker{}, nil
}

type stubUnlocker struct{}

func (stubUnlocker) Release(ctx context.Context) error { return nil }

type stubVerifier struct{}

func (stubVerifier) EnsureUserExists(ctx context.Context, userID int64) error { return nil }

func newTestHandler(t *testing.T, async bool) (*HTTPHandler, *service.IssueCoordinator, *stubCouponStore) {
	t.Helper()

	store := newStubCouponStore()
	cache := stubTemplateCache{}
	svc := service.NewIssueService(store, cache, stubLock{}, service.IssueConfig{
		LockWait:  time.Second,
		LockLease: time.Second,
	}, zerolog.Nop())
	coordinator := service.NewIssueCoordinator(svc, cache, 100, 2, zerolog.Nop())
	gate := service.NewIssueGate(stubVerifier{}, cache, coordinator, svc, async, zerolog.Nop())
	commands := service.NewCommandService(store, zerolog.Nop())
	return NewHTTPHandler(gate, coordinator, commands, store), coordinator, store
}

func TestIssue_SyncReturnsCoupon(t *testing.T) {
	h, _, _ := newTestHandler(t, false)

	body, _ := json.Marshal(IssueHTTPRequest{TemplateID: 1, UserID: 100})
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/issue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp IssueHTTPResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Coupon == nil || resp.Coupon.TemplateID != 1 {
		t.Errorf("expected coupon in response, got %+v", resp)
	}
}

func TestIssueStatus_IncludesCouponDetail(t *testing.T) {
	h, coordinator, _ := newTestHandler(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		coordinator.Start(ctx)
	}()
	t.Cleanup(func() {
		coordinator.Close()
		cancel()
		<-done
	})

	body, _ := json.Marshal(IssueHTTPRequest{TemplateID: 1, UserID: 100})
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/issue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var issueResp IssueHTTPResponse
	json.Unmarshal(rec.Body.Bytes(), &issueResp)
	if issueResp.RequestID == "" {
		t.Fatal("expected request id in queued response")
	}

	// Poll until the ticket settles; an issued ticket carries coupon detail.
	deadline := time.Now().Add(2 * time.Second)
	for {
		statusReq := httptest.NewRequest(http.MethodGet,
			"/api/coupons/issue/status?request_id="+issueResp.RequestID, nil)
		statusRec := httptest.NewRecorder()
		h.IssueStatus(statusRec, statusReq)
		if statusRec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", statusRec.Code)
		}

		var ticket TicketHTTPResponse
		json.Unmarshal(statusRec.Body.Bytes(), &ticket)
		if ticket.Status == "issued" {
			if ticket.Coupon == nil {
				t.Fatal("expected coupon detail on issued ticket")
			}
			if ticket.Coupon.ID != ticket.CouponID {
				t.Errorf("expected coupon %d, got %d", ticket.CouponID, ticket.Coupon.ID)
			}
			return
		}
		if ticket.Status == "rejected" {
			t.Fatalf("unexpected rejection: %s", ticket.ErrorCode)
		}
		if time.Now().After(deadline) {
			t.Fatal("ticket did not settle in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListCoupons(t *testing.T) {
	h, _, store := newTestHandler(t, false)
	store.IssueCoupon(context.Background(), 1, 100, time.Now())
	store.IssueCoupon(context.Background(), 2, 100, time.Now())
	store.IssueCoupon(context.Background(), 1, 200, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/coupons?user_id=100", nil)
	rec := httptest.NewRecorder()
	h.ListCoupons(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var coupons []*CouponResponse
	json.Unmarshal(rec.Body.Bytes(), &coupons)
	if len(coupons) != 2 {
		t.Errorf("expected 2 coupons for user 100, got %d", len(coupons))
	}
}
