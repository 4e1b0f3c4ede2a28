package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/core/service"
	"github.com/flashmart/coupon-service/internal/port"
)

type HTTPHandler struct {
	gate        *service.IssueGate
	coordinator *service.IssueCoordinator
	coupons     *service.CommandService
	store       port.CouponStore
}

func NewHTTPHandler(gate *service.IssueGate, coordinator *service.IssueCoordinator, coupons *service.CommandService, store port.CouponStore) *HTTPHandler {
	return &HTTPHandler{gate: gate, coordinator: coordinator, coupons: coupons, store: store}
}

type IssueHTTPRequest struct {
	TemplateID int64 `json:"template_id"`
	UserID     int64 `json:"user_id"`
}

type IssueHTTPResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Coupon    *CouponResponse `json:"coupon,omitempty"`
}

type CouponResponse struct {
	ID         int64  `json:"id"`
	TemplateID int64  `json:"template_id"`
	Type       string `json:"type"`
	Value      int64  `json:"value"`
	IssuedAt   string `json:"issued_at"`
	ExpiredAt  string `json:"expired_at"`
	UsedAt     string `json:"used_at,omitempty"`
	OrderID    int64  `json:"order_id,omitempty"`
}

type TicketHTTPResponse struct {
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	CouponID  int64           `json:"coupon_id,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Coupon    *CouponResponse `json:"coupon,omitempty"`
}

func (h *HTTPHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IssueHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, IssueHTTPResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.TemplateID <= 0 || req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, IssueHTTPResponse{Success: false, Message: "missing required fields"})
		return
	}

	outcome, err := h.gate.RequestIssue(r.Context(), req.TemplateID, req.UserID)
	if err != nil {
		status, message := issueErrorStatus(err)
		writeJSON(w, status, IssueHTTPResponse{
			Success:   false,
			Message:   message,
			ErrorCode: domain.ErrorCode(err),
		})
		return
	}

	if outcome.Queue != nil {
		writeJSON(w, http.StatusAccepted, IssueHTTPResponse{
			Success:   true,
			Message:   "issuance request queued",
			RequestID: outcome.Queue.RequestID,
		})
		return
	}

	writeJSON(w, http.StatusOK, IssueHTTPResponse{
		Success: true,
		Message: "coupon issued",
		Coupon:  couponResponse(outcome.Coupon),
	})
}

func (h *HTTPHandler) IssueStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}

	ticket, ok := h.coordinator.Status(requestID)
	if !ok {
		http.Error(w, "unknown request id", http.StatusNotFound)
		return
	}

	resp := TicketHTTPResponse{
		RequestID: ticket.RequestID,
		Status:    string(ticket.Status),
		CouponID:  ticket.CouponID,
		ErrorCode: ticket.ErrorCode,
	}
	if ticket.Status == service.TicketIssued {
		// Best effort: the ticket already carries the coupon id.
		if coupon, err := h.store.GetCoupon(r.Context(), ticket.CouponID); err == nil {
			resp.Coupon = couponResponse(coupon)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd domain.CouponCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := h.coupons.Handle(r.Context(), cmd)
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	coupons, err := h.store.ListUserCoupons(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	responses := make([]*CouponResponse, 0, len(coupons))
	for i := range coupons {
		responses = append(responses, couponResponse(&coupons[i]))
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func issueErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusNotFound, "coupon template not found"
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrSoldOut):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrAlreadyIssued):
		return http.StatusConflict, "already issued"
	case errors.Is(err, domain.ErrOutsideWindow):
		return http.StatusConflict, "outside issuance window"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusTooManyRequests, "issuance queue full, retry later"
	case errors.Is(err, domain.ErrLockBusy):
		return http.StatusServiceUnavailable, "busy, retry later"
	case errors.Is(err, domain.ErrUserVerification):
		return http.StatusBadGateway, "user verification failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func couponResponse(c *domain.Coupon) *CouponResponse {
	resp := &CouponResponse{
		ID:         c.ID,
		TemplateID: c.TemplateID,
		Type:       string(c.Type),
		Value:      c.Value,
		IssuedAt:   c.IssuedAt.Format(time.RFC3339),
		ExpiredAt:  c.ExpiredAt.Format(time.RFC3339),
	}
	if c.UsedAt != nil {
		resp.UsedAt = c.UsedAt.Format(time.RFC3339)
	}
	if c.OrderID != nil {
		resp.OrderID = *c.OrderID
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
