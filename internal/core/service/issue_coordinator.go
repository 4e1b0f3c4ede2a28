package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flashmart/coupon-service/internal/core/domain"
	"github.com/flashmart/coupon-service/internal/port"
)

type TicketStatus string

const (
	TicketQueued     TicketStatus = "queued"
	TicketProcessing TicketStatus = "processing"
	TicketIssued     TicketStatus = "issued"
	TicketRejected   TicketStatus = "rejected"
)

// Resolved tickets stay queryable for one retention window, then a periodic
// sweep evicts them. The registry is bounded by the queue depth plus one
// window of resolutions.
const (
	ticketRetention     = 5 * time.Minute
	ticketSweepInterval = time.Minute
)

type IssueRequest struct {
	TemplateID int64
	UserID     int64
}

type QueueResult struct {
	RequestID string
	Accepted  bool
}

// Ticket tracks one queued issuance request until it resolves. Tickets live
// only in memory; the coupon row is the durable record.
type Ticket struct {
	RequestID   string
	TemplateID  int64
	UserID      int64
	SubmittedAt time.Time
	ResolvedAt  time.Time
	Status      TicketStatus
	CouponID    int64
	ErrorCode   string
}

type couponIssuer interface {
	IssueWithoutLock(ctx context.Context, templateID, userID int64) (*domain.Coupon, error)
}

// IssueCoordinator decouples client latency from ledger contention: a
// bounded admission channel rejects excess load immediately, and a worker
// pool performs the authoritative attempts.
type IssueCoordinator struct {
	issuer  couponIssuer
	cache   port.TemplateCache
	queue   chan *Ticket
	workers int
	logger  zerolog.Logger

	mu      sync.RWMutex
	tickets map[string]*Ticket
	closed  bool

	closeOnce sync.Once
}

func NewIssueCoordinator(issuer couponIssuer, cache port.TemplateCache, queueSize, workers int, logger zerolog.Logger) *IssueCoordinator {
	return &IssueCoordinator{
		issuer:  issuer,
		cache:   cache,
		queue:   make(chan *Ticket, queueSize),
		workers: workers,
		logger:  logger.With().Str("component", "issue_coordinator").Logger(),
		tickets: make(map[string]*Ticket),
	}
}

// Enqueue admits the request into the bounded channel. A full channel means
// immediate rejection with Accepted=false, never buffering or blocking.
func (c *IssueCoordinator) Enqueue(req IssueRequest) QueueResult {
	ticket := &Ticket{
		RequestID:   uuid.NewString(),
		TemplateID:  req.TemplateID,
		UserID:      req.UserID,
		SubmittedAt: time.Now(),
		Status:      TicketQueued,
	}

	// The send happens under the mutex so Close can never race it into a
	// closed channel.
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return QueueResult{RequestID: ticket.RequestID, Accepted: false}
	}

	select {
	case c.queue <- ticket:
		c.tickets[ticket.RequestID] = ticket
		return QueueResult{RequestID: ticket.RequestID, Accepted: true}
	default:
		return QueueResult{RequestID: ticket.RequestID, Accepted: false}
	}
}

// Status returns a copy of the ticket for the given request id.
func (c *IssueCoordinator) Status(requestID string) (Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ticket, ok := c.tickets[requestID]
	if !ok {
		return Ticket{}, false
	}
	return *ticket, true
}

// Start runs the worker pool until the context is cancelled or the queue is
// closed and drained.
func (c *IssueCoordinator) Start(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go c.sweepLoop(sweepCtx)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			return c.workerLoop(ctx)
		})
	}
	return g.Wait()
}

// Close stops admission; workers drain what was already accepted. Enqueue
// calls after Close are rejected, never a panic.
func (c *IssueCoordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.queue)
	})
}

func (c *IssueCoordinator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictResolved(time.Now())
		}
	}
}

// evictResolved drops tickets that settled at least one retention window
// before now. Unresolved tickets are never evicted.
func (c *IssueCoordinator) evictResolved(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for requestID, ticket := range c.tickets {
		if ticket.ResolvedAt.IsZero() {
			continue
		}
		if now.Sub(ticket.ResolvedAt) >= ticketRetention {
			delete(c.tickets, requestID)
		}
	}
}

func (c *IssueCoordinator) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ticket, ok := <-c.queue:
			if !ok {
				return nil
			}
			c.process(ctx, ticket)
		}
	}
}

func (c *IssueCoordinator) process(ctx context.Context, ticket *Ticket) {
	c.setStatus(ticket, TicketProcessing)

	// Cheap pre-filter against the cache. False positives fall through to
	// the ledger; a stale negative only costs the requester a retry.
	snapshot, err := c.cache.GetOrLoad(ctx, ticket.TemplateID)
	if err != nil {
		c.reject(ticket, err)
		return
	}
	now := time.Now()
	if !snapshot.CanIssue(now) {
		if !snapshot.WithinWindow(now) {
			c.reject(ticket, domain.ErrOutsideWindow)
		} else {
			c.reject(ticket, domain.ErrSoldOut)
		}
		return
	}

	coupon, err := c.issuer.IssueWithoutLock(ctx, ticket.TemplateID, ticket.UserID)
	if err != nil {
		c.reject(ticket, err)
		return
	}

	c.mu.Lock()
	ticket.Status = TicketIssued
	ticket.CouponID = coupon.ID
	ticket.ResolvedAt = time.Now()
	c.mu.Unlock()
}

func (c *IssueCoordinator) setStatus(ticket *Ticket, status TicketStatus) {
	c.mu.Lock()
	ticket.Status = status
	c.mu.Unlock()
}

func (c *IssueCoordinator) reject(ticket *Ticket, err error) {
	c.mu.Lock()
	ticket.Status = TicketRejected
	ticket.ErrorCode = domain.ErrorCode(err)
	ticket.ResolvedAt = time.Now()
	c.mu.Unlock()

	if !isExpectedIssueError(err) {
		c.logger.Error().Err(err).
			Str("request_id", ticket.RequestID).
			Int64("template_id", ticket.TemplateID).
			Msg("issuance attempt failed")
	}
}

func isExpectedIssueError(err error) bool {
	return errors.Is(err, domain.ErrSoldOut) ||
		errors.Is(err, domain.ErrAlreadyIssued) ||
		errors.Is(err, domain.ErrOutsideWindow) ||
		errors.Is(err, domain.ErrTemplateNotFound)
}
