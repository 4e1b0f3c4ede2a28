package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/flashmart/coupon-service/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

type MySQLCouponStore struct {
	db *sql.DB

	// onePerUser is a policy, not an invariant. With it enabled the unique
	// (user_id, template_id) key backstops concurrent duplicates; with it
	// disabled the deployment's DDL is expected to omit that key.
	onePerUser bool
}

func NewMySQLCouponStore(db *sql.DB, onePerUser bool) *MySQLCouponStore {
	return &MySQLCouponStore{db: db, onePerUser: onePerUser}
}

// IssueCoupon is the single authoritative issuance attempt. The conditional
// increment on issued_quantity is the only gate that holds under arbitrary
// cross-process concurrency; the coupon insert joins the same transaction so
// a rolled-back insert also rolls back the counter.
func (s *MySQLCouponStore) IssueCoupon(ctx context.Context, templateID, userID int64, now time.Time) (*domain.Coupon, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE coupon_templates
		SET issued_quantity = issued_quantity + 1, updated_at = NOW()
		WHERE id = ? AND issued_quantity < total_quantity`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("increment issued quantity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM coupon_templates WHERE id = ?`, templateID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check template: %w", err)
		}
		if exists == 0 {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, domain.ErrSoldOut
	}

	var (
		couponType string
		value      int64
		endAt      time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT type, value, end_at FROM coupon_templates WHERE id = ?`, templateID,
	).Scan(&couponType, &value, &endAt)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	if s.onePerUser {
		var issued int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM coupons WHERE user_id = ? AND template_id = ?`,
			userID, templateID,
		).Scan(&issued)
		if err != nil {
			return nil, fmt.Errorf("check issued count: %w", err)
		}
		if issued > 0 {
			return nil, domain.ErrAlreadyIssued
		}
	}

	insert, err := tx.ExecContext(ctx, `
		INSERT INTO coupons (user_id, template_id, type, value, issued_at, expired_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, templateID, couponType, value, now, endAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return nil, domain.ErrAlreadyIssued
		}
		return nil, fmt.Errorf("insert coupon: %w", err)
	}

	couponID, err := insert.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("coupon id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &domain.Coupon{
		ID:         couponID,
		UserID:     userID,
		TemplateID: templateID,
		Type:       domain.CouponType(couponType),
		Value:      value,
		IssuedAt:   now,
		ExpiredAt:  endAt,
	}, nil
}

func (s *MySQLCouponStore) GetCoupon(ctx context.Context, couponID int64) (*domain.Coupon, error) {
	return s.scanCoupon(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, template_id, type, value, issued_at, used_at, expired_at, order_id
		FROM coupons WHERE id = ?`, couponID,
	))
}

func (s *MySQLCouponStore) GetUserCoupon(ctx context.Context, couponID, userID int64) (*domain.Coupon, error) {
	return s.scanCoupon(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, template_id, type, value, issued_at, used_at, expired_at, order_id
		FROM coupons WHERE id = ? AND user_id = ?`, couponID, userID,
	))
}

func (s *MySQLCouponStore) ListUserCoupons(ctx context.Context, userID int64) ([]domain.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, template_id, type, value, issued_at, used_at, expired_at, order_id
		FROM coupons WHERE user_id = ? ORDER BY issued_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []domain.Coupon
	for rows.Next() {
		c, err := scanCouponRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

// MarkUsed sets used_at and order_id exactly once under an exclusive row
// read. Replaying with the orderId the coupon was already used for returns
// the stored coupon unchanged, which keeps MARK_USED idempotent under
// redelivery.
func (s *MySQLCouponStore) MarkUsed(ctx context.Context, couponID, userID, orderID int64, usedAt time.Time) (*domain.Coupon, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	coupon, err := s.scanCoupon(tx.QueryRowContext(ctx, `
		SELECT id, user_id, template_id, type, value, issued_at, used_at, expired_at, order_id
		FROM coupons WHERE id = ? FOR UPDATE`, couponID,
	))
	if err != nil {
		return nil, err
	}
	if coupon.UserID != userID {
		return nil, domain.ErrCouponNotFound
	}

	if coupon.IsUsed() {
		if coupon.OrderID != nil && *coupon.OrderID == orderID {
			return coupon, tx.Commit()
		}
		return nil, domain.ErrCouponUsed
	}
	if coupon.IsExpired(usedAt) {
		return nil, domain.ErrCouponExpired
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE coupons SET used_at = ?, order_id = ? WHERE id = ?`,
		usedAt, orderID, couponID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	coupon.UsedAt = &usedAt
	coupon.OrderID = &orderID
	return coupon, nil
}

func (s *MySQLCouponStore) GetTemplate(ctx context.Context, templateID int64) (*domain.CouponTemplate, error) {
	var t domain.CouponTemplate
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, value, total_quantity, issued_quantity, start_at, end_at, created_at, updated_at
		FROM coupon_templates WHERE id = ?`, templateID,
	).Scan(&t.ID, &t.Name, &t.Type, &t.Value, &t.TotalQuantity, &t.IssuedQuantity,
		&t.StartAt, &t.EndAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return &t, nil
}

// UpdateTemplateWindow uses an exclusive read because the window change is a
// compound mutation that must observe a consistent row.
func (s *MySQLCouponStore) UpdateTemplateWindow(ctx context.Context, templateID int64, startAt, endAt time.Time) error {
	if !endAt.After(startAt) {
		return fmt.Errorf("invalid window: end %v not after start %v", endAt, startAt)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM coupon_templates WHERE id = ? FOR UPDATE`, templateID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrTemplateNotFound
	}
	if err != nil {
		return fmt.Errorf("lock template: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE coupon_templates SET start_at = ?, end_at = ?, updated_at = NOW() WHERE id = ?`,
		startAt, endAt, templateID,
	)
	if err != nil {
		return fmt.Errorf("update window: %w", err)
	}

	return tx.Commit()
}

func (s *MySQLCouponStore) scanCoupon(row *sql.Row) (*domain.Coupon, error) {
	return scanCouponRow(row.Scan)
}

func scanCouponRow(scan func(dest ...any) error) (*domain.Coupon, error) {
	var (
		c       domain.Coupon
		usedAt  sql.NullTime
		orderID sql.NullInt64
	)
	err := scan(&c.ID, &c.UserID, &c.TemplateID, &c.Type, &c.Value,
		&c.IssuedAt, &usedAt, &c.ExpiredAt, &orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	if usedAt.Valid {
		c.UsedAt = &usedAt.Time
	}
	if orderID.Valid {
		c.OrderID = &orderID.Int64
	}
	return &c, nil
}
