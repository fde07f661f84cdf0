// Package stock owns batch-level inventory: timed reservations against
// available quantity, expiry-ordered allocation, stock receipts and the
// reorder/expiry reports. All mutation of batch quantity goes through
// this package and the sales coordinator's commit step.
package stock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"pharmapos/m/domain"
)

// Ledger manages short-lived holds on stock quantity during checkout.
// The availability check and the reservation insert run in one
// transaction on a single-connection pool, so concurrent reservers are
// serialized and cannot oversell. Expired reservations are void at every
// read; Sweep physically removes them.
type Ledger struct {
	db         *sqlx.DB
	log        *zap.Logger
	defaultTTL time.Duration
}

func NewLedger(db *sqlx.DB, log *zap.Logger, defaultTTL time.Duration) *Ledger {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	return &Ledger{db: db, log: log, defaultTTL: defaultTTL}
}

// ReserveRequest describes one hold. BatchID pins the hold to a single
// batch; when nil the hold counts against the product's total stock.
type ReserveRequest struct {
	CheckoutID string
	ProductID  int64
	BatchID    *int64
	Quantity   int64
	Kind       domain.ReservationKind
	TTL        time.Duration
	UserID     int64
}

// Reserve atomically checks available quantity and inserts a hold.
// Returns the reservation id.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", &domain.InvalidQuantityError{ProductID: req.ProductID, Quantity: req.Quantity}
	}
	if req.Kind == "" {
		req.Kind = domain.ReservationSale
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	if req.CheckoutID == "" {
		req.CheckoutID = uuid.NewString()
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	available, err := availableTx(tx, req.ProductID, req.BatchID, now)
	if err != nil {
		return "", err
	}
	if req.Quantity > available {
		return "", &domain.InsufficientStockError{
			ProductID: req.ProductID,
			Requested: req.Quantity,
			Available: available,
		}
	}

	id := uuid.NewString()
	_, err = tx.Exec(`INSERT INTO stock_reservations
			(id, checkout_id, product_id, batch_id, quantity, kind, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, req.CheckoutID, req.ProductID, req.BatchID, req.Quantity, req.Kind, now.Add(ttl), req.UserID)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Release removes a reservation. Releasing an unknown, already-released
// or expired reservation is a no-op.
func (l *Ledger) Release(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM stock_reservations WHERE id = $1`, id)
	return err
}

// ReleaseCheckout removes every reservation taken under one checkout.
func (l *Ledger) ReleaseCheckout(ctx context.Context, checkoutID string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM stock_reservations WHERE checkout_id = $1`, checkoutID)
	return err
}

// AvailableQuantity reports on-hand minus active reservations for a
// product, or for a single batch when batchID is non-nil.
func (l *Ledger) AvailableQuantity(ctx context.Context, productID int64, batchID *int64) (int64, error) {
	return availableTx(ctxQueryer{ctx, l.db}, productID, batchID, time.Now().UTC())
}

// Sweep deletes reservations past their expiry and returns the count.
// Lazy expiry already excludes them from availability; the sweep only
// bounds table growth.
func (l *Ledger) Sweep(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM stock_reservations WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunSweeper sweeps on a fixed interval until ctx is cancelled.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.Sweep(ctx)
			if err != nil {
				l.log.Warn("reservation sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				l.log.Info("swept expired reservations", zap.Int64("removed", removed))
			}
		}
	}
}

type sqlxQueryer interface {
	Get(dest interface{}, query string, args ...interface{}) error
}

func availableTx(q sqlxQueryer, productID int64, batchID *int64, now time.Time) (int64, error) {
	var onHand int64
	if batchID != nil {
		err := q.Get(&onHand,
			`SELECT quantity FROM batches WHERE id = $1 AND product_id = $2`, *batchID, productID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &domain.NotFoundError{Kind: "batch", ID: *batchID}
		}
		if err != nil {
			return 0, err
		}
		var reserved int64
		err = q.Get(&reserved,
			`SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
			 WHERE batch_id = $1 AND expires_at > $2`, *batchID, now)
		if err != nil {
			return 0, err
		}
		return onHand - reserved, nil
	}

	var exists bool
	if err := q.Get(&exists, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID); err != nil {
		return 0, err
	}
	if !exists {
		return 0, &domain.NotFoundError{Kind: "product", ID: productID}
	}
	if err := q.Get(&onHand,
		`SELECT COALESCE(SUM(quantity), 0) FROM batches WHERE product_id = $1`, productID); err != nil {
		return 0, err
	}
	var reserved int64
	err := q.Get(&reserved,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
		 WHERE product_id = $1 AND expires_at > $2`, productID, now)
	if err != nil {
		return 0, err
	}
	return onHand - reserved, nil
}

type ctxQueryer struct {
	ctx context.Context
	db  *sqlx.DB
}

func (c ctxQueryer) Get(dest interface{}, query string, args ...interface{}) error {
	return c.db.GetContext(c.ctx, dest, query, args...)
}
