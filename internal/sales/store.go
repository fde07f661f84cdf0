package sales

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
)

// Store persists a finished checkout. CommitSale must apply the sale,
// its items and the batch decrements atomically or not at all.
type Store interface {
	CommitSale(ctx context.Context, sale *domain.Sale, items []domain.SaleItem) error
}

// SQLStore commits sales in a single database transaction. Batch
// decrements are conditional on remaining quantity so a reservation that
// went stale between reserve and commit can never drive on-hand
// negative.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CommitSale(ctx context.Context, sale *domain.Sale, items []domain.SaleItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowxContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'sale_no' RETURNING value`).Scan(&seq); err != nil {
		return err
	}
	sale.SaleNo = fmt.Sprintf("INV-%06d", seq)
	sale.Status = domain.SaleStatusCompleted

	var saleID int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO sales (sale_no, customer_name, user_id, subtotal, tax_amount, discount, total, payment_method, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		sale.SaleNo, sale.CustomerName, sale.UserID, sale.Subtotal, sale.TaxAmount,
		sale.Discount, sale.Total, sale.PaymentMethod, sale.Status).Scan(&saleID, &sale.CreatedAt)
	if err != nil {
		return err
	}
	sale.ID = saleID

	for i := range items {
		items[i].SaleID = saleID
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sale_items (sale_id, product_id, batch_id, quantity, unit_price, tax_rate, tax_amount, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			saleID, items[i].ProductID, items[i].BatchID, items[i].Quantity,
			items[i].UnitPrice, items[i].TaxRate, items[i].TaxAmount, items[i].LineTotal)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE batches SET quantity = quantity - $1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = $2 AND quantity >= $1`,
			items[i].Quantity, items[i].BatchID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// The batch lost stock since allocation; roll everything back.
			var remaining int64
			if err := tx.GetContext(ctx, &remaining,
				`SELECT quantity FROM batches WHERE id = $1`, items[i].BatchID); err != nil {
				remaining = 0
			}
			return &domain.InsufficientStockError{
				ProductID: items[i].ProductID,
				Requested: items[i].Quantity,
				Available: remaining,
			}
		}
	}

	return tx.Commit()
}
