package stock

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
)

// Inventory covers stock receipts and the reorder/expiry reports.
type Inventory struct {
	db *sqlx.DB
}

func NewInventory(db *sqlx.DB) *Inventory {
	return &Inventory{db: db}
}

// ReceiptInput describes one incoming batch of stock.
type ReceiptInput struct {
	ProductID       int64     `json:"product_id"`
	BatchNo         string    `json:"batch_no"`
	ManufactureDate time.Time `json:"manufacture_date"`
	ExpiryDate      time.Time `json:"expiry_date"`
	Quantity        int64     `json:"quantity"`
	CostPrice       float64   `json:"cost_price"`
	SellingPrice    float64   `json:"selling_price"`
}

// Receive records a stock receipt as a new batch.
func (s *Inventory) Receive(ctx context.Context, in ReceiptInput) (*domain.Batch, error) {
	if in.Quantity <= 0 {
		return nil, &domain.InvalidQuantityError{ProductID: in.ProductID, Quantity: in.Quantity}
	}
	if !in.ExpiryDate.After(in.ManufactureDate) {
		return nil, ErrExpiryBeforeManufacture
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, in.ProductID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, &domain.NotFoundError{Kind: "product", ID: in.ProductID}
	}

	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO batches (product_id, batch_no, manufacture_date, expiry_date, quantity, cost_price, selling_price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		in.ProductID, in.BatchNo, in.ManufactureDate, in.ExpiryDate, in.Quantity, in.CostPrice, in.SellingPrice).Scan(&id)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "unique") {
			return nil, ErrDuplicateBatchNo
		}
		return nil, err
	}

	return &domain.Batch{
		ID:              id,
		ProductID:       in.ProductID,
		BatchNo:         in.BatchNo,
		ManufactureDate: in.ManufactureDate,
		ExpiryDate:      in.ExpiryDate,
		Quantity:        in.Quantity,
		CostPrice:       in.CostPrice,
		SellingPrice:    in.SellingPrice,
	}, nil
}

// ListBatches returns a product's batches, earliest expiry first.
func (s *Inventory) ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error) {
	var batches []domain.Batch
	err := s.db.SelectContext(ctx, &batches,
		`SELECT id, product_id, batch_no, manufacture_date, expiry_date, quantity, cost_price, selling_price, created_at, updated_at
		 FROM batches WHERE product_id = $1
		 ORDER BY expiry_date ASC, id ASC`, productID)
	return batches, err
}

// ExpiryAlert is one batch with stock expiring inside the alert window.
type ExpiryAlert struct {
	BatchID     int64     `db:"id" json:"batch_id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	ProductName string    `db:"name" json:"product_name"`
	BatchNo     string    `db:"batch_no" json:"batch_no"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	ExpiryDate  time.Time `db:"expiry_date" json:"expiry_date"`
}

// ExpiryAlerts lists batches with remaining stock expiring within the
// given number of days, earliest first.
func (s *Inventory) ExpiryAlerts(ctx context.Context, days int) ([]ExpiryAlert, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, days)
	var alerts []ExpiryAlert
	err := s.db.SelectContext(ctx, &alerts,
		`SELECT b.id, b.product_id, p.name, b.batch_no, b.quantity, b.expiry_date
		 FROM batches b
		 JOIN products p ON p.id = b.product_id
		 WHERE b.quantity > 0 AND b.expiry_date <= $1
		 ORDER BY b.expiry_date ASC`, cutoff)
	return alerts, err
}

// LowStockItem is a product at or below its reorder level.
type LowStockItem struct {
	ProductID    int64  `db:"id" json:"product_id"`
	Name         string `db:"name" json:"name"`
	OnHand       int64  `db:"on_hand" json:"on_hand"`
	ReorderLevel int64  `db:"reorder_level" json:"reorder_level"`
}

// LowStock lists products whose total on-hand quantity has fallen to or
// below their reorder level.
func (s *Inventory) LowStock(ctx context.Context) ([]LowStockItem, error) {
	var items []LowStockItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT p.id, p.name, p.reorder_level,
		        COALESCE((SELECT SUM(b.quantity) FROM batches b WHERE b.product_id = p.id), 0) AS on_hand
		 FROM products p
		 WHERE p.reorder_level > 0
		   AND COALESCE((SELECT SUM(b.quantity) FROM batches b WHERE b.product_id = p.id), 0) <= p.reorder_level
		 ORDER BY p.name ASC`)
	return items, err
}
