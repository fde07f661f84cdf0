package domain

import "time"

type ReservationKind string

const (
	ReservationSale       ReservationKind = "SALE"
	ReservationTransfer   ReservationKind = "TRANSFER"
	ReservationAdjustment ReservationKind = "ADJUSTMENT"
)

// StockReservation is a temporary claim against a batch's available
// quantity. Available = on-hand minus the sum of non-expired reservations.
// A reservation past ExpiresAt is void even if it has not been swept yet.
type StockReservation struct {
	ID         string          `db:"id" json:"id"`
	CheckoutID string          `db:"checkout_id" json:"checkout_id"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	BatchID    *int64          `db:"batch_id" json:"batch_id,omitempty"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	Kind       ReservationKind `db:"kind" json:"kind"`
	ExpiresAt  time.Time       `db:"expires_at" json:"expires_at"`
	CreatedBy  int64           `db:"created_by" json:"created_by"`
	CreatedAt  string          `db:"created_at" json:"created_at"`
}
