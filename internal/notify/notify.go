// Package notify emits sale-completed events for dashboards and alerts.
// Delivery is fire-and-forget: a failed publish is logged, never
// propagated to the checkout.
package notify

import (
	"context"
	"time"

	"pharmapos/m/domain"
)

// SaleCompleted is the event body published after a successful commit.
type SaleCompleted struct {
	SaleID        int64     `json:"sale_id"`
	SaleNo        string    `json:"sale_no"`
	Total         float64   `json:"total"`
	ItemCount     int       `json:"item_count"`
	PaymentMethod string    `json:"payment_method"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher delivers sale events.
type Publisher interface {
	SaleCompleted(ctx context.Context, sale *domain.Sale, itemCount int) error
}

// NopPublisher is used when no message broker is configured.
type NopPublisher struct{}

func (NopPublisher) SaleCompleted(ctx context.Context, sale *domain.Sale, itemCount int) error {
	return nil
}
