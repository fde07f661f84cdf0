// Package sales orchestrates checkout: validate the cart, reserve stock,
// allocate batches, price the order, and commit everything atomically.
package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/notify"
	"pharmapos/m/internal/pricing"
	"pharmapos/m/internal/stock"
)

// CheckoutState tracks a checkout through its lifecycle. FAILED and
// CANCELLED are terminal and guarantee no stock mutation was applied.
type CheckoutState string

const (
	StateDraft     CheckoutState = "DRAFT"
	StateReserved  CheckoutState = "RESERVED"
	StateAllocated CheckoutState = "ALLOCATED"
	StateCommitted CheckoutState = "COMMITTED"
	StateFailed    CheckoutState = "FAILED"
	StateCancelled CheckoutState = "CANCELLED"
)

var ErrEmptyCart = errors.New("cart has no items")

// CatalogReader resolves products for cart validation and tax rates.
type CatalogReader interface {
	Product(ctx context.Context, id int64) (*domain.Product, error)
}

// BatchAllocator resolves a requested quantity into concrete batches.
type BatchAllocator interface {
	Allocate(ctx context.Context, q stock.AllocationQuery) (stock.AllocationResult, error)
}

// ReservationLedger holds stock during checkout.
type ReservationLedger interface {
	Reserve(ctx context.Context, req stock.ReserveRequest) (string, error)
	ReleaseCheckout(ctx context.Context, checkoutID string) error
}

// CartLine is one product/quantity pair in a checkout request.
type CartLine struct {
	ProductID         int64    `json:"product_id"`
	Quantity          int64    `json:"quantity"`
	UnitPriceOverride *float64 `json:"unit_price_override,omitempty"`
}

// CreateSaleInput is the inbound checkout contract.
type CreateSaleInput struct {
	Items         []CartLine `json:"items"`
	CustomerName  *string    `json:"customer_name,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	Discount      float64    `json:"discount"`
	UserID        int64      `json:"-"`
}

// CreateSaleResult is the committed sale with its line items.
type CreateSaleResult struct {
	Sale  *domain.Sale      `json:"sale"`
	Items []domain.SaleItem `json:"items"`
}

// Coordinator is the single authority for checkout. No other code path
// decrements batch quantity.
type Coordinator struct {
	catalog      CatalogReader
	allocator    BatchAllocator
	ledger       ReservationLedger
	store        Store
	publisher    notify.Publisher
	log          *zap.Logger
	retryBackoff time.Duration
}

func NewCoordinator(catalog CatalogReader, allocator BatchAllocator, ledger ReservationLedger,
	store Store, publisher notify.Publisher, log *zap.Logger) *Coordinator {
	return &Coordinator{
		catalog:      catalog,
		allocator:    allocator,
		ledger:       ledger,
		store:        store,
		publisher:    publisher,
		log:          log,
		retryBackoff: 200 * time.Millisecond,
	}
}

// CreateSale runs a checkout end to end. Any failure before the commit
// releases every reservation taken for this checkout; a cancelled
// context does the same and leaves stock untouched.
func (c *Coordinator) CreateSale(ctx context.Context, input CreateSaleInput) (*CreateSaleResult, error) {
	state := StateDraft

	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if input.Discount < 0 {
		return nil, &domain.InvalidDiscountError{Discount: decimal.NewFromFloat(input.Discount).StringFixed(2), Payable: "0.00"}
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = "cash"
	}

	products := make(map[int64]*domain.Product, len(input.Items))
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return nil, &domain.InvalidQuantityError{ProductID: line.ProductID, Quantity: line.Quantity}
		}
		if line.UnitPriceOverride != nil && *line.UnitPriceOverride < 0 {
			return nil, pricing.ErrNegativeUnitPrice
		}
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		p, err := c.catalog.Product(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		products[line.ProductID] = p
	}

	checkoutID := uuid.NewString()
	fail := func(to CheckoutState, err error) (*CreateSaleResult, error) {
		if relErr := c.ledger.ReleaseCheckout(context.WithoutCancel(ctx), checkoutID); relErr != nil {
			c.log.Error("failed to release checkout reservations",
				zap.String("checkout_id", checkoutID), zap.Error(relErr))
		}
		c.log.Info("checkout did not commit",
			zap.String("checkout_id", checkoutID),
			zap.String("from", string(state)), zap.String("to", string(to)),
			zap.Error(err))
		return nil, err
	}

	// RESERVED: all-or-nothing holds, one per cart line.
	for _, line := range input.Items {
		if err := ctx.Err(); err != nil {
			return fail(StateCancelled, err)
		}
		_, err := c.ledger.Reserve(ctx, stock.ReserveRequest{
			CheckoutID: checkoutID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			Kind:       domain.ReservationSale,
			UserID:     input.UserID,
		})
		if err != nil {
			return fail(StateFailed, err)
		}
	}
	state = StateReserved

	// ALLOCATED: concrete batches per line, then final pricing. Planned
	// quantities carry across lines so a cart with the same product
	// twice does not draw the same units out of one batch.
	var items []domain.SaleItem
	var lineAmounts []pricing.LineAmounts
	planned := make(map[int64]int64)
	for _, line := range input.Items {
		if err := ctx.Err(); err != nil {
			return fail(StateCancelled, err)
		}
		allocation, err := c.allocator.Allocate(ctx, stock.AllocationQuery{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			ExcludeCheckout: checkoutID,
			Planned:         planned,
		})
		if err != nil {
			return fail(StateFailed, err)
		}
		product := products[line.ProductID]
		for _, slice := range allocation.Batches {
			planned[slice.BatchID] += slice.Quantity
			unitPrice := slice.SellingPrice
			if line.UnitPriceOverride != nil {
				unitPrice = *line.UnitPriceOverride
			}
			amounts, err := pricing.PriceLine(
				decimal.NewFromFloat(unitPrice), slice.Quantity, decimal.NewFromFloat(product.GSTRate))
			if err != nil {
				return fail(StateFailed, err)
			}
			lineAmounts = append(lineAmounts, amounts)
			items = append(items, domain.SaleItem{
				ProductID: line.ProductID,
				BatchID:   slice.BatchID,
				Quantity:  slice.Quantity,
				UnitPrice: unitPrice,
				TaxRate:   product.GSTRate,
				TaxAmount: amounts.TaxAmount.InexactFloat64(),
				LineTotal: amounts.Total.InexactFloat64(),
			})
		}
	}

	order, err := pricing.PriceOrder(lineAmounts, decimal.NewFromFloat(input.Discount))
	if err != nil {
		return fail(StateFailed, err)
	}
	state = StateAllocated

	sale := &domain.Sale{
		CustomerName:  input.CustomerName,
		UserID:        input.UserID,
		Subtotal:      order.Subtotal.InexactFloat64(),
		TaxAmount:     order.Tax.InexactFloat64(),
		Discount:      order.Discount.InexactFloat64(),
		Total:         order.Total.InexactFloat64(),
		PaymentMethod: input.PaymentMethod,
		Status:        domain.SaleStatusPending,
	}

	// COMMITTED: one atomic persist; infrastructure errors get a single
	// retry, a stale-stock guard failure does not.
	err = c.store.CommitSale(ctx, sale, items)
	if err != nil {
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			return fail(StateFailed, err)
		}
		c.log.Warn("sale commit failed, retrying once",
			zap.String("checkout_id", checkoutID), zap.Error(err))
		time.Sleep(c.retryBackoff)
		if err = c.store.CommitSale(ctx, sale, items); err != nil {
			if errors.As(err, &stockErr) {
				return fail(StateFailed, err)
			}
			return fail(StateFailed, &domain.CommitFailedError{Err: err})
		}
	}
	state = StateCommitted

	if err := c.ledger.ReleaseCheckout(context.WithoutCancel(ctx), checkoutID); err != nil {
		// The sale is committed; leftover holds expire on their own.
		c.log.Warn("failed to release reservations after commit",
			zap.String("checkout_id", checkoutID), zap.Error(err))
	}

	if err := c.publisher.SaleCompleted(context.WithoutCancel(ctx), sale, len(items)); err != nil {
		c.log.Warn("sale event publish failed",
			zap.String("sale_no", sale.SaleNo), zap.Error(err))
	}

	c.log.Info("sale committed",
		zap.String("checkout_id", checkoutID),
		zap.String("sale_no", sale.SaleNo),
		zap.Float64("total", sale.Total),
		zap.Int("items", len(items)))

	return &CreateSaleResult{Sale: sale, Items: items}, nil
}
