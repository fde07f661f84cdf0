package stock

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
)

// AllocatedBatch is one slice of an allocation plan.
type AllocatedBatch struct {
	BatchID      int64     `json:"batch_id"`
	Quantity     int64     `json:"quantity"`
	UnitCost     float64   `json:"unit_cost"`
	SellingPrice float64   `json:"selling_price"`
	ExpiryDate   time.Time `json:"expiry_date"`
}

// AllocationResult lists the batches that satisfy a requested quantity,
// in consumption order.
type AllocationResult struct {
	ProductID int64            `json:"product_id"`
	Requested int64            `json:"requested"`
	Allocated int64            `json:"allocated"`
	Batches   []AllocatedBatch `json:"batches"`
}

// AllocationQuery describes one allocation request. ExcludeCheckout and
// Planned make repeated calls within a single checkout consistent: the
// checkout's own product-level holds must not block its allocation, but
// quantity already promised to earlier lines of the same checkout must.
type AllocationQuery struct {
	ProductID int64
	Quantity  int64
	// ExcludeCheckout names the calling checkout; its unpinned holds are
	// not counted against availability. Other checkouts' holds are.
	ExcludeCheckout string
	// Planned maps batch id to quantity already allocated by earlier
	// lines of the same checkout.
	Planned map[int64]int64
}

// Allocator selects batches earliest-expiry-first so the stock closest
// to expiry sells before it is wasted. It is a pure read: quantity is
// only decremented in the sale commit.
type Allocator struct {
	db *sqlx.DB
}

func NewAllocator(db *sqlx.DB) *Allocator {
	return &Allocator{db: db}
}

type allocCandidate struct {
	ID           int64     `db:"id"`
	Quantity     int64     `db:"quantity"`
	Reserved     int64     `db:"reserved"`
	CostPrice    float64   `db:"cost_price"`
	SellingPrice float64   `db:"selling_price"`
	ExpiryDate   time.Time `db:"expiry_date"`
}

// Allocate greedily consumes available quantity from the product's
// batches ordered by expiry date, ties broken by batch id so repeated
// calls over the same stock produce the same plan. Batch-pinned holds
// block their batch directly; other checkouts' product-level holds are
// charged against the earliest batches before anything is allocated.
// When total available falls short the partial plan is returned
// together with ShortfallError.
func (a *Allocator) Allocate(ctx context.Context, q AllocationQuery) (AllocationResult, error) {
	result := AllocationResult{ProductID: q.ProductID, Requested: q.Quantity}

	if q.Quantity <= 0 {
		return result, &domain.InvalidQuantityError{ProductID: q.ProductID, Quantity: q.Quantity}
	}

	var exists bool
	if err := a.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, q.ProductID); err != nil {
		return result, err
	}
	if !exists {
		return result, &domain.NotFoundError{Kind: "product", ID: q.ProductID}
	}

	now := time.Now().UTC()
	var candidates []allocCandidate
	err := a.db.SelectContext(ctx, &candidates,
		`SELECT b.id, b.quantity, b.cost_price, b.selling_price, b.expiry_date,
		        COALESCE((SELECT SUM(r.quantity) FROM stock_reservations r
		                  WHERE r.batch_id = b.id AND r.expires_at > $2), 0) AS reserved
		 FROM batches b
		 WHERE b.product_id = $1 AND b.quantity > 0
		 ORDER BY b.expiry_date ASC, b.id ASC`, q.ProductID, now)
	if err != nil {
		return result, err
	}

	var unpinned int64
	err = a.db.GetContext(ctx, &unpinned,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
		 WHERE product_id = $1 AND batch_id IS NULL AND expires_at > $2 AND checkout_id != $3`,
		q.ProductID, now, q.ExcludeCheckout)
	if err != nil {
		return result, err
	}

	remaining := q.Quantity
	for _, c := range candidates {
		if remaining == 0 {
			break
		}
		available := c.Quantity - c.Reserved - q.Planned[c.ID]
		if available <= 0 {
			continue
		}
		// Product-level holds from other checkouts consume the earliest
		// batches first, exactly where their allocator will land.
		if unpinned > 0 {
			hold := unpinned
			if hold > available {
				hold = available
			}
			available -= hold
			unpinned -= hold
			if available == 0 {
				continue
			}
		}
		take := available
		if take > remaining {
			take = remaining
		}
		result.Batches = append(result.Batches, AllocatedBatch{
			BatchID:      c.ID,
			Quantity:     take,
			UnitCost:     c.CostPrice,
			SellingPrice: c.SellingPrice,
			ExpiryDate:   c.ExpiryDate,
		})
		remaining -= take
	}
	result.Allocated = q.Quantity - remaining

	if remaining > 0 {
		return result, &domain.ShortfallError{ProductID: q.ProductID, Unmet: remaining}
	}
	return result, nil
}
