package domain

import "fmt"

// NotFoundError identifies a missing product, batch or sale.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// InvalidQuantityError reports a zero or negative requested quantity.
type InvalidQuantityError struct {
	ProductID int64
	Quantity  int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %d", e.Quantity, e.ProductID)
}

// InvalidDiscountError reports a discount exceeding the payable amount.
type InvalidDiscountError struct {
	Discount string
	Payable  string
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount %s exceeds payable amount %s", e.Discount, e.Payable)
}

// InsufficientStockError reports a reservation or decrement that could not
// be satisfied. Shortfall is the unmet quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// ShortfallError reports a partial allocation. The caller receives the
// partial plan alongside this error and decides whether to accept it.
type ShortfallError struct {
	ProductID int64
	Unmet     int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("allocation shortfall for product %d: %d units unmet", e.ProductID, e.Unmet)
}

// CommitFailedError wraps a storage failure during the atomic sale commit.
// PartialWrite must always be false: the commit either applies completely
// or not at all.
type CommitFailedError struct {
	Err          error
	PartialWrite bool
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("sale commit failed: %v", e.Err)
}

func (e *CommitFailedError) Unwrap() error { return e.Err }
