package domain

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Sale is immutable once COMPLETED apart from the soft CANCELLED
// transition. Invariant: Total = Subtotal + TaxAmount - Discount.
type Sale struct {
	ID            int64      `db:"id" json:"id"`
	SaleNo        string     `db:"sale_no" json:"sale_no"`
	CustomerName  *string    `db:"customer_name" json:"customer_name,omitempty"`
	UserID        int64      `db:"user_id" json:"user_id"`
	Subtotal      float64    `db:"subtotal" json:"subtotal"`
	TaxAmount     float64    `db:"tax_amount" json:"tax_amount"`
	Discount      float64    `db:"discount" json:"discount"`
	Total         float64    `db:"total" json:"total"`
	PaymentMethod string     `db:"payment_method" json:"payment_method"`
	Status        SaleStatus `db:"status" json:"status"`
	CreatedAt     string     `db:"created_at" json:"created_at"`
}

type SaleItem struct {
	ID        int64   `db:"id" json:"id"`
	SaleID    int64   `db:"sale_id" json:"sale_id"`
	ProductID int64   `db:"product_id" json:"product_id"`
	BatchID   int64   `db:"batch_id" json:"batch_id"`
	Quantity  int64   `db:"quantity" json:"quantity"`
	UnitPrice float64 `db:"unit_price" json:"unit_price"`
	TaxRate   float64 `db:"tax_rate" json:"tax_rate"`
	TaxAmount float64 `db:"tax_amount" json:"tax_amount"`
	LineTotal float64 `db:"line_total" json:"line_total"`
}
