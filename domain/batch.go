package domain

import "time"

type Batch struct {
	ID              int64     `db:"id" json:"id"`
	ProductID       int64     `db:"product_id" json:"product_id"`
	BatchNo         string    `db:"batch_no" json:"batch_no"`
	ManufactureDate time.Time `db:"manufacture_date" json:"manufacture_date"`
	ExpiryDate      time.Time `db:"expiry_date" json:"expiry_date"`
	Quantity        int64     `db:"quantity" json:"quantity"`
	CostPrice       float64   `db:"cost_price" json:"cost_price"`
	SellingPrice    float64   `db:"selling_price" json:"selling_price"`
	CreatedAt       string    `db:"created_at" json:"created_at"`
	UpdatedAt       string    `db:"updated_at" json:"updated_at"`
}
