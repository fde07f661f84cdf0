package domain

type Product struct {
	ID           int64   `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	Unit         string  `db:"unit" json:"unit"`
	GSTRate      float64 `db:"gst_rate" json:"gst_rate"`
	ReorderLevel int64   `db:"reorder_level" json:"reorder_level"`
	CreatedAt    string  `db:"created_at" json:"created_at"`
	UpdatedAt    string  `db:"updated_at" json:"updated_at"`
}
