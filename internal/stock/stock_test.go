package stock

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pharmapos/m/internal/migrations"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := migrations.Apply(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO users (username, email, password, role) VALUES ('tester', 't@example.com', 'x', 'manager')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *sqlx.DB, name string, gstRate float64, reorder int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(`INSERT INTO products (name, unit, gst_rate, reorder_level) VALUES ($1, 'strip', $2, $3) RETURNING id`,
		name, gstRate, reorder).Scan(&id)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func seedBatch(t *testing.T, db *sqlx.DB, productID int64, batchNo string, expiry time.Time, qty int64, cost, price float64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(`INSERT INTO batches (product_id, batch_no, manufacture_date, expiry_date, quantity, cost_price, selling_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		productID, batchNo, expiry.AddDate(-2, 0, 0), expiry, qty, cost, price).Scan(&id)
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return id
}

func testLedger(db *sqlx.DB) *Ledger {
	return NewLedger(db, zap.NewNop(), 30*time.Minute)
}
