package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the database schema required for the POS backend.
func Run(db *sqlx.DB) {
	if err := Apply(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

// Apply executes the schema statements, returning the first failure.
func Apply(db *sqlx.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT 'unit',
			gst_rate REAL NOT NULL DEFAULT 0,
			reorder_level INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL REFERENCES products(id),
			batch_no TEXT NOT NULL,
			manufacture_date DATE NOT NULL,
			expiry_date DATE NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			cost_price REAL NOT NULL,
			selling_price REAL NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(product_id, batch_no)
		);`,
		`CREATE TABLE IF NOT EXISTS stock_reservations (
			id TEXT PRIMARY KEY,
			checkout_id TEXT NOT NULL,
			product_id INTEGER NOT NULL REFERENCES products(id),
			batch_id INTEGER REFERENCES batches(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			kind TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_by INTEGER NOT NULL REFERENCES users(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_product
			ON stock_reservations(product_id, expires_at);`,
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_no TEXT NOT NULL UNIQUE,
			customer_name TEXT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			subtotal REAL NOT NULL,
			tax_amount REAL NOT NULL,
			discount REAL NOT NULL DEFAULT 0,
			total REAL NOT NULL,
			payment_method TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'COMPLETED',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id INTEGER NOT NULL REFERENCES sales(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			batch_id INTEGER NOT NULL REFERENCES batches(id),
			quantity INTEGER NOT NULL,
			unit_price REAL NOT NULL,
			tax_rate REAL NOT NULL,
			tax_amount REAL NOT NULL,
			line_total REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO counters (name, value) VALUES ('sale_no', 0);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
