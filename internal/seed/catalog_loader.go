package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// LoadProducts ingests the CSV into the products table, ignoring rows
// that are already present. Expected columns: name, unit, gst_rate,
// reorder_level.
func LoadProducts(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load product catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read product header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start product transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT INTO products (name, unit, gst_rate, reorder_level)
		SELECT ?, ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = ?)`)
	if err != nil {
		log.Printf("unable to prepare product insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read product row: %v", err)
			continue
		}
		if len(record) < 4 {
			continue
		}
		name := strings.TrimSpace(record[0])
		unit := strings.TrimSpace(record[1])
		if name == "" {
			continue
		}
		if unit == "" {
			unit = "unit"
		}
		gstRate, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil || gstRate < 0 || gstRate > 100 {
			log.Printf("skipping product %s: bad gst_rate %q", name, record[2])
			continue
		}
		reorder, err := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
		if err != nil || reorder < 0 {
			reorder = 0
		}

		if _, err := stmt.Exec(name, unit, gstRate, reorder, name); err != nil {
			log.Printf("unable to insert product %s: %v", name, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit product seed: %v", err)
	} else {
		log.Printf("seeded product catalog with %d rows", rows)
	}
}
