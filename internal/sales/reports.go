package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
)

// Reports serves the revenue summaries and sale listings.
type Reports struct {
	db *sqlx.DB
}

func NewReports(db *sqlx.DB) *Reports {
	return &Reports{db: db}
}

type RevenueSummary struct {
	Revenue    float64 `db:"revenue" json:"revenue"`
	SalesCount int64   `db:"count" json:"sales_count"`
}

// Daily sums completed sales for the current date.
func (r *Reports) Daily(ctx context.Context) (RevenueSummary, error) {
	var s RevenueSummary
	err := r.db.GetContext(ctx, &s,
		`SELECT COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS count
		 FROM sales WHERE status = 'COMPLETED' AND DATE(created_at) = DATE('now')`)
	return s, err
}

// Monthly sums completed sales for the current month.
func (r *Reports) Monthly(ctx context.Context) (RevenueSummary, error) {
	var s RevenueSummary
	err := r.db.GetContext(ctx, &s,
		`SELECT COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS count
		 FROM sales WHERE status = 'COMPLETED' AND strftime('%Y-%m', created_at) = strftime('%Y-%m', 'now')`)
	return s, err
}

type SaleWithItems struct {
	domain.Sale
	Items []domain.SaleItem `json:"items"`
}

// List returns sales filtered by an optional inclusive date range
// (YYYY-MM-DD), newest first, each with its line items.
func (r *Reports) List(ctx context.Context, startDate, endDate string) ([]SaleWithItems, error) {
	var (
		args    []any
		clauses []string
	)
	if startDate != "" {
		args = append(args, startDate)
		clauses = append(clauses, fmt.Sprintf("DATE(created_at) >= $%d", len(args)))
	}
	if endDate != "" {
		args = append(args, endDate)
		clauses = append(clauses, fmt.Sprintf("DATE(created_at) <= $%d", len(args)))
	}

	query := `SELECT id, sale_no, customer_name, user_id, subtotal, tax_amount, discount, total, payment_method, status, created_at FROM sales`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var sales []domain.Sale
	if err := r.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return []SaleWithItems{}, nil
	}

	ids := make([]int64, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}

	itemsQuery, itemsArgs, err := sqlx.In(
		`SELECT id, sale_id, product_id, batch_id, quantity, unit_price, tax_rate, tax_amount, line_total
		 FROM sale_items WHERE sale_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	itemsQuery = r.db.Rebind(itemsQuery)

	var rows []domain.SaleItem
	if err := r.db.SelectContext(ctx, &rows, itemsQuery, itemsArgs...); err != nil {
		return nil, err
	}
	itemsBySale := make(map[int64][]domain.SaleItem)
	for _, row := range rows {
		itemsBySale[row.SaleID] = append(itemsBySale[row.SaleID], row)
	}

	report := make([]SaleWithItems, len(sales))
	for i, sale := range sales {
		items := itemsBySale[sale.ID]
		if items == nil {
			items = []domain.SaleItem{}
		}
		report[i] = SaleWithItems{Sale: sale, Items: items}
	}
	return report, nil
}
