// Package catalog serves product reads and administrative edits. Batch
// and sale records reference products by id but never own them.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pharmapos/m/domain"
)

type Service struct {
	db    *sqlx.DB
	cache *Cache
	group singleflight.Group
	log   *zap.Logger
}

func NewService(db *sqlx.DB, cache *Cache, log *zap.Logger) *Service {
	return &Service{db: db, cache: cache, log: log}
}

const productColumns = `id, name, unit, gst_rate, reorder_level, created_at, updated_at`

// Product fetches one product, serving repeat reads from the cache.
// Concurrent cache misses for the same id collapse into one query.
func (s *Service) Product(ctx context.Context, id int64) (*domain.Product, error) {
	if p, ok := s.cache.Get(id); ok {
		return &p, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		if p, ok := s.cache.Get(id); ok {
			return p, nil
		}
		var p domain.Product
		err := s.db.GetContext(ctx, &p,
			`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Kind: "product", ID: id}
		}
		if err != nil {
			return nil, err
		}
		s.cache.Set(p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(domain.Product)
	return &p, nil
}

type ProductInput struct {
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	GSTRate      float64 `json:"gst_rate"`
	ReorderLevel int64   `json:"reorder_level"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if in.GSTRate < 0 || in.GSTRate > 100 {
		return ErrBadGSTRate
	}
	if in.ReorderLevel < 0 {
		return ErrBadReorderLevel
	}
	return nil
}

var (
	ErrNameRequired    = errors.New("product name is required")
	ErrBadGSTRate      = errors.New("gst_rate must be between 0 and 100")
	ErrBadReorderLevel = errors.New("reorder_level must not be negative")
)

func (s *Service) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	unit := in.Unit
	if unit == "" {
		unit = "unit"
	}
	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO products (name, unit, gst_rate, reorder_level) VALUES ($1, $2, $3, $4) RETURNING id`,
		strings.TrimSpace(in.Name), unit, in.GSTRate, in.ReorderLevel).Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.Product(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = $1, unit = $2, gst_rate = $3, reorder_level = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $5`,
		strings.TrimSpace(in.Name), in.Unit, in.GSTRate, in.ReorderLevel, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &domain.NotFoundError{Kind: "product", ID: id}
	}
	s.cache.Invalidate(id)
	return s.Product(ctx, id)
}

// Search lists products by name match, or the first page when query is empty.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	var products []domain.Product
	var err error
	if query == "" {
		err = s.db.SelectContext(ctx, &products,
			`SELECT `+productColumns+` FROM products ORDER BY name LIMIT 25`)
	} else {
		like := "%" + query + "%"
		err = s.db.SelectContext(ctx, &products,
			`SELECT `+productColumns+` FROM products WHERE name LIKE $1 ORDER BY name LIMIT 25`, like)
	}
	return products, err
}
