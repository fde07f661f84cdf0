package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pharmapos/m/domain"
	"pharmapos/m/internal/catalog"
	"pharmapos/m/internal/migrations"
	"pharmapos/m/internal/notify"
	"pharmapos/m/internal/pricing"
	"pharmapos/m/internal/stock"
)

type fixture struct {
	db          *sqlx.DB
	coordinator *Coordinator
	ledger      *stock.Ledger
	store       Store
}

func newFixture(t *testing.T, store Store) *fixture {
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
	if _, err := db.Exec(`INSERT INTO users (username, email, password, role) VALUES ('cashier', 'c@example.com', 'x', 'cashier')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	log := zap.NewNop()
	ledger := stock.NewLedger(db, log, 30*time.Minute)
	if store == nil {
		store = NewSQLStore(db)
	}
	coordinator := NewCoordinator(
		catalog.NewService(db, catalog.NewCache(time.Minute), log),
		stock.NewAllocator(db),
		ledger,
		store,
		notify.NopPublisher{},
		log,
	)
	coordinator.retryBackoff = time.Millisecond

	return &fixture{db: db, coordinator: coordinator, ledger: ledger, store: store}
}

func (f *fixture) seedProduct(t *testing.T, name string, gstRate float64) int64 {
	t.Helper()
	var id int64
	err := f.db.QueryRowx(`INSERT INTO products (name, unit, gst_rate) VALUES ($1, 'strip', $2) RETURNING id`,
		name, gstRate).Scan(&id)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func (f *fixture) seedBatch(t *testing.T, productID int64, batchNo string, expiry time.Time, qty int64, price float64) int64 {
	t.Helper()
	var id int64
	err := f.db.QueryRowx(`INSERT INTO batches (product_id, batch_no, manufacture_date, expiry_date, quantity, cost_price, selling_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		productID, batchNo, expiry.AddDate(-2, 0, 0), expiry, qty, price*0.6, price).Scan(&id)
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return id
}

func (f *fixture) batchQuantity(t *testing.T, batchID int64) int64 {
	t.Helper()
	var qty int64
	if err := f.db.Get(&qty, `SELECT quantity FROM batches WHERE id = $1`, batchID); err != nil {
		t.Fatalf("batch quantity: %v", err)
	}
	return qty
}

func (f *fixture) activeReservations(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Get(&n, `SELECT COUNT(*) FROM stock_reservations`); err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	return n
}

func (f *fixture) saleCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Get(&n, `SELECT COUNT(*) FROM sales`); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	return n
}

func TestCreateSaleAllocatesEarliestExpiryAndPrices(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	b1 := f.seedBatch(t, productID, "B1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 5, 10.00)
	b2 := f.seedBatch(t, productID, "B2", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10, 10.00)

	result, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:         []CartLine{{ProductID: productID, Quantity: 8}},
		PaymentMethod: "cash",
		UserID:        1,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if result.Sale.Subtotal != 80.00 || result.Sale.TaxAmount != 9.60 || result.Sale.Total != 89.60 {
		t.Errorf("amounts = %.2f/%.2f/%.2f, want 80.00/9.60/89.60",
			result.Sale.Subtotal, result.Sale.TaxAmount, result.Sale.Total)
	}
	if result.Sale.SaleNo != "INV-000001" {
		t.Errorf("sale_no = %s, want INV-000001", result.Sale.SaleNo)
	}
	if result.Sale.Status != domain.SaleStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Sale.Status)
	}
	if result.Sale.CreatedAt == "" {
		t.Error("committed sale has empty created_at")
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 sale items, got %d", len(result.Items))
	}
	if result.Items[0].BatchID != b1 || result.Items[0].Quantity != 5 {
		t.Errorf("first item = %+v, want batch %d qty 5", result.Items[0], b1)
	}
	if result.Items[1].BatchID != b2 || result.Items[1].Quantity != 3 {
		t.Errorf("second item = %+v, want batch %d qty 3", result.Items[1], b2)
	}

	if got := f.batchQuantity(t, b1); got != 0 {
		t.Errorf("batch B1 quantity = %d, want 0", got)
	}
	if got := f.batchQuantity(t, b2); got != 7 {
		t.Errorf("batch B2 quantity = %d, want 7", got)
	}
	if got := f.activeReservations(t); got != 0 {
		t.Errorf("reservations left after commit = %d, want 0", got)
	}
}

func TestCreateSaleSameProductOnTwoLines(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	b1 := f.seedBatch(t, productID, "B1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 5, 10.00)
	b2 := f.seedBatch(t, productID, "B2", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10, 10.00)

	// Two lines for the same product: 10 requested against 15 on hand.
	// The second line must draw from B2, not replan the units of B1.
	result, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items: []CartLine{
			{ProductID: productID, Quantity: 5},
			{ProductID: productID, Quantity: 5},
		},
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 sale items, got %d", len(result.Items))
	}
	if result.Items[0].BatchID != b1 || result.Items[0].Quantity != 5 {
		t.Errorf("first item = %+v, want batch %d qty 5", result.Items[0], b1)
	}
	if result.Items[1].BatchID != b2 || result.Items[1].Quantity != 5 {
		t.Errorf("second item = %+v, want batch %d qty 5", result.Items[1], b2)
	}
	if got := f.batchQuantity(t, b1); got != 0 {
		t.Errorf("batch B1 quantity = %d, want 0", got)
	}
	if got := f.batchQuantity(t, b2); got != 5 {
		t.Errorf("batch B2 quantity = %d, want 5", got)
	}
}

func TestCreateSaleBlindToCompetingCheckoutHolds(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	f.seedBatch(t, productID, "B1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 5, 10.00)
	b2 := f.seedBatch(t, productID, "B2", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10, 10.00)

	// Another checkout already holds 5 at product level. This checkout's
	// allocation must leave the earliest batch to the competing hold.
	if _, err := f.ledger.Reserve(context.Background(), stock.ReserveRequest{
		CheckoutID: "competing-checkout", ProductID: productID, Quantity: 5, UserID: 1,
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	result, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:  []CartLine{{ProductID: productID, Quantity: 8}},
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].BatchID != b2 || result.Items[0].Quantity != 8 {
		t.Errorf("items = %+v, want 8 from batch %d", result.Items, b2)
	}
	if got := f.batchQuantity(t, b2); got != 2 {
		t.Errorf("batch B2 quantity = %d, want 2", got)
	}
}

func TestCreateSaleAllOrNothingReservation(t *testing.T) {
	f := newFixture(t, nil)
	p1 := f.seedProduct(t, "Product A", 12)
	p2 := f.seedProduct(t, "Product B", 12)
	p3 := f.seedProduct(t, "Product C", 12)
	expiry := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.seedBatch(t, p1, "A1", expiry, 10, 5)
	f.seedBatch(t, p2, "B1", expiry, 1, 5) // line 2 cannot be satisfied
	f.seedBatch(t, p3, "C1", expiry, 10, 5)

	_, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items: []CartLine{
			{ProductID: p1, Quantity: 2},
			{ProductID: p2, Quantity: 5},
			{ProductID: p3, Quantity: 2},
		},
		UserID: 1,
	})
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != p2 {
		t.Errorf("failing product = %d, want %d", stockErr.ProductID, p2)
	}
	if stockErr.Shortfall() != 4 {
		t.Errorf("shortfall = %d, want 4", stockErr.Shortfall())
	}

	if got := f.activeReservations(t); got != 0 {
		t.Errorf("reservations held after failed checkout = %d, want 0", got)
	}
	if got := f.saleCount(t); got != 0 {
		t.Errorf("sales written = %d, want 0", got)
	}
}

// failingStore fails a fixed number of CommitSale calls, then delegates.
type failingStore struct {
	inner    Store
	failures int
	calls    int
}

func (s *failingStore) CommitSale(ctx context.Context, sale *domain.Sale, items []domain.SaleItem) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("disk full")
	}
	return s.inner.CommitSale(ctx, sale, items)
}

func TestCreateSaleCommitFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t, &failingStore{failures: 2})
	fs := f.store.(*failingStore)
	fs.inner = NewSQLStore(f.db)

	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	batchID := f.seedBatch(t, productID, "B1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 5, 10)

	_, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:  []CartLine{{ProductID: productID, Quantity: 3}},
		UserID: 1,
	})
	var commitErr *domain.CommitFailedError
	if !errors.As(err, &commitErr) {
		t.Fatalf("expected CommitFailedError, got %v", err)
	}
	if commitErr.PartialWrite {
		t.Error("PartialWrite must be false by construction")
	}
	if fs.calls != 2 {
		t.Errorf("commit attempts = %d, want 2 (one retry)", fs.calls)
	}

	if got := f.saleCount(t); got != 0 {
		t.Errorf("sales written = %d, want 0", got)
	}
	if got := f.batchQuantity(t, batchID); got != 5 {
		t.Errorf("batch quantity = %d, want 5 (untouched)", got)
	}
	if got := f.activeReservations(t); got != 0 {
		t.Errorf("reservations left = %d, want 0", got)
	}
}

func TestCreateSaleRetriesCommitOnce(t *testing.T) {
	f := newFixture(t, &failingStore{failures: 1})
	fs := f.store.(*failingStore)
	fs.inner = NewSQLStore(f.db)

	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	f.seedBatch(t, productID, "B1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 5, 10)

	result, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:  []CartLine{{ProductID: productID, Quantity: 3}},
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if fs.calls != 2 {
		t.Errorf("commit attempts = %d, want 2", fs.calls)
	}
	if result.Sale.Status != domain.SaleStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", result.Sale.Status)
	}
}

func TestCreateSaleDiscountAndOverride(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	f.seedBatch(t, productID, "B1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10, 10)

	override := 5.00
	result, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:    []CartLine{{ProductID: productID, Quantity: 2, UnitPriceOverride: &override}},
		Discount: 1.20,
		UserID:   1,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	// 2 x 5.00 = 10.00 subtotal, 1.20 tax, minus 1.20 discount = 10.00.
	if result.Sale.Subtotal != 10.00 || result.Sale.TaxAmount != 1.20 || result.Sale.Total != 10.00 {
		t.Errorf("amounts = %.2f/%.2f/%.2f, want 10.00/1.20/10.00",
			result.Sale.Subtotal, result.Sale.TaxAmount, result.Sale.Total)
	}

	var discErr *domain.InvalidDiscountError
	_, err = f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:    []CartLine{{ProductID: productID, Quantity: 1}},
		Discount: 100,
		UserID:   1,
	})
	if !errors.As(err, &discErr) {
		t.Errorf("expected InvalidDiscountError, got %v", err)
	}
	if got := f.activeReservations(t); got != 0 {
		t.Errorf("reservations left after discount failure = %d, want 0", got)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	f.seedBatch(t, productID, "B1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10, 10)

	if _, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{UserID: 1}); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got %v", err)
	}

	var qtyErr *domain.InvalidQuantityError
	_, err := f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:  []CartLine{{ProductID: productID, Quantity: 0}},
		UserID: 1,
	})
	if !errors.As(err, &qtyErr) {
		t.Errorf("expected InvalidQuantityError, got %v", err)
	}

	var nfErr *domain.NotFoundError
	_, err = f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:  []CartLine{{ProductID: 9999, Quantity: 1}},
		UserID: 1,
	})
	if !errors.As(err, &nfErr) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	bad := -1.0
	_, err = f.coordinator.CreateSale(context.Background(), CreateSaleInput{
		Items:  []CartLine{{ProductID: productID, Quantity: 1, UnitPriceOverride: &bad}},
		UserID: 1,
	})
	if !errors.Is(err, pricing.ErrNegativeUnitPrice) {
		t.Errorf("expected ErrNegativeUnitPrice, got %v", err)
	}
}

func TestStoreCommitGuardsStaleAllocation(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	batchID := f.seedBatch(t, productID, "B1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 2, 10)

	store := NewSQLStore(f.db)
	sale := &domain.Sale{UserID: 1, PaymentMethod: "cash", Subtotal: 30, TaxAmount: 3.6, Total: 33.6}
	items := []domain.SaleItem{{
		ProductID: productID, BatchID: batchID, Quantity: 3,
		UnitPrice: 10, TaxRate: 12, TaxAmount: 3.6, LineTotal: 33.6,
	}}

	err := store.CommitSale(context.Background(), sale, items)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if got := f.saleCount(t); got != 0 {
		t.Errorf("sales written = %d, want 0", got)
	}
	if got := f.batchQuantity(t, batchID); got != 2 {
		t.Errorf("batch quantity = %d, want 2 (untouched)", got)
	}
}

func TestCreateSaleCancelledContextReleasesReservations(t *testing.T) {
	f := newFixture(t, nil)
	productID := f.seedProduct(t, "Paracetamol 500mg", 12)
	f.seedBatch(t, productID, "B1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.coordinator.CreateSale(ctx, CreateSaleInput{
		Items:  []CartLine{{ProductID: productID, Quantity: 1}},
		UserID: 1,
	}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if got := f.activeReservations(t); got != 0 {
		t.Errorf("reservations left = %d, want 0", got)
	}
	if got := f.saleCount(t); got != 0 {
		t.Errorf("sales written = %d, want 0", got)
	}
}
