package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/m/domain"
	"pharmapos/m/internal/catalog"
	"pharmapos/m/internal/pricing"
	"pharmapos/m/internal/sales"
	"pharmapos/m/internal/stock"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db          *sqlx.DB
	secret      string
	log         *zap.Logger
	catalog     *catalog.Service
	inventory   *stock.Inventory
	ledger      *stock.Ledger
	coordinator *sales.Coordinator
	reports     *sales.Reports
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string, log *zap.Logger, catalogSvc *catalog.Service,
	inventory *stock.Inventory, ledger *stock.Ledger,
	coordinator *sales.Coordinator, reports *sales.Reports) *Handler {
	return &Handler{
		db:          db,
		secret:      secret,
		log:         log,
		catalog:     catalogSvc,
		inventory:   inventory,
		ledger:      ledger,
		coordinator: coordinator,
		reports:     reports,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/products", func(r chi.Router) {
			r.Get("/", h.searchProducts)
			r.Post("/", h.createProduct)
			r.Get("/{id}", h.getProduct)
			r.Put("/{id}", h.updateProduct)
			r.Post("/{id}/batches", h.receiveBatch)
			r.Get("/{id}/batches", h.listBatches)
		})

		pr.Route("/stock", func(r chi.Router) {
			r.Get("/availability", h.availability)
			r.Get("/expiry-alerts", h.expiryAlerts)
			r.Get("/low", h.lowStock)
		})

		pr.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.createReservation)
			r.Delete("/{id}", h.releaseReservation)
		})

		pr.Post("/sales", h.createSale)

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/sales/daily", h.dailySales)
			r.Get("/sales/monthly", h.monthlySales)
			r.Get("/sales", h.salesReport)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string) (string, error) {
	claims := authClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userIDFromContext(r *http.Request) int64 {
	if val := r.Context().Value(ctxUserID); val != nil {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

// Auth Handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "username, email, password and role are required")
		return
	}
	if req.Role != domain.RoleManager && req.Role != domain.RoleCashier {
		respondError(w, http.StatusBadRequest, "role must be manager or cashier")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowx(`INSERT INTO users (username, email, password, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		req.Username, strings.ToLower(req.Email), hashed, req.Role).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "unique") {
			respondError(w, http.StatusConflict, "email already exists")
		} else {
			respondError(w, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return
	}

	token, err := h.generateToken(userID, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  domain.User{ID: userID, Username: req.Username, Email: strings.ToLower(req.Email), Role: req.Role},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user, `SELECT id, username, email, password, role FROM users WHERE email = $1`, strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid := userIDFromContext(r)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = $1 WHERE id = $2`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Product handlers

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleManager) {
		return
	}
	var req catalog.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	product, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleManager) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req catalog.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	product, err := h.catalog.Update(r.Context(), id, req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// Batch / stock handlers

type receiveBatchRequest struct {
	BatchNo         string  `json:"batch_no"`
	ManufactureDate string  `json:"manufacture_date"`
	ExpiryDate      string  `json:"expiry_date"`
	Quantity        int64   `json:"quantity"`
	CostPrice       float64 `json:"cost_price"`
	SellingPrice    float64 `json:"selling_price"`
}

func (h *Handler) receiveBatch(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req receiveBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BatchNo == "" {
		respondError(w, http.StatusBadRequest, "batch_no is required")
		return
	}
	manufacture, err := time.Parse("2006-01-02", req.ManufactureDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "manufacture_date must be in YYYY-MM-DD format")
		return
	}
	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "expiry_date must be in YYYY-MM-DD format")
		return
	}

	batch, err := h.inventory.Receive(r.Context(), stock.ReceiptInput{
		ProductID:       productID,
		BatchNo:         req.BatchNo,
		ManufactureDate: manufacture,
		ExpiryDate:      expiry,
		Quantity:        req.Quantity,
		CostPrice:       req.CostPrice,
		SellingPrice:    req.SellingPrice,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, batch)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	batches, err := h.inventory.ListBatches(r.Context(), productID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batches)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	var batchID *int64
	if raw := r.URL.Query().Get("batch_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid batch_id")
			return
		}
		batchID = &id
	}
	available, err := h.ledger.AvailableQuantity(r.Context(), productID, batchID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"batch_id":   batchID,
		"available":  available,
	})
}

func (h *Handler) expiryAlerts(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	alerts, err := h.inventory.ExpiryAlerts(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.LowStock(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// Reservation handlers

type reservationRequest struct {
	ProductID  int64  `json:"product_id"`
	BatchID    *int64 `json:"batch_id,omitempty"`
	Quantity   int64  `json:"quantity"`
	Kind       string `json:"kind"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := domain.ReservationKind(strings.ToUpper(req.Kind))
	switch kind {
	case domain.ReservationSale, domain.ReservationTransfer, domain.ReservationAdjustment:
	case "":
		kind = domain.ReservationSale
	default:
		respondError(w, http.StatusBadRequest, "kind must be SALE, TRANSFER or ADJUSTMENT")
		return
	}

	id, err := h.ledger.Reserve(r.Context(), stock.ReserveRequest{
		ProductID: req.ProductID,
		BatchID:   req.BatchID,
		Quantity:  req.Quantity,
		Kind:      kind,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
		UserID:    userIDFromContext(r),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"reservation_id": id})
}

func (h *Handler) releaseReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// Sales handlers

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req sales.CreateSaleInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = userIDFromContext(r)

	result, err := h.coordinator.CreateSale(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// Reports

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Daily(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Monthly(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleManager) {
		return
	}
	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
			return
		}
	}
	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
			return
		}
	}

	report, err := h.reports.List(r.Context(), startDate, endDate)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// respondServiceError maps service errors onto HTTP statuses. Stock
// conflicts carry the failing product and shortfall so the UI can
// re-prompt without re-running the whole cart.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var (
		notFound     *domain.NotFoundError
		badQty       *domain.InvalidQuantityError
		badDiscount  *domain.InvalidDiscountError
		insufficient *domain.InsufficientStockError
		shortfall    *domain.ShortfallError
		commitFailed *domain.CommitFailedError
	)
	switch {
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &badQty), errors.As(err, &badDiscount),
		errors.Is(err, sales.ErrEmptyCart),
		errors.Is(err, pricing.ErrNegativeUnitPrice),
		errors.Is(err, stock.ErrExpiryBeforeManufacture),
		errors.Is(err, catalog.ErrNameRequired),
		errors.Is(err, catalog.ErrBadGSTRate),
		errors.Is(err, catalog.ErrBadReorderLevel):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stock.ErrDuplicateBatchNo):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficient):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": insufficient.ProductID,
			"shortfall":  insufficient.Shortfall(),
		})
	case errors.As(err, &shortfall):
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": shortfall.ProductID,
			"shortfall":  shortfall.Unmet,
		})
	case errors.As(err, &commitFailed):
		h.log.Error("sale commit failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "sale could not be committed, no charge was applied")
	default:
		h.log.Error("internal error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
