package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domcart "example.com/shopcore/internal/domain/cart"
	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	domuser "example.com/shopcore/internal/domain/user"
	"example.com/shopcore/internal/infra/idempotency"
	"example.com/shopcore/internal/infra/logging"
	authuc "example.com/shopcore/internal/usecase/auth"
	cartuc "example.com/shopcore/internal/usecase/cart"
	checkoutuc "example.com/shopcore/internal/usecase/checkout"
	orderuc "example.com/shopcore/internal/usecase/order"
	productuc "example.com/shopcore/internal/usecase/product"
)

type API struct {
	authSvc     *authuc.Service
	checkoutSvc *checkoutuc.Service
	orderSvc    *orderuc.Service
	cartSvc     *cartuc.Service
	productSvc  *productuc.Service
	idempotency idempotency.Store
	idemTTL     time.Duration
	health      func(ctx context.Context) error
	logger      *zap.Logger
	validator   *validator.Validate
}

type Dependencies struct {
	AuthService      *authuc.Service
	CheckoutService  *checkoutuc.Service
	OrderService     *orderuc.Service
	CartService      *cartuc.Service
	ProductService   *productuc.Service
	IdempotencyStore idempotency.Store // nil disables Idempotency-Key handling
	IdempotencyTTL   time.Duration
	HealthCheck      func(ctx context.Context) error
	Logger           *zap.Logger
}

func NewAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		authSvc:     deps.AuthService,
		checkoutSvc: deps.CheckoutService,
		orderSvc:    deps.OrderService,
		cartSvc:     deps.CartService,
		productSvc:  deps.ProductService,
		idempotency: deps.IdempotencyStore,
		idemTTL:     deps.IdempotencyTTL,
		health:      deps.HealthCheck,
		logger:      logger,
		validator:   validator.New(),
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger(a.logger))
	r.Use(logging.Recoverer(a.logger))
	r.Use(chimw.AllowContentType("application/json", "text/plain"))

	r.Get("/health", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", a.handleListProducts)
		r.Get("/products/{id}", a.handleGetProduct)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware)

			pr.Route("/orders", func(or chi.Router) {
				or.With(a.idempotent()).Post("/", a.handleCreateOrder)
				or.With(a.idempotent()).Post("/from-cart", a.handleCreateOrderFromCart)
				or.Get("/my-orders", a.handleListMyOrders)
				or.Get("/{id}", a.handleGetOrder)
				or.Patch("/{id}/cancel", a.handleCancelOrder)

				or.Group(func(ar chi.Router) {
					ar.Use(a.requireAdmin)
					ar.Get("/", a.handleListOrders)
					ar.Get("/stats/overview", a.handleOrderStats)
					ar.Patch("/{id}/status", a.handleUpdateOrderStatus)
					ar.Patch("/{id}/payment", a.handleUpdatePaymentStatus)
					ar.Patch("/{id}/tracking", a.handleAddTracking)
				})
			})

			pr.Route("/me/cart", func(cr chi.Router) {
				cr.Get("/", a.handleGetCart)
				cr.Delete("/", a.handleClearCart)
				cr.Post("/items", a.handleAddCartItem)
				cr.Patch("/items/{productId}", a.handleUpdateCartItem)
				cr.Delete("/items/{productId}", a.handleRemoveCartItem)
			})

			pr.Group(func(ar chi.Router) {
				ar.Use(a.requireAdmin)
				ar.Put("/admin/products/{id}/stock", a.handleSetStock)
			})
		})
	})

	return r
}

// idempotent scopes Idempotency-Key replay to the authenticated caller.
func (a *API) idempotent() func(http.Handler) http.Handler {
	if a.idempotency == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return idempotency.Middleware(a.idempotency,
		idempotency.WithTTL(a.idemTTL),
		idempotency.WithLogger(logging.NewPrintfAdapter(a.logger)),
		idempotency.WithIdentity(func(r *http.Request) string {
			if actor, ok := getActor(r.Context()); ok {
				return actor.UserID
			}
			return ""
		}),
	)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return a.validator.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func respondError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (a *API) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var shortage *domproduct.ShortageError
	switch {
	case errors.As(err, &shortage):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: domproduct.ErrInsufficientStock.Error(),
			Details: map[string]any{
				"product_id": shortage.ProductID,
				"available":  shortage.Available,
				"requested":  shortage.Requested,
			},
		})
	case errors.Is(err, domorder.ErrOrderNotFound),
		errors.Is(err, domproduct.ErrProductNotFound):
		respondError(w, http.StatusNotFound, err)
	case errors.Is(err, domcart.ErrCartEmpty),
		errors.Is(err, domcart.ErrItemNotInCart),
		errors.Is(err, domproduct.ErrProductUnavailable),
		errors.Is(err, domproduct.ErrInsufficientStock),
		errors.Is(err, domorder.ErrInvalidStatus),
		errors.Is(err, domorder.ErrInvalidPaymentStatus),
		errors.Is(err, domorder.ErrInvalidTransition):
		respondError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domorder.ErrCannotCancel):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, domorder.ErrInvalidPaymentMethod),
		errors.Is(err, domorder.ErrMissingTrackingNumber),
		errors.Is(err, domorder.ErrMissingShippingAddress),
		errors.Is(err, domorder.ErrEmptyOrderItems),
		errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, domproduct.ErrInvalidStock):
		respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, domuser.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domuser.ErrForbidden):
		respondError(w, http.StatusForbidden, err)
	default:
		a.logger.Error("request failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, errInternal)
	}
}

var errInternal = errors.New("internal server error")

func mapOrder(o *domorder.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"product_id":     it.ProductID,
			"product_name":   it.ProductName,
			"product_image":  it.ProductImage,
			"price":          it.Price,
			"discount_price": it.DiscountPrice,
			"final_price":    it.FinalPrice,
			"quantity":       it.Quantity,
			"item_total":     it.ItemTotal,
			"sku":            it.SKU,
			"category":       it.Category,
		})
	}
	history := make([]map[string]any, 0)
	for _, e := range o.History() {
		history = append(history, map[string]any{
			"status":     e.Status,
			"timestamp":  e.Timestamp,
			"note":       e.Note,
			"updated_by": e.UpdatedBy,
		})
	}

	out := map[string]any{
		"id":           o.ID,
		"order_number": o.OrderNumber,
		"user_id":      o.UserID,
		"items":        items,
		"summary": map[string]any{
			"subtotal":     o.Summary.Subtotal,
			"shipping":     o.Summary.Shipping,
			"tax":          o.Summary.Tax,
			"discount":     o.Summary.Discount,
			"total_amount": o.Summary.TotalAmount,
			"total_items":  o.Summary.TotalItems,
			"item_count":   o.Summary.ItemCount,
		},
		"shipping_address":    mapAddress(o.ShippingAddress),
		"payment_method":      o.PaymentMethod,
		"payment_status":      o.PaymentStatus,
		"status":              o.Status,
		"can_cancel":          o.Status.Cancellable(),
		"notes":               o.Notes,
		"tracking_number":     o.TrackingNumber,
		"carrier":             o.Carrier,
		"transaction_id":      o.TransactionID,
		"cancellation_reason": o.CancellationReason,
		"status_history":      history,
		"created_at":          o.CreatedAt,
		"updated_at":          o.UpdatedAt,
		"paid_at":             o.PaidAt,
		"shipped_at":          o.ShippedAt,
		"delivered_at":        o.DeliveredAt,
		"cancelled_at":        o.CancelledAt,
	}
	if o.BillingAddress != nil {
		out["billing_address"] = mapAddress(*o.BillingAddress)
	}
	return out
}

func mapAddress(addr domorder.Address) map[string]any {
	return map[string]any{
		"first_name": addr.FirstName,
		"last_name":  addr.LastName,
		"company":    addr.Company,
		"street":     addr.Street,
		"apartment":  addr.Apartment,
		"city":       addr.City,
		"state":      addr.State,
		"zip_code":   addr.ZipCode,
		"country":    addr.Country,
		"phone":      addr.Phone,
		"email":      addr.Email,
	}
}

func mapProduct(p *domproduct.Product) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"name":           p.Name,
		"description":    p.Description,
		"price":          p.Price,
		"discount_price": p.DiscountPrice,
		"final_price":    p.EffectivePrice(),
		"stock":          p.Stock,
		"images":         p.Images,
		"category":       p.Category,
		"brand":          p.Brand,
		"sku":            p.SKU,
		"is_active":      p.IsActive,
	}
}

func mapCart(cart *domcart.Cart) map[string]any {
	items := make([]map[string]any, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, map[string]any{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"name":       item.ProductName,
			"image":      item.ProductImage,
			"unit_price": item.UnitPrice,
			"line_total": item.LineTotal,
			"stock":      item.Stock,
		})
	}
	return map[string]any{
		"user_id":     cart.UserID,
		"items":       items,
		"total_items": cart.TotalItems,
		"subtotal":    cart.Subtotal,
	}
}
