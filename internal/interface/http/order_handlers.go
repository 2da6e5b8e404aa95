package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	checkoutuc "example.com/shopcore/internal/usecase/checkout"
)

type addressRequest struct {
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Company   string `json:"company" validate:"max=100"`
	Street    string `json:"street" validate:"required,min=5,max=200"`
	Apartment string `json:"apartment" validate:"max=50"`
	City      string `json:"city" validate:"required,max=50"`
	State     string `json:"state" validate:"required,max=50"`
	ZipCode   string `json:"zip_code" validate:"required,min=3,max=20"`
	Country   string `json:"country" validate:"required,min=2,max=50"`
	Phone     string `json:"phone" validate:"required,min=10,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
}

func (r *addressRequest) toDomain() *domorder.Address {
	if r == nil {
		return nil
	}
	return &domorder.Address{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Company:   r.Company,
		Street:    r.Street,
		Apartment: r.Apartment,
		City:      r.City,
		State:     r.State,
		ZipCode:   r.ZipCode,
		Country:   r.Country,
		Phone:     r.Phone,
		Email:     r.Email,
	}
}

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0,max=10000"`
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items" validate:"omitempty,dive"`
	ProductIDs      []string           `json:"product_ids" validate:"omitempty,dive,required"`
	ShippingAddress *addressRequest    `json:"shipping_address" validate:"required"`
	BillingAddress  *addressRequest    `json:"billing_address" validate:"omitempty"`
	PaymentMethod   string             `json:"payment_method" validate:"required"`
	PaymentStatus   string             `json:"payment_status"`
	Notes           string             `json:"notes" validate:"max=500"`
}

type createFromCartRequest struct {
	ShippingAddress *addressRequest `json:"shipping_address" validate:"required"`
	BillingAddress  *addressRequest `json:"billing_address" validate:"omitempty"`
	PaymentMethod   string          `json:"payment_method" validate:"required"`
	Notes           string          `json:"notes" validate:"max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"max=200"`
}

type trackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier" validate:"max=100"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())

	var req createOrderRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	items := make([]domproduct.StockLine, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domproduct.StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := a.checkoutSvc.CreateOrder(r.Context(), checkoutuc.CreateOrderInput{
		UserID:          actor.UserID,
		Items:           items,
		ProductIDs:      req.ProductIDs,
		ShippingAddress: *req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		PaymentMethod:   domorder.PaymentMethod(req.PaymentMethod),
		PaymentStatus:   domorder.PaymentStatus(req.PaymentStatus),
		Notes:           req.Notes,
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrder(order))
}

func (a *API) handleCreateOrderFromCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())

	var req createFromCartRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	order, err := a.checkoutSvc.CreateOrderFromCart(r.Context(), checkoutuc.CreateFromCartInput{
		UserID:          actor.UserID,
		ShippingAddress: *req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		PaymentMethod:   domorder.PaymentMethod(req.PaymentMethod),
		Notes:           req.Notes,
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrder(order))
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	order, err := a.orderSvc.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (a *API) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	filter, err := parseOrderFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	orders, err := a.orderSvc.ListForUser(r.Context(), actor, filter)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	filter, err := parseOrderFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	filter.UserID = r.URL.Query().Get("user_id")
	orders, err := a.orderSvc.ListAll(r.Context(), actor, filter)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (a *API) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	stats, err := a.orderSvc.Stats(r.Context(), actor)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_orders":   stats.TotalOrders,
		"total_revenue":  stats.TotalRevenue,
		"status_counts":  stats.StatusCounts,
		"payment_counts": stats.PaymentCounts,
	})
}

func (a *API) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	var req updateStatusRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	status, err := domorder.ParseStatus(req.Status)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	order, err := a.orderSvc.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), status, req.Note)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (a *API) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	var req updatePaymentRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	ps, err := domorder.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	order, err := a.orderSvc.UpdatePaymentStatus(r.Context(), actor, chi.URLParam(r, "id"), ps, req.TransactionID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (a *API) handleAddTracking(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	var req trackingRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.orderSvc.AddTracking(r.Context(), actor, chi.URLParam(r, "id"), req.TrackingNumber, req.Carrier)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	var req cancelRequest
	// The body is optional; an empty one cancels with the default reason.
	if err := a.decodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.orderSvc.Cancel(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

var errInvalidLimit = errors.New("limit must be an integer")

func parseOrderFilter(r *http.Request) (domorder.ListFilter, error) {
	q := r.URL.Query()
	filter := domorder.ListFilter{
		Status:        domorder.Status(q.Get("status")),
		PaymentStatus: domorder.PaymentStatus(q.Get("payment_status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errInvalidLimit
		}
		filter.Limit = limit
	}
	return filter, nil
}

func writeOrders(w http.ResponseWriter, orders []*domorder.Order) {
	resp := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, mapOrder(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": resp})
}
