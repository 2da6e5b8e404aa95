package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0,max=10000"`
}

type updateCartItemRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0,max=10000"`
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	cart, err := a.cartSvc.GetCart(r.Context(), actor.UserID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())

	var req addCartItemRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.cartSvc.AddToCart(r.Context(), actor.UserID, req.ProductID, req.Quantity); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (a *API) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())

	var req updateCartItemRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.cartSvc.UpdateQuantity(r.Context(), actor.UserID, chi.URLParam(r, "productId"), req.Quantity); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	if err := a.cartSvc.RemoveItem(r.Context(), actor.UserID, chi.URLParam(r, "productId")); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	actor, _ := getActor(r.Context())
	if err := a.cartSvc.Clear(r.Context(), actor.UserID); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
