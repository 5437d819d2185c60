package httpx

import (
	"net/http"

	"github.com/adamdasovich/goldventure-sub001/internal/cart"
	"github.com/adamdasovich/goldventure-sub001/internal/catalog"
	"github.com/adamdasovich/goldventure-sub001/internal/checkout"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type CartsHandler struct {
	Carts    *cart.Service
	Catalog  catalog.Catalog
	Checkout *checkout.Orchestrator
}

type AddItemReq struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	VariantID string `json:"variant_id" validate:"max=64"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=1000"`
}

type UpdateQuantityReq struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=1000"`
}

type CheckoutReq struct {
	PaymentMethod string `json:"payment_method" validate:"max=64"`
}

func (h *CartsHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
		r.Post("/checkout", h.checkout)
	})
}

func (h *CartsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CartsHandler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// respondCart answers a mutation with the repriced cart.
func (h *CartsHandler) respondCart(w http.ResponseWriter, r *http.Request, code int) {
	v, err := h.Carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

func (h *CartsHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if !decode(w, r, &req, false) {
		return
	}
	if _, err := h.Carts.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.VariantID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusCreated)
}

func (h *CartsHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityReq
	if !decode(w, r, &req, false) {
		return
	}
	if err := h.Carts.UpdateQuantity(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "itemID"), *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *CartsHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *CartsHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if !decode(w, r, &req, true) {
		return
	}
	o, err := h.Checkout.Checkout(r.Context(), checkout.Request{
		CartID:         chi.URLParam(r, "cartID"),
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}
