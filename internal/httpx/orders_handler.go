package httpx

import (
	"net/http"

	"github.com/adamdasovich/goldventure-sub001/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Orders *orders.Service
}

type TransitionReq struct {
	To              string `json:"to" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,gte=1"`
	TrackingNumber  string `json:"tracking_number" validate:"max=64"`
}

type TrackingReq struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=64"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Get("/status", h.getStatus)
		r.Post("/transitions", h.transition)
		r.Put("/tracking", h.setTracking)
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.Orders.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionReq
	if !decode(w, r, &req, false) {
		return
	}
	o, err := h.Orders.Transition(r.Context(), orders.TransitionCommand{
		OrderID:         chi.URLParam(r, "id"),
		To:              orders.Status(req.To),
		ExpectedVersion: req.ExpectedVersion,
		TrackingNumber:  req.TrackingNumber,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) setTracking(w http.ResponseWriter, r *http.Request) {
	var req TrackingReq
	if !decode(w, r, &req, false) {
		return
	}
	o, err := h.Orders.SetTracking(r.Context(), chi.URLParam(r, "id"), req.TrackingNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
