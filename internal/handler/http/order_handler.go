package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
	"github.com/vasiliy-maslov/fuel-delivery/internal/order"
)

type ItemPayload struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required"`
}

type OrderSummaryRequest struct {
	VendorID uuid.UUID     `json:"vendor_id" validate:"required"`
	Items    []ItemPayload `json:"items" validate:"required,dive"`
}

type CreateOrderRequest struct {
	CustomerID          uuid.UUID     `json:"customer_id,omitempty"`
	VendorID            uuid.UUID     `json:"vendor_id" validate:"required"`
	Items               []ItemPayload `json:"items" validate:"required,dive"`
	DeliveryAddress     string        `json:"delivery_address" validate:"required,max=500"`
	PhoneNumber         string        `json:"phone_number" validate:"required,min=7,max=20"`
	PaymentMethod       string        `json:"payment_method" validate:"required,oneof=cash card transfer"`
	SpecialInstructions string        `json:"special_instructions,omitempty" validate:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed preparing out_for_delivery delivered cancelled"`
	Notes  string `json:"notes,omitempty" validate:"max=500"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type AssignDriverRequest struct {
	DriverID uuid.UUID `json:"driver_id" validate:"required"`
}

type ConfirmPaymentRequest struct {
	AmountReceived *decimal.Decimal `json:"amount_received" validate:"required"`
	Method         string           `json:"method,omitempty"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders/summary", h.handleOrderSummary)
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Get("/orders/{id}/history", h.handleGetHistory)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
	router.Post("/orders/{id}/driver", h.handleAssignDriver)
	router.Post("/orders/{id}/payment", h.handleConfirmPayment)

	router.Get("/customers/me/orders", h.handleList(h.service.GetCustomerOrders))
	router.Get("/vendors/me/orders", h.handleList(h.service.GetVendorOrders))
	router.Get("/drivers/me/orders", h.handleList(h.service.GetDriverOrders))
	router.Get("/admin/orders", h.handleList(h.service.GetAllOrders))
}

func toItemRequests(items []ItemPayload) []order.ItemRequest {
	out := make([]order.ItemRequest, 0, len(items))
	for _, it := range items {
		out = append(out, order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func (h *OrderHandler) handleOrderSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req OrderSummaryRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	summary, err := h.service.GetOrderSummary(r.Context(), actor, req.VendorID, toItemRequests(req.Items))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.service.CreateOrder(r.Context(), actor, order.CreateOrderInput{
		CustomerID:          req.CustomerID,
		VendorID:            req.VendorID,
		Items:               toItemRequests(req.Items),
		DeliveryAddress:     req.DeliveryAddress,
		PhoneNumber:         req.PhoneNumber,
		PaymentMethod:       req.PaymentMethod,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	history, err := h.service.GetStatusHistory(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, history)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.UpdateOrderStatus(r.Context(), actor, id, order.Status(req.Status), req.Notes)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), actor, id, req.Reason)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req AssignDriverRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.AssignDriver(r.Context(), actor, id, req.DriverID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.ConfirmPayment(r.Context(), actor, id, *req.AmountReceived, req.Method)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

type listFunc func(ctx context.Context, actor auth.Actor, f order.Filter) (*order.Page, error)

// parseFilter reads the listing query string. Unset numbers stay zero so
// the service applies its defaults.
func parseFilter(r *http.Request) (order.Filter, map[string]string) {
	q := r.URL.Query()
	f := order.Filter{
		Status:    q.Get("status"),
		DateRange: order.DateRange(q.Get("date_range")),
		Search:    q.Get("search"),
	}
	details := map[string]string{}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"limit", &f.Limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			details[p.name] = "must be an integer"
			continue
		}
		*p.dst = n
	}
	return f, details
}

func (h *OrderHandler) handleList(list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		f, details := parseFilter(r)
		if len(details) > 0 {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: "Validation failed", Details: details})
			return
		}

		page, err := list(r.Context(), actor, f)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to list orders")
			respondWithServiceError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, page)
	}
}
