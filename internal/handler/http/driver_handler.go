package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/fuel-delivery/internal/driver"
)

type DriverStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available busy offline"`
}

// LocationRequest uses pointers so that 0,0 is accepted while a missing
// coordinate is not.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"required,min=-180,max=180"`
}

type DriverHandler struct {
	service  driver.Service
	validate *validator.Validate
}

func NewDriverHandler(service driver.Service) *DriverHandler {
	return &DriverHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *DriverHandler) RegisterRoutes(router chi.Router) {
	router.Get("/drivers/available", h.handleListAvailable)
	router.Put("/drivers/me/location", h.handleUpdateLocation)
	router.Get("/drivers/{id}", h.handleGetDriver)
	router.Patch("/drivers/{id}/status", h.handleSetStatus)
	router.Get("/drivers/{id}/location", h.handleGetLocation)
}

func (h *DriverHandler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	drivers, err := h.service.ListAvailable(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, drivers)
}

func (h *DriverHandler) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *DriverHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req DriverStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	d, err := h.service.SetStatus(r.Context(), actor, id, driver.Status(req.Status))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

func (h *DriverHandler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req LocationRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	loc, err := h.service.UpdateLocation(r.Context(), actor, *req.Latitude, *req.Longitude)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, loc)
}

func (h *DriverHandler) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	loc, err := h.service.GetLocation(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, loc)
}
