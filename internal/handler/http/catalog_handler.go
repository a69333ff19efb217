package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vasiliy-maslov/fuel-delivery/internal/catalog"
)

type CatalogHandler struct {
	service catalog.Service
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/vendors", h.handleListVendors)
	router.Get("/vendors/{id}/products", h.handleListProducts)
}

func (h *CatalogHandler) handleListVendors(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	vendors, err := h.service.ListVendors(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, vendors)
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	vendorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	products, err := h.service.ListProducts(r.Context(), actor, vendorID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, products)
}
