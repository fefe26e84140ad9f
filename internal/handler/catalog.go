package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/grouping"
)

// CatalogStore defines the database methods needed by catalog handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]database.ProductRow, error)
	ListAddons(ctx context.Context) ([]database.Addon, error)
}

// CatalogHandler serves the read-only product and addon catalog the order
// screens are built from.
type CatalogHandler struct {
	store CatalogStore
}

func NewCatalogHandler(store CatalogStore) *CatalogHandler {
	return &CatalogHandler{store: store}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Get("/addons", h.ListAddons)
}

type productResponse struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Channel string          `json:"channel"`
}

type addonResponse struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	ExtraPrice decimal.Decimal `json:"extra_price"`
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		channel := p.Channel.String
		if channel == "" {
			channel = grouping.FallbackChannel
		}
		resp[i] = productResponse{
			ID:      p.ID,
			Name:    p.Name,
			Price:   database.DecimalFromNumeric(p.Price),
			Channel: channel,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": resp})
}

func (h *CatalogHandler) ListAddons(w http.ResponseWriter, r *http.Request) {
	addons, err := h.store.ListAddons(r.Context())
	if err != nil {
		log.Printf("ERROR: list addons: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]addonResponse, len(addons))
	for i, a := range addons {
		resp[i] = addonResponse{
			ID:         a.ID,
			Name:       a.Name,
			ExtraPrice: database.DecimalFromNumeric(a.ExtraPrice),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"addons": resp})
}
