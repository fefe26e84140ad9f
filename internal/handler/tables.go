package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/middleware"
	"github.com/picada-pos/api/internal/service"
)

// TableStore defines the database methods needed by table handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	ListTables(ctx context.Context) ([]database.Table, error)
	GetOpenOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error)
}

// TableClaimer opens an order on a table in one transaction.
// Satisfied by *service.TableService.
type TableClaimer interface {
	Claim(ctx context.Context, tableID, waiterID uuid.UUID) (*service.ClaimResult, error)
}

// TableHandler handles floor-plan endpoints: listing tables and opening an
// order by claiming one.
type TableHandler struct {
	store   TableStore
	claimer TableClaimer
}

func NewTableHandler(store TableStore, claimer TableClaimer) *TableHandler {
	return &TableHandler{store: store, claimer: claimer}
}

func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tables", h.List)
	r.Post("/tables/{id}/claim", h.Claim)
	r.Get("/tables/{id}/order", h.GetOrder)
}

type tableResponse struct {
	ID       uuid.UUID `json:"id"`
	Number   int32     `json:"number"`
	State    string    `json:"state"`
	WaiterID *uuid.UUID `json:"waiter_id,omitempty"`
}

func toTableResponse(t database.Table) tableResponse {
	resp := tableResponse{ID: t.ID, Number: t.Number, State: t.State}
	if t.WaiterID.Valid {
		id := uuid.UUID(t.WaiterID.Bytes)
		resp.WaiterID = &id
	}
	return resp
}

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListTables(r.Context())
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": resp})
}

// Claim handles POST /tables/{id}/claim. Claiming a free table opens a new
// order on it. Re-claiming a table that already has an active order is
// idempotent for the assigned waiter and a conflict for anyone else.
func (h *TableHandler) Claim(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	result, err := h.claimer.Claim(r.Context(), tableID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTableNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
		case errors.Is(err, service.ErrTableNotFree):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table is not free"})
		default:
			log.Printf("ERROR: claim table: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	if result.Existing {
		writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderResponse(result.Order)})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"table": toTableResponse(result.Table),
		"order": toOrderResponse(result.Order),
	})
}

// GetOrder handles GET /tables/{id}/order, resolving a table to its active
// order.
func (h *TableHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	order, err := h.store.GetOpenOrderByTable(r.Context(), tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table has no active order"})
			return
		}
		log.Printf("ERROR: get open order by table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderResponse(order)})
}
