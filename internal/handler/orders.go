package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/enum"
	"github.com/picada-pos/api/internal/service"
)

// Notes longer than a thermal ticket line wrap badly; cap them.
const maxNoteLength = 160

// OrderStore defines the database methods needed by order handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderItem(ctx context.Context, id uuid.UUID) (database.OrderItem, error)
	SetOrderItemQuantity(ctx context.Context, arg database.SetOrderItemQuantityParams) error
	DeleteOrderItem(ctx context.Context, id uuid.UUID) error
	DeleteOrderItemAddons(ctx context.Context, orderItemID uuid.UUID) error
	UpsertItemAddon(ctx context.Context, arg database.UpsertItemAddonParams) error
	SetOrderItemNote(ctx context.Context, arg database.SetOrderItemNoteParams) error
	SetServicePercentage(ctx context.Context, arg database.SetServicePercentageParams) error
	SetOrderState(ctx context.Context, arg database.SetOrderStateParams) (database.Order, error)
	CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	ReleaseTable(ctx context.Context, id uuid.UUID) error
}

// TotalsRecomputer recomputes and persists an order's derived totals.
// Satisfied by *service.TotalsEngine.
type TotalsRecomputer interface {
	Recompute(ctx context.Context, orderID uuid.UUID) (service.Totals, error)
}

// BillBuilder assembles the grouped bill view of an order.
// Satisfied by *service.TicketService.
type BillBuilder interface {
	BuildBill(ctx context.Context, orderID uuid.UUID) (service.BillDocument, error)
}

// OrderHandler handles the order line editing endpoints.
type OrderHandler struct {
	store  OrderStore
	totals TotalsRecomputer
	bills  BillBuilder
}

func NewOrderHandler(store OrderStore, totals TotalsRecomputer, bills BillBuilder) *OrderHandler {
	return &OrderHandler{store: store, totals: totals, bills: bills}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/{id}", h.Get)
	r.Post("/orders/{id}/items", h.AddItem)
	r.Patch("/orders/{id}/items/{itemID}", h.AdjustQuantity)
	r.Delete("/orders/{id}/items/{itemID}", h.RemoveItem)
	r.Put("/orders/{id}/items/{itemID}/addons", h.SetAddons)
	r.Put("/orders/{id}/items/{itemID}/note", h.SetNote)
	r.Post("/orders/{id}/service-charge", h.SetServiceCharge)
	r.Post("/orders/{id}/void", h.Void)
	r.Post("/orders/{id}/close", h.Close)
}

// --- Request / Response types ---

type orderResponse struct {
	ID            uuid.UUID       `json:"id"`
	Number        int32           `json:"number"`
	TableID       uuid.UUID       `json:"table_id"`
	WaiterID      uuid.UUID       `json:"waiter_id"`
	State         string          `json:"state"`
	ServicePct    int32           `json:"service_pct"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toOrderResponse(o database.Order) orderResponse {
	subtotal := database.DecimalFromNumeric(o.Subtotal)
	charge := database.DecimalFromNumeric(o.ServiceCharge)
	return orderResponse{
		ID:            o.ID,
		Number:        o.Number,
		TableID:       o.TableID,
		WaiterID:      o.WaiterID,
		State:         o.State,
		ServicePct:    o.ServicePct,
		Subtotal:      subtotal,
		ServiceCharge: charge,
		Total:         subtotal.Add(charge),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type addItemRequest struct {
	ProductID string   `json:"product_id"`
	AddonIDs  []string `json:"addon_ids"`
	Note      string   `json:"note"`
}

type adjustQuantityRequest struct {
	Op string `json:"op"`
}

type setAddonsRequest struct {
	AddonIDs []string `json:"addon_ids"`
}

type setNoteRequest struct {
	Note string `json:"note"`
}

type serviceChargeRequest struct {
	Percentage *int32 `json:"percentage"`
}

type orderDetailResponse struct {
	Order  orderResponse      `json:"order"`
	Table  int32              `json:"table_number"`
	Waiter string             `json:"waiter_name"`
	Lines  []service.BillLine `json:"lines"`
	Totals service.Totals     `json:"totals"`
}

// --- Handlers ---

// Get handles GET /orders/{id}: the order header plus its merged display
// lines and totals.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	doc, err := h.bills.BuildBill(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: build bill view: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		Order:  toOrderResponse(order),
		Table:  doc.TableNumber,
		Waiter: doc.WaiterName,
		Lines:  doc.Lines,
		Totals: doc.Totals,
	})
}

// AddItem handles POST /orders/{id}/items. Every add inserts a quantity-1
// row; merging happens at display time.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	if _, ok := h.mutableOrder(w, r, orderID); !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}
	addonIDs := make([]uuid.UUID, len(req.AddonIDs))
	for i, s := range req.AddonIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid addon_id: " + s})
			return
		}
		addonIDs[i] = id
	}

	item, err := h.store.CreateOrderItem(r.Context(), database.CreateOrderItemParams{
		OrderID:   orderID,
		ProductID: productID,
	})
	if err != nil {
		log.Printf("ERROR: create order item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	for _, addonID := range addonIDs {
		if err := h.store.UpsertItemAddon(r.Context(), database.UpsertItemAddonParams{
			OrderItemID: item.ID,
			AddonID:     addonID,
		}); err != nil {
			log.Printf("ERROR: attach addon: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	if note := truncateNote(req.Note); note != "" {
		if err := h.store.SetOrderItemNote(r.Context(), database.SetOrderItemNoteParams{
			ID:   item.ID,
			Note: note,
		}); err != nil {
			log.Printf("ERROR: set item note: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	h.respondWithTotals(w, r, orderID, http.StatusCreated, map[string]interface{}{"item_id": item.ID})
}

// AdjustQuantity handles PATCH /orders/{id}/items/{itemID} with
// {"op": "inc"|"dec"}. Decrementing to zero removes the row and its addons.
func (h *OrderHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	if _, ok := h.mutableOrder(w, r, orderID); !ok {
		return
	}
	item, ok := h.orderItem(w, r, orderID)
	if !ok {
		return
	}

	var req adjustQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	switch req.Op {
	case "inc":
		err := h.store.SetOrderItemQuantity(r.Context(), database.SetOrderItemQuantityParams{
			ID:       item.ID,
			Quantity: item.Quantity + 1,
		})
		if err != nil {
			log.Printf("ERROR: increment quantity: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	case "dec":
		if item.Quantity <= 1 {
			if !h.deleteItemRow(w, r, item.ID) {
				return
			}
		} else {
			err := h.store.SetOrderItemQuantity(r.Context(), database.SetOrderItemQuantityParams{
				ID:       item.ID,
				Quantity: item.Quantity - 1,
			})
			if err != nil {
				log.Printf("ERROR: decrement quantity: %v", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "op must be inc or dec"})
		return
	}

	h.respondWithTotals(w, r, orderID, http.StatusOK, nil)
}

// RemoveItem handles DELETE /orders/{id}/items/{itemID}.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	if _, ok := h.mutableOrder(w, r, orderID); !ok {
		return
	}
	item, ok := h.orderItem(w, r, orderID)
	if !ok {
		return
	}

	if !h.deleteItemRow(w, r, item.ID) {
		return
	}
	h.respondWithTotals(w, r, orderID, http.StatusOK, nil)
}

// SetAddons handles PUT /orders/{id}/items/{itemID}/addons, replacing the
// item's addon set.
func (h *OrderHandler) SetAddons(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	if _, ok := h.mutableOrder(w, r, orderID); !ok {
		return
	}
	item, ok := h.orderItem(w, r, orderID)
	if !ok {
		return
	}

	var req setAddonsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	addonIDs := make([]uuid.UUID, len(req.AddonIDs))
	for i, s := range req.AddonIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid addon_id: " + s})
			return
		}
		addonIDs[i] = id
	}

	if err := h.store.DeleteOrderItemAddons(r.Context(), item.ID); err != nil {
		log.Printf("ERROR: clear item addons: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, addonID := range addonIDs {
		if err := h.store.UpsertItemAddon(r.Context(), database.UpsertItemAddonParams{
			OrderItemID: item.ID,
			AddonID:     addonID,
		}); err != nil {
			log.Printf("ERROR: attach addon: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	h.respondWithTotals(w, r, orderID, http.StatusOK, nil)
}

// SetNote handles PUT /orders/{id}/items/{itemID}/note.
func (h *OrderHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	if _, ok := h.mutableOrder(w, r, orderID); !ok {
		return
	}
	item, ok := h.orderItem(w, r, orderID)
	if !ok {
		return
	}

	var req setNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.store.SetOrderItemNote(r.Context(), database.SetOrderItemNoteParams{
		ID:   item.ID,
		Note: truncateNote(req.Note),
	}); err != nil {
		log.Printf("ERROR: set item note: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetServiceCharge handles POST /orders/{id}/service-charge.
func (h *OrderHandler) SetServiceCharge(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	if _, ok := h.mutableOrder(w, r, orderID); !ok {
		return
	}

	var req serviceChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Percentage == nil || *req.Percentage < 0 || *req.Percentage > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "percentage must be between 0 and 100"})
		return
	}

	if err := h.store.SetServicePercentage(r.Context(), database.SetServicePercentageParams{
		OrderID: orderID,
		Pct:     *req.Percentage,
	}); err != nil {
		log.Printf("ERROR: set service percentage: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithTotals(w, r, orderID, http.StatusOK, nil)
}

// Void handles POST /orders/{id}/void, cancelling the order and freeing its
// table.
func (h *OrderHandler) Void(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	order, err := h.store.SetOrderState(r.Context(), database.SetOrderStateParams{
		ID:    orderID,
		State: enum.OrderStateVoided,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.respondStateConflict(w, r, orderID)
			return
		}
		log.Printf("ERROR: void order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := h.store.ReleaseTable(r.Context(), order.TableID); err != nil {
		log.Printf("ERROR: release table after void: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderResponse(order)})
}

// Close handles POST /orders/{id}/close: leaving the order screen. An order
// with no items is voided and its table freed; anything else is left as-is
// for the cashier.
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	order, ok := h.mutableOrder(w, r, orderID)
	if !ok {
		return
	}

	count, err := h.store.CountOrderItems(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: count order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if count > 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderResponse(order)})
		return
	}

	voided, err := h.store.SetOrderState(r.Context(), database.SetOrderStateParams{
		ID:    orderID,
		State: enum.OrderStateVoided,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.respondStateConflict(w, r, orderID)
			return
		}
		log.Printf("ERROR: void empty order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if err := h.store.ReleaseTable(r.Context(), voided.TableID); err != nil {
		log.Printf("ERROR: release table after close: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderResponse(voided)})
}

// --- Helpers ---

func parseID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// mutableOrder loads the order and rejects the request when it is already
// paid or voided.
func (h *OrderHandler) mutableOrder(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) (database.Order, bool) {
	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return database.Order{}, false
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Order{}, false
	}
	if service.IsTerminalOrderState(order.State) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is " + order.State})
		return database.Order{}, false
	}
	return order, true
}

// respondStateConflict reports why a state transition matched no rows.
func (h *OrderHandler) respondStateConflict(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) {
	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": "order is " + order.State})
}

// orderItem loads the item and verifies it belongs to the order in the URL.
func (h *OrderHandler) orderItem(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) (database.OrderItem, bool) {
	itemID, ok := parseID(w, r, "itemID", "item")
	if !ok {
		return database.OrderItem{}, false
	}

	item, err := h.store.GetOrderItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return database.OrderItem{}, false
		}
		log.Printf("ERROR: get order item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.OrderItem{}, false
	}
	if item.OrderID != orderID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
		return database.OrderItem{}, false
	}
	return item, true
}

func (h *OrderHandler) deleteItemRow(w http.ResponseWriter, r *http.Request, itemID uuid.UUID) bool {
	if err := h.store.DeleteOrderItemAddons(r.Context(), itemID); err != nil {
		log.Printf("ERROR: delete item addons: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return false
	}
	if err := h.store.DeleteOrderItem(r.Context(), itemID); err != nil {
		log.Printf("ERROR: delete item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return false
	}
	return true
}

// respondWithTotals recomputes totals after a mutation and folds them into
// the response.
func (h *OrderHandler) respondWithTotals(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, status int, extra map[string]interface{}) {
	totals, err := h.totals.Recompute(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: recompute totals: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	body := map[string]interface{}{"totals": totals}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func truncateNote(note string) string {
	runes := []rune(note)
	if len(runes) > maxNoteLength {
		return string(runes[:maxNoteLength])
	}
	return note
}
