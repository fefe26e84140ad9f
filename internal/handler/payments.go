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
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/middleware"
	"github.com/picada-pos/api/internal/service"
)

// Payer settles an order. Satisfied by *service.PaymentService.
type Payer interface {
	Pay(ctx context.Context, req service.PayRequest) (*service.PayResult, error)
}

// KitchenEmitter fans an order out to its kitchen channels.
// Satisfied by *service.TicketService.
type KitchenEmitter interface {
	EmitKitchenTickets(ctx context.Context, orderID uuid.UUID) (service.EmissionResult, error)
}

// PaymentStore defines the database methods needed by payment handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type PaymentStore interface {
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// PaymentHandler handles order settlement.
type PaymentHandler struct {
	store    PaymentStore
	payments Payer
	tickets  KitchenEmitter
}

func NewPaymentHandler(store PaymentStore, payments Payer, tickets KitchenEmitter) *PaymentHandler {
	return &PaymentHandler{store: store, payments: payments, tickets: tickets}
}

func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders/{id}/payments", h.Pay)
	r.Get("/orders/{id}/payments", h.List)
}

type payRequest struct {
	Method     string `json:"method"`
	CashAmount string `json:"cash_amount"`
	CardAmount string `json:"card_amount"`
}

type paymentResponse struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	CashierID uuid.UUID       `json:"cashier_id"`
	Method    string          `json:"method"`
	Total     decimal.Decimal `json:"total"`
	Cash      decimal.Decimal `json:"cash_amount"`
	Card      decimal.Decimal `json:"card_amount"`
	Change    decimal.Decimal `json:"change_amount"`
	CreatedAt time.Time       `json:"created_at"`
}

func toPaymentResponse(p database.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		CashierID: p.CashierID,
		Method:    p.Method,
		Total:     database.DecimalFromNumeric(p.Total),
		Cash:      database.DecimalFromNumeric(p.CashAmount),
		Card:      database.DecimalFromNumeric(p.CardAmount),
		Change:    database.DecimalFromNumeric(p.ChangeAmount),
		CreatedAt: p.CreatedAt,
	}
}

type payResponse struct {
	PaymentID uuid.UUID               `json:"payment_id"`
	Order     orderResponse           `json:"order"`
	Totals    service.Totals          `json:"totals"`
	Change    decimal.Decimal         `json:"change"`
	Emission  *service.EmissionResult `json:"emission,omitempty"`
}

// Pay handles POST /orders/{id}/payments. Settlement commits first; the
// kitchen ticket fan-out runs after the commit and its failure never undoes
// a completed payment.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	cash, err := parseAmount(req.CashAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cash_amount"})
		return
	}
	card, err := parseAmount(req.CardAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid card_amount"})
		return
	}

	result, err := h.payments.Pay(r.Context(), service.PayRequest{
		OrderID:    orderID,
		CashierID:  claims.UserID,
		Method:     req.Method,
		CashAmount: cash,
		CardAmount: card,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrOrderNotPayable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not payable"})
		case errors.Is(err, service.ErrEmptyOrder):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "order has no items"})
		case errors.Is(err, service.ErrInvalidMethod):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment method"})
		case errors.Is(err, service.ErrInsufficientTender):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tendered amount is less than the total"})
		default:
			log.Printf("ERROR: pay order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := payResponse{
		PaymentID: result.Payment.ID,
		Order:     toOrderResponse(result.Order),
		Totals:    result.Totals,
		Change:    result.Change,
	}

	emission, err := h.tickets.EmitKitchenTickets(r.Context(), orderID)
	if err != nil {
		// The payment stands; the cashier re-emits manually if needed.
		log.Printf("ERROR: emit kitchen tickets after payment: %v", err)
	} else {
		resp.Emission = &emission
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders/{id}/payments, the settlement history of an
// order.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": resp})
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("negative amount")
	}
	return d, nil
}
