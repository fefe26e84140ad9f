package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/service"
)

// BillEmitter queues a bill print. Satisfied by *service.TicketService.
type BillEmitter interface {
	EmitBill(ctx context.Context, orderID uuid.UUID) (database.PrintJob, error)
}

// PrintingHandler handles the two print triggers: the customer bill and the
// kitchen ticket fan-out.
type PrintingHandler struct {
	bills   BillEmitter
	tickets KitchenEmitter
	totals  TotalsRecomputer
}

func NewPrintingHandler(bills BillEmitter, tickets KitchenEmitter, totals TotalsRecomputer) *PrintingHandler {
	return &PrintingHandler{bills: bills, tickets: tickets, totals: totals}
}

func (h *PrintingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders/{id}/bill/print", h.PrintBill)
	r.Post("/orders/{id}/tickets", h.EmitTickets)
}

// PrintBill handles POST /orders/{id}/bill/print. A duplicate trigger
// inside the lock window is answered 202: the first print is already on its
// way, nothing failed.
func (h *PrintingHandler) PrintBill(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	// Print what the lines add up to now, not what some earlier mutation
	// left behind.
	if _, err := h.totals.Recompute(r.Context(), orderID); err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: recompute before bill print: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	job, err := h.bills.EmitBill(r.Context(), orderID)
	if err != nil {
		h.respondEmissionError(w, err, "print bill")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"job_id":  job.ID,
		"printer": job.PrinterName,
	})
}

// EmitTickets handles POST /orders/{id}/tickets, the manual comanda
// trigger. 200 when every channel printed, 207 on a partial failure, 500
// when nothing went out.
func (h *PrintingHandler) EmitTickets(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	result, err := h.tickets.EmitKitchenTickets(r.Context(), orderID)
	if err != nil {
		h.respondEmissionError(w, err, "emit tickets")
		return
	}

	status := http.StatusOK
	switch {
	case result.Printed == 0:
		status = http.StatusInternalServerError
	case result.Failed > 0:
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

func (h *PrintingHandler) respondEmissionError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrEmissionLocked):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already printing"})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrOrderTerminal):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already closed"})
	case errors.Is(err, service.ErrEmptyOrder):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "order has no items"})
	case errors.Is(err, service.ErrNoPrinterRoute):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no printer configured for this channel"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
