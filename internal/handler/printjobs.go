package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/enum"
)

// PrintJobStore defines the database methods needed by the printer agent
// endpoints. Satisfied by *database.Queries.
type PrintJobStore interface {
	ListPendingPrintJobs(ctx context.Context, printerName string) ([]database.PrintJob, error)
	AckPrintJob(ctx context.Context, arg database.AckPrintJobParams) (database.PrintJob, error)
}

// PrintJobHandler serves the polled print queue. The agent running next to
// the physical printers polls for pending jobs and acknowledges each one
// after feeding it to the device.
type PrintJobHandler struct {
	store PrintJobStore
}

func NewPrintJobHandler(store PrintJobStore) *PrintJobHandler {
	return &PrintJobHandler{store: store}
}

func (h *PrintJobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/print-jobs/pending", h.ListPending)
	r.Post("/print-jobs/{id}/ack", h.Ack)
}

type printJobResponse struct {
	ID      uuid.UUID       `json:"id"`
	Kind    string          `json:"kind"`
	Printer string          `json:"printer"`
	Body    json.RawMessage `json:"body"`
}

type ackRequest struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ListPending handles GET /print-jobs/pending?printer=NAME.
func (h *PrintJobHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	printer := r.URL.Query().Get("printer")
	if printer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "printer is required"})
		return
	}

	jobs, err := h.store.ListPendingPrintJobs(r.Context(), printer)
	if err != nil {
		log.Printf("ERROR: list pending print jobs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]printJobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = printJobResponse{
			ID:      j.ID,
			Kind:    j.Kind,
			Printer: j.PrinterName,
			Body:    json.RawMessage(j.Body),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": resp})
}

// Ack handles POST /print-jobs/{id}/ack, recording the print outcome.
func (h *PrintJobHandler) Ack(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseID(w, r, "id", "job")
	if !ok {
		return
	}

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	arg := database.AckPrintJobParams{ID: jobID, State: enum.PrintJobStatePrinted}
	if !req.OK {
		arg.State = enum.PrintJobStateError
		arg.Error = pgtype.Text{String: req.Error, Valid: req.Error != ""}
	}

	job, err := h.store.AckPrintJob(r.Context(), arg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		log.Printf("ERROR: ack print job: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"id": job.ID, "state": job.State})
}
