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

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/enum"
)

// KDSStore defines the database methods needed by kitchen display handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type KDSStore interface {
	ListOpenKdsTickets(ctx context.Context) ([]database.KdsTicket, error)
	ListKdsItemsByTicket(ctx context.Context, ticketID uuid.UUID) ([]database.KdsItem, error)
	UpdateKdsTicketState(ctx context.Context, arg database.UpdateKdsTicketStateParams) (database.KdsTicket, error)
	UpdateKdsItemState(ctx context.Context, arg database.UpdateKdsItemStateParams) (database.KdsItem, error)
	GetKdsTicket(ctx context.Context, id uuid.UUID) (database.KdsTicket, error)
	AllKdsItemsReady(ctx context.Context, ticketID uuid.UUID) (bool, error)
}

// Broadcaster pushes an event to the displays watching a channel.
// Satisfied by *ws.Hub; nil disables pushes.
type Broadcaster interface {
	BroadcastEvent(channel string, eventType string, payload any)
}

// KDSHandler handles the kitchen display board.
type KDSHandler struct {
	store KDSStore
	hub   Broadcaster
}

func NewKDSHandler(store KDSStore, hub Broadcaster) *KDSHandler {
	return &KDSHandler{store: store, hub: hub}
}

func (h *KDSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/kds/tickets", h.ListOpen)
	r.Patch("/kds/tickets/{id}", h.UpdateTicket)
	r.Patch("/kds/items/{id}", h.UpdateItem)
}

type kdsTicketResponse struct {
	database.KdsTicket
	Items []database.KdsItem `json:"items"`
}

type updateStateRequest struct {
	State string `json:"state"`
}

// ListOpen handles GET /kds/tickets: every ticket still being worked,
// oldest first, with its items.
func (h *KDSHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.store.ListOpenKdsTickets(r.Context())
	if err != nil {
		log.Printf("ERROR: list kds tickets: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]kdsTicketResponse, len(tickets))
	for i, t := range tickets {
		items, err := h.store.ListKdsItemsByTicket(r.Context(), t.ID)
		if err != nil {
			log.Printf("ERROR: list kds items: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp[i] = kdsTicketResponse{KdsTicket: t, Items: items}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": resp})
}

// UpdateTicket handles PATCH /kds/tickets/{id}, moving a whole ticket
// through the board.
func (h *KDSHandler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := parseID(w, r, "id", "ticket")
	if !ok {
		return
	}

	state, ok := decodeTicketState(w, r)
	if !ok {
		return
	}

	ticket, err := h.store.UpdateKdsTicketState(r.Context(), database.UpdateKdsTicketStateParams{
		ID:    ticketID,
		State: state,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
			return
		}
		log.Printf("ERROR: update kds ticket: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if h.hub != nil {
		h.hub.BroadcastEvent(ticket.Channel, "ticket_updated", ticket)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticket": ticket})
}

// UpdateItem handles PATCH /kds/items/{id}. When the last item of a ticket
// turns READY the ticket is promoted to READY as well.
func (h *KDSHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseID(w, r, "id", "item")
	if !ok {
		return
	}

	state, ok := decodeTicketState(w, r)
	if !ok {
		return
	}

	item, err := h.store.UpdateKdsItemState(r.Context(), database.UpdateKdsItemStateParams{
		ID:    itemID,
		State: state,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		log.Printf("ERROR: update kds item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	ticket, err := h.store.GetKdsTicket(r.Context(), item.TicketID)
	if err != nil {
		log.Printf("ERROR: get kds ticket: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if state == enum.TicketStateReady && ticket.State != enum.TicketStateReady {
		ready, err := h.store.AllKdsItemsReady(r.Context(), item.TicketID)
		if err != nil {
			log.Printf("ERROR: check kds items ready: %v", err)
		} else if ready {
			ticket, err = h.store.UpdateKdsTicketState(r.Context(), database.UpdateKdsTicketStateParams{
				ID:    item.TicketID,
				State: enum.TicketStateReady,
			})
			if err != nil {
				log.Printf("ERROR: promote kds ticket: %v", err)
			}
		}
	}

	if h.hub != nil {
		h.hub.BroadcastEvent(ticket.Channel, "item_updated", map[string]any{
			"item":   item,
			"ticket": ticket,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"item": item, "ticket": ticket})
}

func decodeTicketState(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req updateStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return "", false
	}
	switch req.State {
	case enum.TicketStatePending, enum.TicketStatePreparing, enum.TicketStateReady:
		return req.State, true
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid state"})
		return "", false
	}
}
