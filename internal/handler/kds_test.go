package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/handler"
)

type mockKDSStore struct {
	tickets map[uuid.UUID]database.KdsTicket
	items   map[uuid.UUID]database.KdsItem
}

func newMockKDSStore() *mockKDSStore {
	return &mockKDSStore{
		tickets: make(map[uuid.UUID]database.KdsTicket),
		items:   make(map[uuid.UUID]database.KdsItem),
	}
}

func (m *mockKDSStore) ListOpenKdsTickets(_ context.Context) ([]database.KdsTicket, error) {
	var out []database.KdsTicket
	for _, t := range m.tickets {
		if t.State != "READY" {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockKDSStore) ListKdsItemsByTicket(_ context.Context, ticketID uuid.UUID) ([]database.KdsItem, error) {
	var out []database.KdsItem
	for _, it := range m.items {
		if it.TicketID == ticketID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockKDSStore) UpdateKdsTicketState(_ context.Context, arg database.UpdateKdsTicketStateParams) (database.KdsTicket, error) {
	t, ok := m.tickets[arg.ID]
	if !ok {
		return database.KdsTicket{}, pgx.ErrNoRows
	}
	t.State = arg.State
	m.tickets[arg.ID] = t
	return t, nil
}

func (m *mockKDSStore) UpdateKdsItemState(_ context.Context, arg database.UpdateKdsItemStateParams) (database.KdsItem, error) {
	it, ok := m.items[arg.ID]
	if !ok {
		return database.KdsItem{}, pgx.ErrNoRows
	}
	it.State = arg.State
	m.items[arg.ID] = it
	return it, nil
}

func (m *mockKDSStore) GetKdsTicket(_ context.Context, id uuid.UUID) (database.KdsTicket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return database.KdsTicket{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *mockKDSStore) AllKdsItemsReady(_ context.Context, ticketID uuid.UUID) (bool, error) {
	for _, it := range m.items {
		if it.TicketID == ticketID && it.State != "READY" {
			return false, nil
		}
	}
	return true, nil
}

type recordedEvent struct {
	Channel string
	Type    string
}

type mockBroadcaster struct {
	events []recordedEvent
}

func (m *mockBroadcaster) BroadcastEvent(channel string, eventType string, _ any) {
	m.events = append(m.events, recordedEvent{Channel: channel, Type: eventType})
}

func setupKDSRouter(store *mockKDSStore, hub *mockBroadcaster) *chi.Mux {
	var h *handler.KDSHandler
	if hub == nil {
		h = handler.NewKDSHandler(store, nil)
	} else {
		h = handler.NewKDSHandler(store, hub)
	}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func seedKdsTicket(store *mockKDSStore, channel string, itemStates ...string) (database.KdsTicket, []database.KdsItem) {
	t := database.KdsTicket{ID: uuid.New(), OrderID: uuid.New(), OrderNumber: 3, TableNumber: 7, Channel: channel, State: "PENDING"}
	store.tickets[t.ID] = t

	items := make([]database.KdsItem, len(itemStates))
	for i, state := range itemStates {
		it := database.KdsItem{ID: uuid.New(), TicketID: t.ID, ProductName: "Lomo a lo pobre", State: state}
		store.items[it.ID] = it
		items[i] = it
	}
	return t, items
}

func TestListOpenKdsTickets(t *testing.T) {
	store := newMockKDSStore()
	seedKdsTicket(store, "KITCHEN", "PENDING", "PENDING")
	done, _ := seedKdsTicket(store, "BAR")
	done.State = "READY"
	store.tickets[done.ID] = done

	router := setupKDSRouter(store, nil)

	rr := doRequest(t, router, "GET", "/kds/tickets", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	tickets := decodeResponse(t, rr)["tickets"].([]interface{})
	if len(tickets) != 1 {
		t.Fatalf("open tickets: got %d, want 1", len(tickets))
	}
	items := tickets[0].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Errorf("items: got %d, want 2", len(items))
	}
}

func TestUpdateKdsTicketState(t *testing.T) {
	store := newMockKDSStore()
	ticket, _ := seedKdsTicket(store, "KITCHEN", "PENDING")
	hub := &mockBroadcaster{}
	router := setupKDSRouter(store, hub)

	rr := doRequest(t, router, "PATCH", "/kds/tickets/"+ticket.ID.String(),
		map[string]string{"state": "PREPARING"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.tickets[ticket.ID].State; got != "PREPARING" {
		t.Errorf("state: got %s, want PREPARING", got)
	}
	if len(hub.events) != 1 || hub.events[0] != (recordedEvent{Channel: "KITCHEN", Type: "ticket_updated"}) {
		t.Errorf("events: got %v", hub.events)
	}
}

func TestUpdateKdsTicketState_Invalid(t *testing.T) {
	store := newMockKDSStore()
	ticket, _ := seedKdsTicket(store, "KITCHEN")
	router := setupKDSRouter(store, nil)

	rr := doRequest(t, router, "PATCH", "/kds/tickets/"+ticket.ID.String(),
		map[string]string{"state": "BURNED"})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUpdateKdsItem_LastReadyPromotesTicket(t *testing.T) {
	store := newMockKDSStore()
	ticket, items := seedKdsTicket(store, "KITCHEN", "READY", "PREPARING")
	hub := &mockBroadcaster{}
	router := setupKDSRouter(store, hub)

	rr := doRequest(t, router, "PATCH", "/kds/items/"+items[1].ID.String(),
		map[string]string{"state": "READY"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.tickets[ticket.ID].State; got != "READY" {
		t.Errorf("ticket state: got %s, want READY", got)
	}
	if len(hub.events) != 1 || hub.events[0].Type != "item_updated" {
		t.Errorf("events: got %v", hub.events)
	}
}

func TestUpdateKdsItem_OthersPendingKeepsTicket(t *testing.T) {
	store := newMockKDSStore()
	ticket, items := seedKdsTicket(store, "KITCHEN", "PENDING", "PENDING")
	router := setupKDSRouter(store, nil)

	rr := doRequest(t, router, "PATCH", "/kds/items/"+items[0].ID.String(),
		map[string]string{"state": "READY"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.tickets[ticket.ID].State; got != "PENDING" {
		t.Errorf("ticket state: got %s, want PENDING", got)
	}
}

func TestUpdateKdsItem_NotFound(t *testing.T) {
	router := setupKDSRouter(newMockKDSStore(), nil)

	rr := doRequest(t, router, "PATCH", "/kds/items/"+uuid.NewString(),
		map[string]string{"state": "READY"})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
