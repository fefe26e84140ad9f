package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/handler"
	"github.com/picada-pos/api/internal/service"
)

type mockOrderStore struct {
	orders     map[uuid.UUID]database.Order
	items      map[uuid.UUID]database.OrderItem
	itemAddons map[uuid.UUID][]uuid.UUID // item ID -> addon IDs
	notes      map[uuid.UUID]string
	released   []uuid.UUID // table IDs freed via ReleaseTable
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		orders:     make(map[uuid.UUID]database.Order),
		items:      make(map[uuid.UUID]database.OrderItem),
		itemAddons: make(map[uuid.UUID][]uuid.UUID),
		notes:      make(map[uuid.UUID]string),
	}
}

func (m *mockOrderStore) GetOrder(_ context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockOrderStore) CreateOrderItem(_ context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	it := database.OrderItem{
		ID:        uuid.New(),
		OrderID:   arg.OrderID,
		ProductID: arg.ProductID,
		Quantity:  1,
	}
	m.items[it.ID] = it
	return it, nil
}

func (m *mockOrderStore) GetOrderItem(_ context.Context, id uuid.UUID) (database.OrderItem, error) {
	it, ok := m.items[id]
	if !ok {
		return database.OrderItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *mockOrderStore) SetOrderItemQuantity(_ context.Context, arg database.SetOrderItemQuantityParams) error {
	it := m.items[arg.ID]
	it.Quantity = arg.Quantity
	m.items[arg.ID] = it
	return nil
}

func (m *mockOrderStore) DeleteOrderItem(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockOrderStore) DeleteOrderItemAddons(_ context.Context, orderItemID uuid.UUID) error {
	delete(m.itemAddons, orderItemID)
	return nil
}

func (m *mockOrderStore) UpsertItemAddon(_ context.Context, arg database.UpsertItemAddonParams) error {
	for _, id := range m.itemAddons[arg.OrderItemID] {
		if id == arg.AddonID {
			return nil
		}
	}
	m.itemAddons[arg.OrderItemID] = append(m.itemAddons[arg.OrderItemID], arg.AddonID)
	return nil
}

func (m *mockOrderStore) SetOrderItemNote(_ context.Context, arg database.SetOrderItemNoteParams) error {
	m.notes[arg.ID] = arg.Note
	return nil
}

func (m *mockOrderStore) SetServicePercentage(_ context.Context, arg database.SetServicePercentageParams) error {
	o := m.orders[arg.OrderID]
	o.ServicePct = arg.Pct
	m.orders[arg.OrderID] = o
	return nil
}

func (m *mockOrderStore) SetOrderState(_ context.Context, arg database.SetOrderStateParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || (o.State != "OPEN" && o.State != "SENT") {
		return database.Order{}, pgx.ErrNoRows
	}
	o.State = arg.State
	m.orders[arg.ID] = o
	return o, nil
}

func (m *mockOrderStore) CountOrderItems(_ context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (m *mockOrderStore) ReleaseTable(_ context.Context, id uuid.UUID) error {
	m.released = append(m.released, id)
	return nil
}

type stubTotals struct {
	totals service.Totals
	calls  int
}

func (s *stubTotals) Recompute(_ context.Context, _ uuid.UUID) (service.Totals, error) {
	s.calls++
	return s.totals, nil
}

type stubBills struct {
	doc service.BillDocument
}

func (s *stubBills) BuildBill(_ context.Context, _ uuid.UUID) (service.BillDocument, error) {
	return s.doc, nil
}

func setupOrderRouter(store *mockOrderStore, totals *stubTotals, bills *stubBills) *chi.Mux {
	if totals == nil {
		totals = &stubTotals{}
	}
	if bills == nil {
		bills = &stubBills{}
	}
	h := handler.NewOrderHandler(store, totals, bills)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func openOrder(store *mockOrderStore) database.Order {
	o := database.Order{ID: uuid.New(), Number: 1, TableID: uuid.New(), WaiterID: uuid.New(), State: "OPEN", ServicePct: 10}
	store.orders[o.ID] = o
	return o
}

func TestGetOrder_WithLines(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	bills := &stubBills{doc: service.BillDocument{
		TableNumber: 4,
		WaiterName:  "Ana",
		Lines: []service.BillLine{
			{Quantity: 2, Name: "Pisco Sour", LineTotal: decimal.NewFromInt(9000)},
		},
	}}
	router := setupOrderRouter(store, nil, bills)

	rr := doRequest(t, router, "GET", "/orders/"+order.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["waiter_name"] != "Ana" {
		t.Errorf("waiter_name: got %v", resp["waiter_name"])
	}
	lines := resp["lines"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("lines: got %d, want 1", len(lines))
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	router := setupOrderRouter(newMockOrderStore(), nil, nil)

	rr := doRequest(t, router, "GET", "/orders/"+uuid.NewString(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestAddItem(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	totals := &stubTotals{totals: service.Totals{Subtotal: decimal.NewFromInt(4500)}}
	router := setupOrderRouter(store, totals, nil)

	addonID := uuid.New()
	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/items", map[string]interface{}{
		"product_id": uuid.NewString(),
		"addon_ids":  []string{addonID.String()},
		"note":       "  Sin Cebolla ",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if len(store.items) != 1 {
		t.Fatalf("items created: got %d, want 1", len(store.items))
	}
	resp := decodeResponse(t, rr)
	itemID, err := uuid.Parse(resp["item_id"].(string))
	if err != nil {
		t.Fatalf("item_id: %v", err)
	}
	if got := store.itemAddons[itemID]; len(got) != 1 || got[0] != addonID {
		t.Errorf("addons attached: got %v, want [%s]", got, addonID)
	}
	if store.notes[itemID] != "  Sin Cebolla " {
		t.Errorf("note: got %q", store.notes[itemID])
	}
	if totals.calls != 1 {
		t.Errorf("totals recomputed %d times, want 1", totals.calls)
	}
	if _, ok := resp["totals"]; !ok {
		t.Error("expected totals in the response")
	}
}

func TestAddItem_InvalidProduct(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/items", map[string]interface{}{
		"product_id": "not-a-uuid",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAddItem_TerminalOrder(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	order.State = "PAID"
	store.orders[order.ID] = order
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/items", map[string]interface{}{
		"product_id": uuid.NewString(),
	})

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestAdjustQuantity_Increment(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	item := database.OrderItem{ID: uuid.New(), OrderID: order.ID, Quantity: 1}
	store.items[item.ID] = item
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/items/"+item.ID.String(),
		map[string]string{"op": "inc"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.items[item.ID].Quantity; got != 2 {
		t.Errorf("quantity: got %d, want 2", got)
	}
}

func TestAdjustQuantity_DecrementToZeroDeletesRow(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	item := database.OrderItem{ID: uuid.New(), OrderID: order.ID, Quantity: 1}
	store.items[item.ID] = item
	store.itemAddons[item.ID] = []uuid.UUID{uuid.New()}
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/items/"+item.ID.String(),
		map[string]string{"op": "dec"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if _, ok := store.items[item.ID]; ok {
		t.Error("decrementing a quantity-1 item must delete the row")
	}
	if _, ok := store.itemAddons[item.ID]; ok {
		t.Error("deleting an item must also delete its addons")
	}
}

func TestAdjustQuantity_UnknownOp(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	item := database.OrderItem{ID: uuid.New(), OrderID: order.ID, Quantity: 1}
	store.items[item.ID] = item
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/items/"+item.ID.String(),
		map[string]string{"op": "double"})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAdjustQuantity_ItemOfAnotherOrder(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	other := openOrder(store)
	item := database.OrderItem{ID: uuid.New(), OrderID: other.ID, Quantity: 1}
	store.items[item.ID] = item
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/items/"+item.ID.String(),
		map[string]string{"op": "inc"})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSetAddons_ReplacesSet(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	item := database.OrderItem{ID: uuid.New(), OrderID: order.ID, Quantity: 1}
	store.items[item.ID] = item
	store.itemAddons[item.ID] = []uuid.UUID{uuid.New(), uuid.New()}
	router := setupOrderRouter(store, nil, nil)

	newAddon := uuid.New()
	rr := doRequest(t, router, "PUT", "/orders/"+order.ID.String()+"/items/"+item.ID.String()+"/addons",
		map[string]interface{}{"addon_ids": []string{newAddon.String()}})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.itemAddons[item.ID]; len(got) != 1 || got[0] != newAddon {
		t.Errorf("addons: got %v, want [%s]", got, newAddon)
	}
}

func TestSetServiceCharge_Validation(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	router := setupOrderRouter(store, nil, nil)

	for _, body := range []map[string]interface{}{
		{"percentage": 150},
		{"percentage": -5},
		{},
	} {
		rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/service-charge", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %v: got %d, want %d", body, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestSetServiceCharge(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	totals := &stubTotals{}
	router := setupOrderRouter(store, totals, nil)

	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/service-charge",
		map[string]interface{}{"percentage": 0})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.orders[order.ID].ServicePct; got != 0 {
		t.Errorf("service pct: got %d, want 0", got)
	}
	if totals.calls != 1 {
		t.Errorf("totals recomputed %d times, want 1", totals.calls)
	}
}

func TestVoidOrder(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/void", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.orders[order.ID].State; got != "VOIDED" {
		t.Errorf("state: got %s, want VOIDED", got)
	}
	if len(store.released) != 1 || store.released[0] != order.TableID {
		t.Errorf("released tables: got %v, want [%s]", store.released, order.TableID)
	}

	// Voiding again loses the state race and reports the conflict.
	again := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/void", nil)
	if again.Code != http.StatusConflict {
		t.Errorf("second void: got %d, want %d", again.Code, http.StatusConflict)
	}
}

func TestCloseOrder_WithItemsIsNoOp(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	item := database.OrderItem{ID: uuid.New(), OrderID: order.ID, Quantity: 1}
	store.items[item.ID] = item
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/close", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.orders[order.ID].State; got != "OPEN" {
		t.Errorf("state: got %s, want OPEN", got)
	}
	if len(store.released) != 0 {
		t.Errorf("no table should be released, got %v", store.released)
	}
}

func TestCloseOrder_EmptyOrderIsVoided(t *testing.T) {
	store := newMockOrderStore()
	order := openOrder(store)
	router := setupOrderRouter(store, nil, nil)

	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/close", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.orders[order.ID].State; got != "VOIDED" {
		t.Errorf("state: got %s, want VOIDED", got)
	}
	if len(store.released) != 1 {
		t.Errorf("released tables: got %v, want one entry", store.released)
	}
}
