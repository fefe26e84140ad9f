package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/enum"
	"github.com/picada-pos/api/internal/grouping"
)

var (
	ErrEmissionLocked = errors.New("emission already in progress for this order")
	ErrEmptyOrder     = errors.New("order has no items")
	ErrOrderTerminal  = errors.New("order is already closed")
	ErrNoPrinterRoute = errors.New("no active printer routes this channel")
)

type TicketStore interface {
	GetOrderHeader(ctx context.Context, id uuid.UUID) (database.OrderHeaderRow, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRow, error)
	ListOrderItemAddons(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemAddonRow, error)
	GetPrinterForChannel(ctx context.Context, channel string) (string, error)
	CreatePrintJob(ctx context.Context, arg database.CreatePrintJobParams) (database.PrintJob, error)
	CreateKdsTicket(ctx context.Context, arg database.CreateKdsTicketParams) (database.KdsTicket, error)
	CreateKdsItem(ctx context.Context, arg database.CreateKdsItemParams) (database.KdsItem, error)
	SetOrderState(ctx context.Context, arg database.SetOrderStateParams) (database.Order, error)
}

// Notifier pushes an event to every client watching a channel. The
// websocket hub implements it; a nil notifier disables pushes.
type Notifier interface {
	Broadcast(channel string, message []byte)
}

// BillLine is one rendered precuenta line: a merged group with its money.
type BillLine struct {
	Quantity  int32           `json:"quantity"`
	Name      string          `json:"name"`
	Note      string          `json:"note,omitempty"`
	Addons    []string        `json:"addons,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type BillDocument struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int32     `json:"order_number"`
	TableNumber int32     `json:"table_number"`
	WaiterName  string    `json:"waiter_name"`
	IssuedAt    time.Time  `json:"issued_at"`
	Lines       []BillLine `json:"lines"`
	Totals      Totals     `json:"totals"`
}

// TicketLine is one rendered comanda line. Kitchen tickets carry no money.
type TicketLine struct {
	Quantity int32    `json:"quantity"`
	Name     string   `json:"name"`
	Note     string   `json:"note,omitempty"`
	Addons   []string `json:"addons,omitempty"`
}

type TicketDocument struct {
	OrderID     uuid.UUID    `json:"order_id"`
	OrderNumber int32        `json:"order_number"`
	TableNumber int32        `json:"table_number"`
	WaiterName  string       `json:"waiter_name"`
	Channel     string       `json:"channel"`
	IssuedAt    time.Time    `json:"issued_at"`
	Lines       []TicketLine `json:"lines"`
}

// ChannelResult is the outcome of emitting one channel's ticket. A failed
// channel never blocks the others.
type ChannelResult struct {
	Channel string `json:"channel"`
	Printer string `json:"printer,omitempty"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
}

type EmissionResult struct {
	OrderID  uuid.UUID       `json:"order_id"`
	Channels []ChannelResult `json:"channels"`
	Printed  int             `json:"printed"`
	Failed   int             `json:"failed"`
}

// TicketService builds bill and kitchen ticket documents and queues them as
// print jobs. Emission is fan-out per channel with independent outcomes.
type TicketService struct {
	store       TicketStore
	lock        *EmissionLock
	kdsChannels map[string]bool
	notifier    Notifier
	now         func() time.Time
}

func NewTicketService(store TicketStore, lock *EmissionLock, kdsChannels []string, notifier Notifier) *TicketService {
	allowed := make(map[string]bool, len(kdsChannels))
	for _, ch := range kdsChannels {
		allowed[ch] = true
	}
	return &TicketService{
		store:       store,
		lock:        lock,
		kdsChannels: allowed,
		notifier:    notifier,
		now:         time.Now,
	}
}

// lineItems reads an order's rows and joins the addon attachments in,
// producing the shape the aggregator consumes.
func (s *TicketService) lineItems(ctx context.Context, orderID uuid.UUID) ([]grouping.LineItem, error) {
	rows, err := s.store.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	addonRows, err := s.store.ListOrderItemAddons(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}

	addonsByItem := make(map[uuid.UUID][]grouping.Addon, len(rows))
	for _, a := range addonRows {
		addonsByItem[a.OrderItemID] = append(addonsByItem[a.OrderItemID], grouping.Addon{
			ID:         a.AddonID,
			Name:       a.Name,
			ExtraPrice: database.DecimalFromNumeric(a.ExtraPrice),
		})
	}

	items := make([]grouping.LineItem, len(rows))
	for i, r := range rows {
		items[i] = grouping.LineItem{
			ID:          r.ID,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Channel:     r.Channel.String,
			Quantity:    r.Quantity,
			UnitPrice:   database.DecimalFromNumeric(r.UnitPrice),
			Note:        r.Note,
			Addons:      addonsByItem[r.ID],
		}
	}
	return items, nil
}

// BuildBill assembles the precuenta document from the current lines and
// the persisted totals. Callers recompute totals first when the lines may
// have changed.
func (s *TicketService) BuildBill(ctx context.Context, orderID uuid.UUID) (BillDocument, error) {
	header, err := s.store.GetOrderHeader(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BillDocument{}, ErrOrderNotFound
		}
		return BillDocument{}, fmt.Errorf("get order header: %w", err)
	}
	return s.buildBill(ctx, header)
}

func (s *TicketService) buildBill(ctx context.Context, header database.OrderHeaderRow) (BillDocument, error) {
	items, err := s.lineItems(ctx, header.ID)
	if err != nil {
		return BillDocument{}, err
	}
	groups, err := grouping.Aggregate(items)
	if err != nil {
		return BillDocument{}, err
	}

	lines := make([]BillLine, len(groups))
	for i, g := range groups {
		unit := g.UnitPrice
		names := make([]string, len(g.Addons))
		for j, a := range g.Addons {
			unit = unit.Add(a.ExtraPrice)
			names[j] = a.Name
		}
		lines[i] = BillLine{
			Quantity:  g.Quantity,
			Name:      g.ProductName,
			Note:      g.Note,
			Addons:    names,
			UnitPrice: unit,
			LineTotal: unit.Mul(decimal.NewFromInt32(g.Quantity)),
		}
	}

	subtotal := database.DecimalFromNumeric(header.Subtotal)
	charge := database.DecimalFromNumeric(header.ServiceCharge)
	return BillDocument{
		OrderID:     header.ID,
		OrderNumber: header.Number,
		TableNumber: header.TableNumber,
		WaiterName:  header.WaiterName,
		IssuedAt:    s.now(),
		Lines:       lines,
		Totals: Totals{
			Subtotal:      subtotal,
			ServicePct:    header.ServicePct,
			ServiceCharge: charge,
			Total:         subtotal.Add(charge),
		},
	}, nil
}

// EmitBill queues the precuenta on the cashier printer. The emission lock
// swallows duplicate triggers while a print is in flight. Paid and voided
// orders are past billing and rejected.
func (s *TicketService) EmitBill(ctx context.Context, orderID uuid.UUID) (database.PrintJob, error) {
	if !s.lock.TryAcquire(orderID) {
		return database.PrintJob{}, ErrEmissionLocked
	}

	header, err := s.store.GetOrderHeader(ctx, orderID)
	if err != nil {
		s.lock.Release(orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PrintJob{}, ErrOrderNotFound
		}
		return database.PrintJob{}, fmt.Errorf("get order header: %w", err)
	}
	if IsTerminalOrderState(header.State) {
		s.lock.Release(orderID)
		return database.PrintJob{}, ErrOrderTerminal
	}

	doc, err := s.buildBill(ctx, header)
	if err != nil {
		s.lock.Release(orderID)
		return database.PrintJob{}, err
	}
	if len(doc.Lines) == 0 {
		s.lock.Release(orderID)
		return database.PrintJob{}, ErrEmptyOrder
	}

	printer, err := s.store.GetPrinterForChannel(ctx, enum.ChannelCashier)
	if err != nil {
		s.lock.Release(orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PrintJob{}, ErrNoPrinterRoute
		}
		return database.PrintJob{}, fmt.Errorf("resolve printer: %w", err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		s.lock.Release(orderID)
		return database.PrintJob{}, fmt.Errorf("marshal bill: %w", err)
	}
	job, err := s.store.CreatePrintJob(ctx, database.CreatePrintJobParams{
		Kind:        enum.PrintKindBill,
		PrinterName: printer,
		Body:        body,
	})
	if err != nil {
		s.lock.Release(orderID)
		return database.PrintJob{}, fmt.Errorf("create print job: %w", err)
	}
	return job, nil
}

// EmitKitchenTickets fans the order out to its destination channels, one
// comanda per channel. Channels without a printer route fail individually;
// any successful channel moves an OPEN order to SENT. Allow-listed channels
// are also mirrored as kitchen display tickets.
func (s *TicketService) EmitKitchenTickets(ctx context.Context, orderID uuid.UUID) (EmissionResult, error) {
	if !s.lock.TryAcquire(orderID) {
		return EmissionResult{}, ErrEmissionLocked
	}

	header, err := s.store.GetOrderHeader(ctx, orderID)
	if err != nil {
		s.lock.Release(orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return EmissionResult{}, ErrOrderNotFound
		}
		return EmissionResult{}, fmt.Errorf("get order header: %w", err)
	}
	if header.State == enum.OrderStateVoided {
		s.lock.Release(orderID)
		return EmissionResult{}, ErrOrderTerminal
	}

	items, err := s.lineItems(ctx, orderID)
	if err != nil {
		s.lock.Release(orderID)
		return EmissionResult{}, err
	}
	if len(items) == 0 {
		s.lock.Release(orderID)
		return EmissionResult{}, ErrEmptyOrder
	}

	byChannel, err := grouping.ByChannel(items)
	if err != nil {
		s.lock.Release(orderID)
		return EmissionResult{}, err
	}

	result := EmissionResult{OrderID: orderID}
	for _, channel := range grouping.Channels(byChannel) {
		res := s.emitChannel(ctx, header, channel, byChannel[channel])
		if res.OK {
			result.Printed++
		} else {
			result.Failed++
		}
		result.Channels = append(result.Channels, res)
	}

	if result.Printed > 0 && header.State == enum.OrderStateOpen {
		if _, err := s.store.SetOrderState(ctx, database.SetOrderStateParams{
			ID:    orderID,
			State: enum.OrderStateSent,
		}); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			// The tickets are already on paper; the caller still gets the
			// per-channel outcome.
			log.Printf("ERROR: mark order %d sent: %v", header.Number, err)
		}
	}
	return result, nil
}

func (s *TicketService) emitChannel(ctx context.Context, header database.OrderHeaderRow, channel string, groups []grouping.Group) ChannelResult {
	printer, err := s.store.GetPrinterForChannel(ctx, channel)
	if err != nil {
		reason := ErrNoPrinterRoute.Error()
		if !errors.Is(err, pgx.ErrNoRows) {
			reason = err.Error()
		}
		log.Printf("ERROR: emit channel %s for order %d: %s", channel, header.Number, reason)
		return ChannelResult{Channel: channel, OK: false, Reason: reason}
	}

	lines := make([]TicketLine, len(groups))
	for i, g := range groups {
		names := make([]string, len(g.Addons))
		for j, a := range g.Addons {
			names[j] = a.Name
		}
		lines[i] = TicketLine{Quantity: g.Quantity, Name: g.ProductName, Note: g.Note, Addons: names}
	}
	doc := TicketDocument{
		OrderID:     header.ID,
		OrderNumber: header.Number,
		TableNumber: header.TableNumber,
		WaiterName:  header.WaiterName,
		Channel:     channel,
		IssuedAt:    s.now(),
		Lines:       lines,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return ChannelResult{Channel: channel, Printer: printer, OK: false, Reason: err.Error()}
	}
	if _, err := s.store.CreatePrintJob(ctx, database.CreatePrintJobParams{
		Kind:        enum.PrintKindKitchenTicket,
		PrinterName: printer,
		Body:        body,
	}); err != nil {
		log.Printf("ERROR: queue print job for channel %s: %v", channel, err)
		return ChannelResult{Channel: channel, Printer: printer, OK: false, Reason: err.Error()}
	}

	if s.kdsChannels[channel] {
		s.mirrorToKDS(ctx, header, channel, groups)
	}
	return ChannelResult{Channel: channel, Printer: printer, OK: true}
}

// mirrorToKDS creates the kitchen display ticket for a channel. Groups are
// unitized so each physical plate is tracked on its own. KDS failures are
// logged, never surfaced: the paper ticket already went out.
func (s *TicketService) mirrorToKDS(ctx context.Context, header database.OrderHeaderRow, channel string, groups []grouping.Group) {
	ticket, err := s.store.CreateKdsTicket(ctx, database.CreateKdsTicketParams{
		OrderID:     header.ID,
		OrderNumber: header.Number,
		TableNumber: header.TableNumber,
		Channel:     channel,
		WaiterName:  header.WaiterName,
	})
	if err != nil {
		log.Printf("ERROR: create kds ticket for channel %s: %v", channel, err)
		return
	}

	for _, g := range groups {
		names := make([]string, len(g.Addons))
		for j, a := range g.Addons {
			names[j] = a.Name
		}
		for i := int32(0); i < g.Quantity; i++ {
			if _, err := s.store.CreateKdsItem(ctx, database.CreateKdsItemParams{
				TicketID:    ticket.ID,
				ProductName: g.ProductName,
				Note:        g.Note,
				AddonNames:  names,
			}); err != nil {
				log.Printf("ERROR: create kds item %q: %v", g.ProductName, err)
			}
		}
	}

	if s.notifier != nil {
		event, err := json.Marshal(map[string]any{
			"type":   "ticket_created",
			"ticket": ticket,
		})
		if err == nil {
			s.notifier.Broadcast(channel, event)
		}
	}
}
