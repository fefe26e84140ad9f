package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	Username     string
	FullName     string
	Role         string
	PasswordHash string
	Active       bool
}

type Table struct {
	ID       uuid.UUID
	Number   int32
	State    string
	WaiterID pgtype.UUID
}

type Product struct {
	ID         uuid.UUID
	Name       string
	Price      pgtype.Numeric
	CategoryID uuid.UUID
}

// ProductRow carries the product plus the kitchen channel its category
// routes to.
type ProductRow struct {
	ID      uuid.UUID
	Name    string
	Price   pgtype.Numeric
	Channel pgtype.Text
}

type Addon struct {
	ID         uuid.UUID
	Name       string
	ExtraPrice pgtype.Numeric
}

type Order struct {
	ID            uuid.UUID
	Number        int32
	TableID       uuid.UUID
	WaiterID      uuid.UUID
	State         string
	ServicePct    int32
	Subtotal      pgtype.Numeric
	ServiceCharge pgtype.Numeric
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderHeaderRow is the order joined with its table number and waiter name,
// as printed on ticket headers.
type OrderHeaderRow struct {
	ID            uuid.UUID
	Number        int32
	TableNumber   int32
	WaiterName    string
	State         string
	ServicePct    int32
	Subtotal      pgtype.Numeric
	ServiceCharge pgtype.Numeric
	CreatedAt     time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Note      string
}

// OrderItemRow is a line item joined with its product name and routing
// channel, the shape the aggregator consumes.
type OrderItemRow struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Channel     pgtype.Text
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Note        string
}

type OrderItemAddon struct {
	OrderItemID uuid.UUID
	AddonID     uuid.UUID
	ExtraPrice  pgtype.Numeric
}

// OrderItemAddonRow is an addon attachment joined with the addon name.
type OrderItemAddonRow struct {
	OrderItemID uuid.UUID
	AddonID     uuid.UUID
	Name        string
	ExtraPrice  pgtype.Numeric
}

type Payment struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	CashierID    uuid.UUID
	Method       string
	Total        pgtype.Numeric
	CashAmount   pgtype.Numeric
	CardAmount   pgtype.Numeric
	ChangeAmount pgtype.Numeric
	CreatedAt    time.Time
}

type PrintJob struct {
	ID          uuid.UUID
	Kind        string
	PrinterName string
	Body        []byte
	State       string
	Error       pgtype.Text
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type KdsTicket struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	OrderNumber int32
	TableNumber int32
	Channel     string
	State       string
	WaiterName  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type KdsItem struct {
	ID          uuid.UUID
	TicketID    uuid.UUID
	ProductName string
	Note        string
	AddonNames  []string
	State       string
}
