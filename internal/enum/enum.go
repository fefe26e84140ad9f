package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStateOpen   = "OPEN"
	OrderStateSent   = "SENT"
	OrderStatePaid   = "PAID"
	OrderStateVoided = "VOIDED"
)

const (
	TableStateFree     = "FREE"
	TableStateOccupied = "OCCUPIED"
)

const (
	TicketStatePending   = "PENDING"
	TicketStatePreparing = "PREPARING"
	TicketStateReady     = "READY"
)

const (
	PrintJobStatePending = "PENDING"
	PrintJobStatePrinted = "PRINTED"
	PrintJobStateError   = "ERROR"
)

// ── Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "ADMIN"
	UserRoleCashier = "CASHIER"
	UserRoleWaiter  = "WAITER"
)

const (
	PaymentMethodCash  = "CASH"
	PaymentMethodCard  = "CARD"
	PaymentMethodMixed = "MIXED"
)

// ── Configurable labels (no DB constraint) ──

// ChannelCashier is the reserved print destination for bills; kitchen
// channels (BAR, KITCHEN, ...) come from the categories table.
const ChannelCashier = "CASHIER"

const (
	PrintKindBill          = "BILL"
	PrintKindKitchenTicket = "KITCHEN_TICKET"
)
