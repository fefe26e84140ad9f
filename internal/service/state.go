package service

import "github.com/picada-pos/api/internal/enum"

// transitions lists every legal order state change. PAID and VOIDED are
// terminal.
var transitions = map[string][]string{
	enum.OrderStateOpen: {enum.OrderStateSent, enum.OrderStatePaid, enum.OrderStateVoided},
	enum.OrderStateSent: {enum.OrderStatePaid, enum.OrderStateVoided},
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalOrderState(state string) bool {
	return state == enum.OrderStatePaid || state == enum.OrderStateVoided
}
