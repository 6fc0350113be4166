package models

import (
	"fmt"
	"time"
)

// StateTransition defines a valid order status transition.
type StateTransition struct {
	From        OrderStatus
	To          OrderStatus
	Condition   string
	Description string
}

// ValidTransitions is the order lifecycle: pending -> open -> {closed, expired},
// with an open -> open self-transition for PnL refreshes.
var ValidTransitions = []StateTransition{
	{StatusPending, StatusOpen, "entry_confirmed", "Entry price confirmed, position is live"},
	{StatusOpen, StatusOpen, "position_update", "PnL or commentary refresh, identity unchanged"},
	{StatusOpen, StatusClosed, "close_signal", "Explicit close message matched the position"},
	{StatusOpen, StatusExpired, "expiry_sweep", "Contract lapsed past market close"},
}

// Transition moves the order to a new status, stamping the exit time on
// terminal transitions when the caller has not already set one.
func (o *Order) Transition(to OrderStatus, condition string, at time.Time) error {
	if !transitionDefined(o.Status, to, condition) {
		return fmt.Errorf("order %s: invalid transition from %s to %s with condition %q",
			o.ID, o.Status, to, condition)
	}

	o.Status = to

	if (to == StatusClosed || to == StatusExpired) && o.ExitTime.IsZero() {
		o.ExitTime = at
	}
	return nil
}

func transitionDefined(from, to OrderStatus, condition string) bool {
	for _, t := range ValidTransitions {
		if t.From != from || t.To != to {
			continue
		}
		if t.Condition == "" || condition == "" || t.Condition == condition {
			return true
		}
	}
	return false
}
