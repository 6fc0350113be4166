// Package models provides data structures and state management for tracked orders.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OptionKind identifies the contract side of an option.
type OptionKind string

const (
	// Call is a call option contract.
	Call OptionKind = "call"
	// Put is a put option contract.
	Put OptionKind = "put"
)

// ParseOptionKind converts a single-letter suffix (c/C/p/P) into an OptionKind.
func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "call":
		return Call, nil
	case "p", "put":
		return Put, nil
	default:
		return "", fmt.Errorf("unknown option kind %q", s)
	}
}

// Short returns the one-letter form used in order ids and index keys.
func (k OptionKind) Short() string {
	if k == Put {
		return "p"
	}
	return "c"
}

// InstrumentKey identifies a tradable contract. It deliberately ignores the
// expiration: the tracker holds at most one open order per (ticker, strike,
// kind) regardless of expiry.
type InstrumentKey struct {
	Ticker string
	Strike float64
	Kind   OptionKind
}

// String renders the composite index key, e.g. "QQQ613p".
func (k InstrumentKey) String() string {
	return k.Ticker + strconv.FormatFloat(k.Strike, 'f', -1, 64) + k.Kind.Short()
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	// StatusPending means the order was seen but has no confirmed entry yet.
	StatusPending OrderStatus = "pending"
	// StatusOpen means the position is live.
	StatusOpen OrderStatus = "open"
	// StatusClosed means the position was closed by an explicit close event.
	StatusClosed OrderStatus = "closed"
	// StatusExpired means the contract lapsed past market close unexercised.
	StatusExpired OrderStatus = "expired"
)

// TradeResult classifies a finished order.
type TradeResult string

const (
	// ResultWin marks a positive PnL close.
	ResultWin TradeResult = "win"
	// ResultLoss marks a zero-or-negative PnL close.
	ResultLoss TradeResult = "loss"
)

// MessageRef is a short provenance record of a message that affected an order.
type MessageRef struct {
	MessageID string    `json:"message_id"`
	ChannelID string    `json:"channel_id"`
	Timestamp time.Time `json:"timestamp"`
	Excerpt   string    `json:"excerpt"`
}

// Order represents one trade's lifecycle from first signal to close or expiry.
type Order struct {
	ID         string       `json:"order_id"`
	Ticker     string       `json:"ticker"`
	Kind       OptionKind   `json:"option_type"`
	Strike     float64      `json:"strike_price"`
	Expiration string       `json:"expiration"` // free text: MM/DD/YY, M/D, "0dte (expires today)", or "N/A"
	EntryPrice float64      `json:"entry_price"`
	EntryTime  time.Time    `json:"entry_time"`
	ExitPrice  *float64     `json:"exit_price,omitempty"`
	ExitTime   time.Time    `json:"exit_time,omitzero"`
	PnLPercent *float64     `json:"pnl_percent,omitempty"`
	Status     OrderStatus  `json:"status"`
	Result     TradeResult  `json:"result,omitempty"`
	Messages   []MessageRef `json:"messages"`
	Notes      string       `json:"notes"`
}

// orderIDTimeLayout is the timestamp suffix on generated order ids.
const orderIDTimeLayout = "20060102150405"

// NewOrder creates a live order for the given instrument.
func NewOrder(key InstrumentKey, expiration string, entryPrice float64, at time.Time) *Order {
	return &Order{
		ID: fmt.Sprintf("%s_%s%s_%s", key.Ticker,
			strconv.FormatFloat(key.Strike, 'f', -1, 64), key.Kind.Short(),
			at.Format(orderIDTimeLayout)),
		Ticker:     key.Ticker,
		Kind:       key.Kind,
		Strike:     key.Strike,
		Expiration: expiration,
		EntryPrice: entryPrice,
		EntryTime:  at,
		Status:     StatusOpen,
		Messages:   make([]MessageRef, 0),
	}
}

// Key returns the instrument key the order is indexed under.
func (o *Order) Key() InstrumentKey {
	return InstrumentKey{Ticker: o.Ticker, Strike: o.Strike, Kind: o.Kind}
}

// Live reports whether the order may still be mutated.
func (o *Order) Live() bool {
	return o.Status == StatusPending || o.Status == StatusOpen
}

// AttachMessage appends a provenance record for a message that affected the order.
func (o *Order) AttachMessage(ref MessageRef) {
	o.Messages = append(o.Messages, ref)
}

// ClassifyResult sets Result from the final PnL: win above zero, loss otherwise.
func (o *Order) ClassifyResult() {
	if o.PnLPercent != nil && *o.PnLPercent > 0 {
		o.Result = ResultWin
	} else {
		o.Result = ResultLoss
	}
}

// Validate checks the exit-data invariant: live orders carry no exit data,
// finished orders carry an exit time.
func (o *Order) Validate() error {
	switch o.Status {
	case StatusPending, StatusOpen:
		if o.ExitPrice != nil || !o.ExitTime.IsZero() {
			return fmt.Errorf("order %s in state %s: exit data must be unset for live orders", o.ID, o.Status)
		}
		if o.Result != "" {
			return fmt.Errorf("order %s in state %s: result must be unset for live orders", o.ID, o.Status)
		}
	case StatusClosed, StatusExpired:
		if o.ExitTime.IsZero() {
			return fmt.Errorf("order %s in state %s: exit time must be set", o.ID, o.Status)
		}
	default:
		return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	return nil
}

// ParseExpiration parses a free-text expiration into a calendar date.
// Accepted forms: M/D/YY, M/D/YYYY, and M/D (resolved against the current
// year). Anything else (including "0dte (...)" and "N/A") returns ok=false;
// such orders never expire automatically.
func ParseExpiration(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"1/2/06", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("1/2", s); err == nil {
		return t.AddDate(now.Year(), 0, 0), true
	}
	return time.Time{}, false
}
