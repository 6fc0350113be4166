// Package parser recognizes trade events inside chat messages. It is a set
// of independent format grammars evaluated in a fixed priority order; the
// first grammar that yields a candidate wins and formats are never merged.
package parser

import "github.com/klcheung/alertledger/internal/models"

// Action is what a candidate event asks the lifecycle engine to do.
type Action string

const (
	// ActionOpen opens a position (replacing any open one for the same key).
	ActionOpen Action = "open"
	// ActionUpdate refreshes PnL/notes on an existing open position.
	ActionUpdate Action = "update"
	// ActionClose closes an existing open position.
	ActionClose Action = "close"
	// ActionOpenOrUpdate updates when the instrument already has an open
	// position and opens otherwise. Emitted by the compact one-line format,
	// which does not distinguish the two cases syntactically.
	ActionOpenOrUpdate Action = "open_or_update"
)

// Event is a candidate trade event extracted from a single message.
// Exactly zero or one event is produced per message.
type Event struct {
	Grammar string
	Action  Action

	Ticker string
	Strike float64
	Kind   models.OptionKind
	// HasInstrument is false for narrative events that name a ticker only;
	// those resolve against the first open position for the ticker.
	HasInstrument bool

	Expiration string
	Price      *float64 // entry price on opens, current price on updates
	ExitPrice  *float64
	PnLPercent *float64
	// AssumedLoss marks a stop-loss notice with no supplied price or
	// percentage; the engine substitutes its configured fixed loss.
	AssumedLoss bool

	Notes string
}

// Key returns the instrument key of the event, when it carries one.
func (e *Event) Key() (models.InstrumentKey, bool) {
	if !e.HasInstrument {
		return models.InstrumentKey{}, false
	}
	return models.InstrumentKey{Ticker: e.Ticker, Strike: e.Strike, Kind: e.Kind}, true
}

func floatPtr(v float64) *float64 { return &v }
