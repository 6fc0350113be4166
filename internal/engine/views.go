package engine

import (
	"time"

	"github.com/klcheung/alertledger/internal/models"
)

// Every read view runs the expiration sweep first, so consumers never see an
// open order whose contract has already lapsed.

// AllOrders returns every order ever created, newest entry first.
func (e *Engine) AllOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()

	out := make([]models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *cloneOrder(o))
	}
	sortOrdersByEntryDesc(out)
	return out
}

// OpenOrders returns the current positions.
func (e *Engine) OpenOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()

	out := make([]models.Order, 0, len(e.index))
	for _, o := range e.index {
		out = append(out, *cloneOrder(o))
	}
	sortOrdersByEntryDesc(out)
	return out
}

// ClosedOrders returns closed and expired orders, most recent exit first.
func (e *Engine) ClosedOrders() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()

	out := make([]models.Order, 0)
	for _, o := range e.orders {
		if o.Status == models.StatusClosed || o.Status == models.StatusExpired {
			out = append(out, *cloneOrder(o))
		}
	}
	sortOrdersByExitDesc(out)
	return out
}

// OrderByID returns a single order.
func (e *Engine) OrderByID(id string) (models.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()

	o, ok := e.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *cloneOrder(o), true
}

// Statistics aggregates counts by status. Wins and losses count explicitly
// closed orders with a recorded PnL; expired orders are reported separately
// but included in the closed total.
func (e *Engine) Statistics() models.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()
	return e.statisticsLocked()
}

func (e *Engine) statisticsLocked() models.Statistics {
	stats := models.Statistics{
		TotalOrders:   len(e.orders),
		OpenOrders:    len(e.index),
		TotalMessages: len(e.journal),
	}
	for _, o := range e.orders {
		switch o.Status {
		case models.StatusClosed:
			stats.ClosedOrders++
			if o.PnLPercent != nil {
				if *o.PnLPercent > 0 {
					stats.Wins++
				} else {
					stats.Losses++
				}
			}
		case models.StatusExpired:
			stats.ClosedOrders++
			stats.ExpiredOrders++
		}
	}
	return stats
}

// JournalFilter narrows journal reads. Zero Limit means no pagination.
type JournalFilter struct {
	HasOrder  *bool
	ChannelID string
	Offset    int
	Limit     int
}

// Journal returns journal entries, oldest first, after filtering and
// offset/limit pagination.
func (e *Engine) Journal(filter JournalFilter) []models.JournalEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked()

	out := make([]models.JournalEntry, 0, len(e.journal))
	for _, entry := range e.journal {
		if filter.HasOrder != nil && entry.HasOrder != *filter.HasOrder {
			continue
		}
		if filter.ChannelID != "" && entry.ChannelID != filter.ChannelID {
			continue
		}
		out = append(out, *entry)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.JournalEntry{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// ExportBundle is the single JSON document handed to the export feed.
type ExportBundle struct {
	GeneratedAt  time.Time             `json:"generated_at"`
	Statistics   models.Statistics     `json:"statistics"`
	Orders       []models.Order        `json:"orders"`
	OpenOrders   []models.Order        `json:"open_orders"`
	ClosedOrders []models.Order        `json:"closed_orders"`
	Messages     []models.JournalEntry `json:"messages"`
}

// Export bundles statistics, orders and the journal for the export feed.
func (e *Engine) Export() ExportBundle {
	return ExportBundle{
		GeneratedAt:  e.now(),
		Statistics:   e.Statistics(),
		Orders:       e.AllOrders(),
		OpenOrders:   e.OpenOrders(),
		ClosedOrders: e.ClosedOrders(),
		Messages:     e.Journal(JournalFilter{}),
	}
}

// ClearAll discards the ledger, journal, position index and any persisted
// file. Maintenance operation; not reachable from ingestion.
func (e *Engine) ClearAll() error {
	e.mu.Lock()
	e.orders = make(map[string]*models.Order)
	e.index = make(map[models.InstrumentKey]*models.Order)
	e.journal = make([]*models.JournalEntry, 0)
	e.seen = make(map[string]struct{})
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	return e.store.Clear()
}

// DedupResult reports a Deduplicate pass.
type DedupResult struct {
	RemovedMessages   int `json:"removed_messages"`
	RemainingMessages int `json:"remaining_messages"`
}

// Deduplicate collapses journal entries sharing a message id, keeping the
// first occurrence. Recovery tool for state written by a pre-idempotency
// version of the journal.
func (e *Engine) Deduplicate() DedupResult {
	e.mu.Lock()

	seen := make(map[string]struct{}, len(e.journal))
	unique := make([]*models.JournalEntry, 0, len(e.journal))
	removed := 0
	for _, entry := range e.journal {
		if _, dup := seen[entry.ID]; dup {
			removed++
			continue
		}
		seen[entry.ID] = struct{}{}
		unique = append(unique, entry)
	}
	e.journal = unique
	e.seen = seen
	e.persistLocked()
	remaining := len(e.journal)
	e.mu.Unlock()

	return DedupResult{RemovedMessages: removed, RemainingMessages: remaining}
}
