// Package engine applies candidate trade events against the position index
// and order ledger, and owns the message journal. One engine instance holds
// all tracker state; there are no package-level singletons.
package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/klcheung/alertledger/internal/models"
	"github.com/klcheung/alertledger/internal/parser"
	"github.com/klcheung/alertledger/internal/storage"
)

// Config holds the tracker's business-rule constants. The loss percentages
// are assumptions, not computed results: narrative stop-loss notices carry no
// price, and expired contracts are written off entirely.
type Config struct {
	// AssumedStopLossPct is applied to stop-loss notices without a supplied
	// price or percentage.
	AssumedStopLossPct float64
	// ExpiredLossPct is applied by the expiration sweep.
	ExpiredLossPct float64
}

// DefaultConfig matches the historical tracker behavior.
var DefaultConfig = Config{
	AssumedStopLossPct: -50,
	ExpiredLossPct:     -100,
}

// Engine is the lifecycle engine. All mutation of the ledger, position index
// and journal happens under one mutex: two messages referencing the same
// instrument must be applied in a deterministic order, and the expiration
// sweep mutates the same structures.
type Engine struct {
	mu       sync.Mutex
	grammars *parser.Set
	store    storage.Interface
	logger   *logrus.Logger
	now      func() time.Time
	cfg      Config

	orders  map[string]*models.Order
	index   map[models.InstrumentKey]*models.Order
	journal []*models.JournalEntry
	seen    map[string]struct{}
}

// New creates an engine, reloading persisted state when a store is provided.
// An optional clock may be injected for tests; it defaults to time.Now.
func New(cfg Config, store storage.Interface, logger *logrus.Logger, clock ...func() time.Time) (*Engine, error) {
	if logger == nil {
		logger = logrus.New()
	}
	now := time.Now
	if len(clock) > 0 && clock[0] != nil {
		now = clock[0]
	}

	e := &Engine{
		store:   store,
		logger:  logger,
		now:     now,
		cfg:     cfg,
		orders:  make(map[string]*models.Order),
		index:   make(map[models.InstrumentKey]*models.Order),
		journal: make([]*models.JournalEntry, 0),
		seen:    make(map[string]struct{}),
	}
	e.grammars = parser.NewSet(now)

	if store != nil {
		if err := e.reload(); err != nil {
			return nil, fmt.Errorf("reloading tracker state: %w", err)
		}
	}

	e.mu.Lock()
	e.sweepLocked()
	e.mu.Unlock()
	return e, nil
}

// reload rebuilds in-memory state from the persisted document. The position
// index is derived by scanning for open orders; when last-open-wins left more
// than one open order on a key, the most recent entry claims the slot.
// Journal entries are deduplicated by id, first occurrence kept.
func (e *Engine) reload() error {
	doc, err := e.store.Load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, o := range doc.Orders {
		e.orders[id] = o
		if o.Status != models.StatusOpen {
			continue
		}
		key := o.Key()
		if cur, ok := e.index[key]; !ok || o.EntryTime.After(cur.EntryTime) {
			e.index[key] = o
		}
	}
	for _, entry := range doc.Messages {
		if _, dup := e.seen[entry.ID]; dup {
			continue
		}
		e.seen[entry.ID] = struct{}{}
		e.journal = append(e.journal, entry)
	}
	return nil
}

// Ingest records one inbound message and applies whatever trade event it
// carries. Re-delivery of a known message id is a no-op; the grammar set is
// not even invoked. Ingest never returns an error and never panics: a
// malformed message is journaled as "no order" and processing continues.
func (e *Engine) Ingest(msg models.Message) (orderID string, produced bool) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.seen[msg.ID]; dup {
		return "", false
	}

	entry := &models.JournalEntry{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	e.seen[msg.ID] = struct{}{}
	e.journal = append(e.journal, entry)

	orderID = e.applyMessage(msg)
	if orderID != "" {
		entry.HasOrder = true
		entry.OrderID = orderID
	}

	e.persistLocked()
	return orderID, orderID != ""
}

// applyMessage evaluates the grammars and resolves the candidate event,
// recovering from any extraction failure so one bad message cannot abort a
// batch or corrupt the ledger.
func (e *Engine) applyMessage(msg models.Message) (orderID string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("message_id", msg.ID).
				Errorf("message processing panicked, recorded without order: %v", r)
			orderID = ""
		}
	}()

	ev := e.grammars.Evaluate(msg)
	if ev == nil {
		return ""
	}
	return e.resolve(ev, msg)
}

// resolve applies one candidate event. Caller holds the mutex.
func (e *Engine) resolve(ev *parser.Event, msg models.Message) string {
	switch ev.Action {
	case parser.ActionOpen:
		return e.openOrder(ev, msg)
	case parser.ActionUpdate:
		return e.updateOrder(ev, msg)
	case parser.ActionOpenOrUpdate:
		key, _ := ev.Key()
		if _, exists := e.index[key]; exists {
			return e.updateOrder(ev, msg)
		}
		// An open without an entry price is not actionable.
		if ev.Price == nil {
			return ""
		}
		return e.openOrder(ev, msg)
	case parser.ActionClose:
		return e.closeOrder(ev, msg)
	default:
		e.logger.WithField("grammar", ev.Grammar).Warnf("unknown event action %q dropped", ev.Action)
		return ""
	}
}

// openOrder creates a live order. A duplicate open on an occupied key is
// last-open-wins: the prior order silently loses its index slot with no
// merge. Observed upstream behavior, reproduced deliberately.
func (e *Engine) openOrder(ev *parser.Event, msg models.Message) string {
	key, ok := ev.Key()
	if !ok {
		return ""
	}

	entry := 0.0
	if ev.Price != nil {
		entry = *ev.Price
	}
	o := models.NewOrder(key, ev.Expiration, entry, e.now())
	o.Notes = noteFor(ev, "buy to open")
	o.AttachMessage(msg.Ref())

	if prior, exists := e.index[key]; exists {
		e.logger.WithField("order_id", prior.ID).
			Warnf("duplicate open for %s, replacing prior open order", key)
	}
	e.orders[o.ID] = o
	e.index[key] = o
	return o.ID
}

// updateOrder refreshes PnL and commentary on an existing open order. Entry
// price and instrument identity are never touched; an update with no open
// order behind it is dropped rather than promoted to an open.
func (e *Engine) updateOrder(ev *parser.Event, msg models.Message) string {
	key, ok := ev.Key()
	if !ok {
		return ""
	}
	o, exists := e.index[key]
	if !exists {
		return ""
	}
	if err := o.Transition(models.StatusOpen, "position_update", e.now()); err != nil {
		e.logger.WithError(err).WithField("order_id", o.ID).Warn("update dropped")
		return ""
	}

	if ev.PnLPercent != nil {
		o.PnLPercent = ev.PnLPercent
	}
	if note := noteFor(ev, "update"); note != "" {
		o.Notes = note
	}
	o.AttachMessage(msg.Ref())
	return o.ID
}

// closeOrder terminates an open order. Keyed events resolve through the
// index; narrative events carry a ticker only and claim the oldest open
// order for it. A close with no matching open order is dropped.
func (e *Engine) closeOrder(ev *parser.Event, msg models.Message) string {
	var o *models.Order
	if key, keyed := ev.Key(); keyed {
		o = e.index[key]
	} else {
		o = e.oldestOpenByTicker(ev.Ticker)
	}
	if o == nil {
		return ""
	}
	if err := o.Transition(models.StatusClosed, "close_signal", e.now()); err != nil {
		e.logger.WithError(err).WithField("order_id", o.ID).Warn("close dropped")
		return ""
	}

	o.ExitPrice = ev.ExitPrice
	switch {
	case ev.PnLPercent != nil:
		o.PnLPercent = ev.PnLPercent
	case ev.AssumedLoss:
		pnl := e.cfg.AssumedStopLossPct
		o.PnLPercent = &pnl
	case ev.ExitPrice != nil && o.EntryPrice > 0:
		pnl := math.Round((*ev.ExitPrice-o.EntryPrice)/o.EntryPrice*100*100) / 100
		o.PnLPercent = &pnl
	}
	o.ClassifyResult()
	o.Notes = noteFor(ev, "closed")
	o.AttachMessage(msg.Ref())

	delete(e.index, o.Key())
	return o.ID
}

// oldestOpenByTicker picks the open order a ticker-only close refers to,
// by earliest entry time for determinism.
func (e *Engine) oldestOpenByTicker(ticker string) *models.Order {
	var oldest *models.Order
	for _, o := range e.index {
		if o.Ticker != ticker {
			continue
		}
		if oldest == nil || o.EntryTime.Before(oldest.EntryTime) {
			oldest = o
		}
	}
	return oldest
}

func noteFor(ev *parser.Event, verb string) string {
	if ev.Notes == "" {
		return fmt.Sprintf("%s (%s)", verb, ev.Grammar)
	}
	return fmt.Sprintf("%s (%s) | %s", verb, ev.Grammar, ev.Notes)
}

// persistLocked snapshots current state and writes it out asynchronously.
// Persistence is best effort: failures are logged, never surfaced to the
// ingestion caller. Caller holds the mutex.
func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	doc := e.snapshotLocked()
	go func() {
		if err := e.store.Save(doc); err != nil {
			e.logger.WithError(err).Warn("persisting tracker state failed, continuing in memory")
		}
	}()
}

// snapshotLocked deep-copies state into a storage document so the writer
// goroutine never races engine mutation.
func (e *Engine) snapshotLocked() *storage.Document {
	doc := &storage.Document{
		LastUpdated: e.now(),
		Orders:      make(map[string]*models.Order, len(e.orders)),
		Messages:    make([]*models.JournalEntry, 0, len(e.journal)),
	}
	for id, o := range e.orders {
		doc.Orders[id] = cloneOrder(o)
	}
	for _, entry := range e.journal {
		c := *entry
		doc.Messages = append(doc.Messages, &c)
	}
	return doc
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Messages = append([]models.MessageRef(nil), o.Messages...)
	if o.ExitPrice != nil {
		v := *o.ExitPrice
		c.ExitPrice = &v
	}
	if o.PnLPercent != nil {
		v := *o.PnLPercent
		c.PnLPercent = &v
	}
	return &c
}

// Persist synchronously flushes current state to the store.
func (e *Engine) Persist() error {
	if e.store == nil {
		return nil
	}
	e.mu.Lock()
	doc := e.snapshotLocked()
	e.mu.Unlock()
	return e.store.Save(doc)
}

func sortOrdersByEntryDesc(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].EntryTime.After(orders[j].EntryTime)
	})
}

func sortOrdersByExitDesc(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ExitTime.After(orders[j].ExitTime)
	})
}
