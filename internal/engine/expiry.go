package engine

import (
	"time"

	"github.com/klcheung/alertledger/internal/models"
)

// The sweep mirrors the upstream tracker's calendar arithmetic, including its
// simplified daylight-saving rule: any month from March through November is
// treated as daylight time (UTC-4), everything else as standard (UTC-5).
// True US DST boundaries are specific Sundays; the simplification is kept
// deliberately because correcting it shifts expiration timing.

var (
	easternDaylight = time.FixedZone("EDT", -4*3600)
	easternStandard = time.FixedZone("EST", -5*3600)
)

func isDaylightSaving(t time.Time) bool {
	m := t.Month()
	return m >= time.March && m <= time.November
}

func easternZone(t time.Time) *time.Location {
	if isDaylightSaving(t) {
		return easternDaylight
	}
	return easternStandard
}

// currentUSTime converts the wall clock to US eastern market time.
func currentUSTime(now time.Time) time.Time {
	utc := now.UTC()
	return utc.In(easternZone(utc))
}

// marketCloseTime returns 16:00 US eastern on the expiration date.
func marketCloseTime(expDate time.Time) time.Time {
	return time.Date(expDate.Year(), expDate.Month(), expDate.Day(), 16, 0, 0, 0, easternZone(expDate))
}

// sweepLocked transitions every open order whose contract has lapsed past
// market close to expired with the configured full loss. Orders with an
// unparseable expiration never expire automatically. Idempotent; runs
// opportunistically before every read. Caller holds the mutex.
func (e *Engine) sweepLocked() int {
	nowUS := currentUSTime(e.now())
	expired := 0

	for key, o := range e.index {
		if o.Status != models.StatusOpen {
			// Index invariant violation; drop the stale slot.
			delete(e.index, key)
			continue
		}
		expDate, ok := models.ParseExpiration(o.Expiration, e.now())
		if !ok {
			continue
		}
		if nowUS.Before(marketCloseTime(expDate)) {
			continue
		}

		if err := o.Transition(models.StatusExpired, "expiry_sweep", e.now()); err != nil {
			e.logger.WithError(err).WithField("order_id", o.ID).Warn("expiry transition failed")
			continue
		}
		pnl := e.cfg.ExpiredLossPct
		o.PnLPercent = &pnl
		o.ClassifyResult()
		o.Notes = "expired at market close"
		delete(e.index, key)
		expired++

		e.logger.WithField("order_id", o.ID).
			Infof("order expired: %s %g%s (expiration %s)", o.Ticker, o.Strike, o.Kind.Short(), o.Expiration)
	}

	if expired > 0 {
		e.persistLocked()
	}
	return expired
}
