package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klcheung/alertledger/internal/models"
)

func TestIsDaylightSaving(t *testing.T) {
	cases := []struct {
		month time.Month
		want  bool
	}{
		{time.January, false},
		{time.February, false},
		{time.March, true},
		{time.July, true},
		{time.November, true},
		{time.December, false},
	}
	for _, tc := range cases {
		at := time.Date(2026, tc.month, 15, 12, 0, 0, 0, time.UTC)
		if got := isDaylightSaving(at); got != tc.want {
			t.Errorf("isDaylightSaving(%s) = %v, want %v", tc.month, got, tc.want)
		}
	}
}

func TestMarketCloseTime(t *testing.T) {
	// Winter expiration: 16:00 EST is 21:00 UTC.
	exp := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	closeAt := marketCloseTime(exp)
	assert.Equal(t, time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC).Unix(), closeAt.Unix())

	// Summer expiration: 16:00 EDT is 20:00 UTC.
	exp = time.Date(2026, 7, 17, 0, 0, 0, 0, time.UTC)
	closeAt = marketCloseTime(exp)
	assert.Equal(t, time.Date(2026, 7, 17, 20, 0, 0, 0, time.UTC).Unix(), closeAt.Unix())
}

func TestSweep_ExpiresPastMarketClose(t *testing.T) {
	now := time.Date(2026, 2, 10, 20, 59, 0, 0, time.UTC)
	e, err := New(DefaultConfig, nil, nil, func() time.Time { return now })
	require.NoError(t, err)

	id, produced := e.Ingest(msg("m1", "QQQ 2/10 613p @0.69"))
	require.True(t, produced)

	// One minute before the bell the order is still live.
	require.Len(t, e.OpenOrders(), 1)

	// Past the bell the sweep flips it to expired with the full loss.
	now = time.Date(2026, 2, 10, 21, 1, 0, 0, time.UTC)
	assert.Empty(t, e.OpenOrders())

	expired, ok := e.OrderByID(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusExpired, expired.Status)
	require.NotNil(t, expired.PnLPercent)
	assert.Equal(t, -100.0, *expired.PnLPercent)
	assert.Equal(t, models.ResultLoss, expired.Result)
	assert.Equal(t, "expired at market close", expired.Notes)
	assert.False(t, expired.ExitTime.IsZero())

	stats := e.Statistics()
	assert.Equal(t, 1, stats.ExpiredOrders)
	assert.Equal(t, 1, stats.ClosedOrders)
	assert.Equal(t, 0, stats.OpenOrders)
}

func TestSweep_UnparseableExpirationNeverExpires(t *testing.T) {
	now := time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)
	e, err := New(DefaultConfig, nil, nil, func() time.Time { return now })
	require.NoError(t, err)

	_, produced := e.Ingest(models.Message{
		ID:      "m1",
		Content: "Ticker | $SPX\n行权价 | 6980C\nEntry | 7.0\nExpiry | 0dte",
	})
	require.True(t, produced)

	// Ten days on, the 0dte marker still blocks automatic expiry.
	now = now.AddDate(0, 0, 10)
	open := e.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, "0dte (expires today)", open[0].Expiration)
}

func TestSweep_ExpiredOrderCanStillBeReopened(t *testing.T) {
	now := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)
	e, err := New(DefaultConfig, nil, nil, func() time.Time { return now })
	require.NoError(t, err)

	first, produced := e.Ingest(msg("m1", "QQQ 2/10 613p @0.69"))
	require.True(t, produced)

	now = time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC)
	assert.Empty(t, e.OpenOrders())

	// The key is free again after expiry.
	second, produced := e.Ingest(msg("m2", "QQQ 2/11 613p @0.50"))
	require.True(t, produced)
	require.NotEqual(t, first, second)
	assert.Len(t, e.OpenOrders(), 1)
}
