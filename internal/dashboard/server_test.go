package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klcheung/alertledger/internal/engine"
	"github.com/klcheung/alertledger/internal/models"
)

func newTestServer(t *testing.T, authToken string) (*Server, *engine.Engine) {
	t.Helper()
	start := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	cur := start
	eng, err := engine.New(engine.DefaultConfig, nil, nil, func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewServer(Config{Port: 0, AuthToken: authToken}, eng, logger), eng
}

func doRequest(s *Server, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	// Health stays open.
	rec := doRequest(s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Everything else requires the token.
	rec = doRequest(s, http.MethodGet, "/api/trading/orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/trading/orders", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/trading/orders", "secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// The query-parameter fallback works too.
	rec = doRequest(s, http.MethodGet, "/api/trading/orders?token=secret", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoAuthConfigured(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := doRequest(s, http.MethodGet, "/api/trading/orders", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrdersEndpoint(t *testing.T) {
	s, eng := newTestServer(t, "")
	eng.Ingest(models.Message{ID: "m1", Content: "QQQ 9/19 64c @1.61"})
	eng.Ingest(models.Message{ID: "m2", Content: "SPY 9/19 690p @2.00"})
	eng.Ingest(models.Message{ID: "m3", Content: "SPY 9/19 690p all out @2.50"})

	rec := doRequest(s, http.MethodGet, "/api/trading/orders", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = doRequest(s, http.MethodGet, "/api/trading/orders?status=open", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var open []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, "QQQ", open[0].Ticker)

	rec = doRequest(s, http.MethodGet, "/api/trading/orders?status=closed", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var closed []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	require.Len(t, closed, 1)
	assert.Equal(t, "SPY", closed[0].Ticker)

	rec = doRequest(s, http.MethodGet, "/api/trading/orders?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderByID(t *testing.T) {
	s, eng := newTestServer(t, "")
	id, produced := eng.Ingest(models.Message{ID: "m1", Content: "QQQ 9/19 64c @1.61"})
	require.True(t, produced)

	rec := doRequest(s, http.MethodGet, "/api/trading/orders/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, id, order.ID)

	rec = doRequest(s, http.MethodGet, "/api/trading/orders/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	s, eng := newTestServer(t, "")
	eng.Ingest(models.Message{ID: "m1", Content: "QQQ 9/19 64c @1.61"})

	rec := doRequest(s, http.MethodGet, "/api/trading/statistics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 1, stats.OpenOrders)
}

func TestMessagesEndpoint(t *testing.T) {
	s, eng := newTestServer(t, "")
	eng.Ingest(models.Message{ID: "m1", ChannelID: "a", Content: "QQQ 9/19 64c @1.61"})
	eng.Ingest(models.Message{ID: "m2", ChannelID: "b", Content: "noise"})

	rec := doRequest(s, http.MethodGet, "/api/trading/messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	rec = doRequest(s, http.MethodGet, "/api/trading/messages?has_order=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)

	rec = doRequest(s, http.MethodGet, "/api/trading/messages?channel_id=b", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "m2", entries[0].ID)

	rec = doRequest(s, http.MethodGet, "/api/trading/messages?has_order=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/trading/messages?offset=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestEndpoint(t *testing.T) {
	s, eng := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/trading/test", "",
		`{"content": "QQQ 9/19 64c @1.61", "channel_id": "manual"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["produced"])
	assert.NotEmpty(t, resp["order_id"])

	assert.Len(t, eng.OpenOrders(), 1)

	// Noise is accepted but produces nothing.
	rec = doRequest(s, http.MethodPost, "/api/trading/test", "", `{"content": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["produced"])

	rec = doRequest(s, http.MethodPost, "/api/trading/test", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/trading/test", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAndDeduplicateEndpoints(t *testing.T) {
	s, eng := newTestServer(t, "")
	eng.Ingest(models.Message{ID: "m1", Content: "QQQ 9/19 64c @1.61"})

	rec := doRequest(s, http.MethodPost, "/api/trading/deduplicate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dedup engine.DedupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dedup))
	assert.Equal(t, 0, dedup.RemovedMessages)
	assert.Equal(t, 1, dedup.RemainingMessages)

	rec = doRequest(s, http.MethodPost, "/api/trading/clear", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, eng.Statistics().TotalOrders)
}

func TestExportEndpoint(t *testing.T) {
	s, eng := newTestServer(t, "")
	eng.Ingest(models.Message{ID: "m1", Content: "QQQ 9/19 64c @1.61"})

	rec := doRequest(s, http.MethodGet, "/api/trading", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bundle engine.ExportBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Equal(t, 1, bundle.Statistics.TotalOrders)
	assert.Len(t, bundle.OpenOrders, 1)
	assert.Len(t, bundle.Messages, 1)
}
