package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gregtusar/thstrader/pkg/journal"
	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrader struct {
	loginOK     bool
	balanceErr  error
	fromBroker  bool
	lastOrder   models.OrderRequest
	lastCancel  models.Entrust
	orderOK     bool
	cancelOK    bool
	logoutHangs bool
	journal     *journal.MemoryJournal
}

func (f *fakeTrader) Login(context.Context) bool { return f.loginOK }

func (f *fakeTrader) Logout(_ context.Context, oneKeyHangUp bool) bool {
	f.logoutHangs = oneKeyHangUp
	return true
}

func (f *fakeTrader) Refresh(context.Context) error { return nil }

func (f *fakeTrader) GetBalance(_ context.Context, fromBroker bool) (models.Table, error) {
	f.fromBroker = fromBroker
	if f.balanceErr != nil {
		return models.Table{}, f.balanceErr
	}
	return models.Table{Header: []string{"总资产"}, Rows: [][]any{{25000.0}}}, nil
}

func (f *fakeTrader) GetPositions(_ context.Context, fromBroker bool) (models.Table, string, error) {
	f.fromBroker = fromBroker
	return models.Table{Header: []string{"证券代码"}, Rows: [][]any{{"600000"}}}, "参考盈亏", nil
}

func (f *fakeTrader) GetCurEntrusts(context.Context) (models.Table, error) {
	return models.Table{Header: []string{"合同编号"}, Rows: [][]any{}}, nil
}

func (f *fakeTrader) GetCurDeals(context.Context) (models.Table, error) {
	return models.Table{}, errors.New("grid not visible")
}

func (f *fakeTrader) Buy(_ context.Context, code, name string, price float64, volume int) bool {
	f.lastOrder = models.OrderRequest{Side: models.OrderSideBuy, Code: code, Name: name, Price: price, Volume: volume}
	return f.orderOK
}

func (f *fakeTrader) Sell(_ context.Context, code, name string, price float64, volume int) bool {
	f.lastOrder = models.OrderRequest{Side: models.OrderSideSell, Code: code, Name: name, Price: price, Volume: volume}
	return f.orderOK
}

func (f *fakeTrader) Cancel(_ context.Context, entrust models.Entrust) bool {
	f.lastCancel = entrust
	return f.cancelOK
}

func (f *fakeTrader) Journal() journal.Journal {
	if f.journal == nil {
		return nil
	}
	return f.journal
}

func newTestServer(f *fakeTrader) http.Handler {
	logger, _ := test.NewNullLogger()
	return NewServer(f, logger, "0").Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeOK(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	var resp map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["ok"]
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeTrader{}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestLogin(t *testing.T) {
	h := newTestServer(&fakeTrader{loginOK: false})

	rec := do(t, h, http.MethodPost, "/api/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeOK(t, rec))

	rec = do(t, h, http.MethodGet, "/api/login", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogout(t *testing.T) {
	f := &fakeTrader{}
	rec := do(t, newTestServer(f), http.MethodPost, "/api/logout", `{"one_key_hang_up":true}`)
	assert.True(t, decodeOK(t, rec))
	assert.True(t, f.logoutHangs)
}

func TestBalanceCachedFlag(t *testing.T) {
	f := &fakeTrader{}
	h := newTestServer(f)

	rec := do(t, h, http.MethodGet, "/api/balance?cached=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.fromBroker)

	var table models.Table
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&table))
	assert.Equal(t, []string{"总资产"}, table.Header)

	do(t, h, http.MethodGet, "/api/balance", "")
	assert.True(t, f.fromBroker)
}

func TestBalanceError(t *testing.T) {
	rec := do(t, newTestServer(&fakeTrader{balanceErr: errors.New("window closed")}), http.MethodGet, "/api/balance", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "window closed")
}

func TestPositions(t *testing.T) {
	rec := do(t, newTestServer(&fakeTrader{}), http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "参考盈亏", resp["foreground_column"])
	assert.Equal(t, []any{"证券代码"}, resp["header"])
}

func TestEntrustsAndDeals(t *testing.T) {
	h := newTestServer(&fakeTrader{})

	rec := do(t, h, http.MethodGet, "/api/entrusts", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/deals", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestOrders(t *testing.T) {
	f := &fakeTrader{orderOK: true}
	h := newTestServer(f)

	rec := do(t, h, http.MethodPost, "/api/orders", `{"side":"sell","code":"600000.SH","name":"浦发银行","price":10.5,"volume":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeOK(t, rec))
	assert.Equal(t, models.OrderRequest{Side: models.OrderSideSell, Code: "600000.SH", Name: "浦发银行", Price: 10.5, Volume: 100}, f.lastOrder)

	rec = do(t, h, http.MethodPost, "/api/orders", `{"side":"short","code":"600000.SH","price":10.5,"volume":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/orders", `{"side":"buy","code":"600000.SH","price":10.5,"volume":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/orders", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancel(t *testing.T) {
	f := &fakeTrader{cancelOK: false}
	h := newTestServer(f)

	rec := do(t, h, http.MethodPost, "/api/orders/cancel", `{"code":"600000.SH","name":"浦发银行","broker_entrust_id":"1234"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeOK(t, rec))
	assert.Equal(t, "1234", f.lastCancel.BrokerEntrustID)

	rec = do(t, h, http.MethodPost, "/api/orders/cancel", `{"code":"600000.SH"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJournal(t *testing.T) {
	j := journal.NewMemoryJournal(0)
	require.NoError(t, j.Record(context.Background(), models.JournalEntry{Action: models.JournalActionBuy, Code: "600000.SH", OK: true}))
	h := newTestServer(&fakeTrader{journal: j})

	rec := do(t, h, http.MethodGet, "/api/journal?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []models.JournalEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "600000.SH", entries[0].Code)

	rec = do(t, h, http.MethodGet, "/api/journal?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := do(t, newTestServer(&fakeTrader{}), http.MethodOptions, "/api/orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
