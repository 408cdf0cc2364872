package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/config"
	"tbill-ledger-go/internal/database"
	"tbill-ledger-go/internal/fifo"
	"tbill-ledger-go/internal/metrics"
	"tbill-ledger-go/internal/models"
	"tbill-ledger-go/internal/quote"
	"tbill-ledger-go/internal/repository"
	"tbill-ledger-go/internal/settlement"
	"tbill-ledger-go/internal/trades"
)

const owner = "owner-1"

// MockResolver is a mock implementation of quote.Resolver.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, code string) (*quote.Stock, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quote.Stock), args.Error(1)
}

func setupTest(t *testing.T, resolver quote.Resolver) (*Dispatcher, *metrics.Metrics) {
	db, err := database.NewDatabase(config.Database{Driver: "sqlite", DSN: "file::memory:"}, zap.NewNop())
	require.NoError(t, err)
	repo := repository.New(db, zap.NewNop())
	m := metrics.New()
	d := NewDispatcher(
		settlement.NewManager(repo, zap.NewNop()),
		trades.NewService(repo, nil, config.Matching{ExcludeSettled: true}, zap.NewNop()),
		resolver,
		m,
		zap.NewNop(),
	)
	return d, m
}

func date(s string) Date {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return Date(t)
}

func addTrade(t *testing.T, d *Dispatcher, typ models.TradeType, price string, qty int64, day string) *models.Trade {
	t.Helper()
	resp := d.Dispatch(context.Background(), owner, AddTrade{
		StockCode: "600000",
		StockName: "Pufa Bank",
		Market:    "sh",
		Type:      typ,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		Date:      date(day),
	})
	require.True(t, resp.Success, resp.Message)
	return resp.Data.(*models.Trade)
}

func TestDispatch_SettlementLifecycle(t *testing.T) {
	d, m := setupTest(t, nil)
	ctx := context.Background()
	a := addTrade(t, d, models.TradeTypeBuy, "15.20", 1000, "2024-05-01")
	b := addTrade(t, d, models.TradeTypeSell, "15.80", 1000, "2024-05-02")

	resp := d.Dispatch(ctx, owner, CreateSettlement{ATradeID: a.ID, BTradeID: b.ID, Date: date("2024-05-02")})
	require.True(t, resp.Success, resp.Message)
	created := resp.Data.(*models.Settlement)
	assert.Equal(t, "600.00", created.Profit.StringFixed(2))
	assert.Equal(t, "3.95", created.ProfitRate.StringFixed(2))

	resp = d.Dispatch(ctx, owner, GetSettlementDetail{ID: created.ID})
	require.True(t, resp.Success, resp.Message)
	detail := resp.Data.(*settlement.Detail)
	assert.Equal(t, models.MatchStatusMatched, detail.ATrade.MatchStatus)
	assert.Equal(t, models.MatchStatusMatched, detail.BTrade.MatchStatus)

	resp = d.Dispatch(ctx, owner, ListSettlements{})
	require.True(t, resp.Success)
	assert.Len(t, resp.Data.([]models.Settlement), 1)

	resp = d.Dispatch(ctx, owner, DeleteSettlement{ID: created.ID})
	require.True(t, resp.Success, resp.Message)

	resp = d.Dispatch(ctx, owner, GetTrade{ID: a.ID})
	require.True(t, resp.Success)
	assert.Equal(t, models.MatchStatusUnmatched, resp.Data.(*models.Trade).MatchStatus)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("createSettlement", CodeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("addTrade", CodeOK)))
}

func TestDispatch_Errors(t *testing.T) {
	d, m := setupTest(t, nil)
	ctx := context.Background()
	a := addTrade(t, d, models.TradeTypeBuy, "15.20", 1000, "2024-05-01")
	b := addTrade(t, d, models.TradeTypeSell, "15.80", 500, "2024-05-02")

	testCases := []struct {
		name    string
		owner   string
		req     Request
		code    apperr.Kind
		message string
	}{
		{
			name:    "quantity mismatch",
			owner:   owner,
			req:     CreateSettlement{ATradeID: a.ID, BTradeID: b.ID, Date: date("2024-05-02")},
			code:    apperr.KindConflict,
			message: "quantities differ",
		},
		{
			name:    "missing field",
			owner:   owner,
			req:     CreateSettlement{BTradeID: b.ID, Date: date("2024-05-02")},
			code:    apperr.KindValidation,
			message: "aTradeId failed required",
		},
		{
			name:    "missing date",
			owner:   owner,
			req:     CreateSettlement{ATradeID: a.ID, BTradeID: b.ID},
			code:    apperr.KindValidation,
			message: "date failed required",
		},
		{
			name:    "same trade twice",
			owner:   owner,
			req:     UpdateSettlement{ID: "s", ATradeID: a.ID, BTradeID: a.ID},
			code:    apperr.KindValidation,
			message: "bTradeId failed nefield",
		},
		{
			name:  "missing owner",
			owner: "",
			req:   GetSettlementDetail{ID: "x"},
			code:  apperr.KindValidation,
		},
		{
			name:  "unknown settlement",
			owner: owner,
			req:   GetSettlementDetail{ID: "nope"},
			code:  apperr.KindNotFound,
		},
		{
			name:    "bad trade type",
			owner:   owner,
			req:     AddTrade{StockCode: "600000", Type: "hold", Price: decimal.NewFromInt(1), Quantity: 1, Date: date("2024-05-02")},
			code:    apperr.KindValidation,
			message: "type failed oneof",
		},
		{
			name:  "page size too large",
			owner: owner,
			req:   ListTrades{PageSize: 500},
			code:  apperr.KindValidation,
		},
		{
			name:  "nil request",
			owner: owner,
			req:   nil,
			code:  apperr.KindValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := d.Dispatch(ctx, tc.owner, tc.req)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			assert.Equal(t, string(tc.code), resp.Code)
			if tc.message != "" {
				assert.Contains(t, resp.Message, tc.message)
			}
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("createSettlement", string(apperr.KindConflict))))
}

func TestDispatch_PureMatching(t *testing.T) {
	d, _ := setupTest(t, nil)
	ctx := context.Background()
	day := func(n int) time.Time { return time.Date(2024, 3, n, 0, 0, 0, 0, time.UTC) }
	tr := func(id string, typ models.TradeType, price string, qty int64, n int) models.Trade {
		return models.Trade{ID: id, StockCode: "600000", Type: typ, Price: decimal.RequireFromString(price), Quantity: qty, RemainingQuantity: qty, Date: day(n)}
	}
	history := []models.Trade{
		tr("b1", models.TradeTypeBuy, "10", 500, 1),
		tr("b2", models.TradeTypeBuy, "12", 500, 2),
	}

	// no owner needed for pure computations
	resp := d.Dispatch(ctx, "", MatchIncremental{History: history, NewTrade: tr("s1", models.TradeTypeSell, "15", 700, 3)})
	require.True(t, resp.Success, resp.Message)
	res := resp.Data.(fifo.MatchResult)
	assert.Equal(t, "3100.00", res.Profit.StringFixed(2))
	assert.Equal(t, int64(500), history[1].RemainingQuantity, "input is not mutated")

	resp = d.Dispatch(ctx, "", RecomputeTradeMatching{Trades: append(history, tr("s1", models.TradeTypeSell, "15", 700, 3))})
	require.True(t, resp.Success, resp.Message)
	rebuilt := resp.Data.([]models.Trade)
	require.Len(t, rebuilt, 3)
	assert.Equal(t, int64(300), rebuilt[1].RemainingQuantity)

	resp = d.Dispatch(ctx, "", MatchIncremental{NewTrade: models.Trade{Type: "hold"}})
	assert.Equal(t, string(apperr.KindValidation), resp.Code)
}

func TestDispatch_TradeOperations(t *testing.T) {
	d, _ := setupTest(t, nil)
	ctx := context.Background()
	a := addTrade(t, d, models.TradeTypeBuy, "10", 100, "2024-05-01")
	b := addTrade(t, d, models.TradeTypeSell, "11", 100, "2024-05-02")

	resp := d.Dispatch(ctx, owner, ListTrades{MatchStatus: "all", Page: 1, PageSize: 10})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, int64(2), resp.Data.(*models.TradePage).Pagination.Total)

	resp = d.Dispatch(ctx, owner, ListUnmatchedTrades{Keyword: "pufa"})
	require.True(t, resp.Success, resp.Message)
	assert.Len(t, resp.Data.(*models.TradePage).Trades, 2)

	resp = d.Dispatch(ctx, owner, ListUnmatchedTrades{Type: "sell"})
	require.True(t, resp.Success, resp.Message)
	sells := resp.Data.(*models.TradePage).Trades
	require.Len(t, sells, 1)
	assert.Equal(t, b.ID, sells[0].ID)

	resp = d.Dispatch(ctx, owner, ListUnmatchedTrades{Type: "hold"})
	assert.Equal(t, string(apperr.KindValidation), resp.Code)

	resp = d.Dispatch(ctx, owner, MatchingCandidates{ATradeID: a.ID})
	require.True(t, resp.Success, resp.Message)
	candidates := resp.Data.(*models.TradePage)
	require.Len(t, candidates.Trades, 1)
	assert.Equal(t, b.ID, candidates.Trades[0].ID)
	assert.Equal(t, 30, candidates.Pagination.PageSize)

	resp = d.Dispatch(ctx, owner, CheckTradeEditable{ID: a.ID})
	require.True(t, resp.Success, resp.Message)
	assert.True(t, resp.Data.(*trades.Editability).Editable)

	resp = d.Dispatch(ctx, owner, Reconcile{})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, 1, resp.Data.(*trades.ReconcileResult).Allocations)

	resp = d.Dispatch(ctx, owner, DeleteTrade{ID: b.ID})
	require.True(t, resp.Success, resp.Message)
	resp = d.Dispatch(ctx, owner, GetTrade{ID: b.ID})
	assert.Equal(t, string(apperr.KindNotFound), resp.Code)
}

func TestDispatch_ResolveStock(t *testing.T) {
	resolver := new(MockResolver)
	resolver.On("Resolve", mock.Anything, "600000").Return(&quote.Stock{Code: "600000", Name: "Pufa Bank", Market: "sh"}, nil)
	d, _ := setupTest(t, resolver)

	resp := d.Dispatch(context.Background(), "", ResolveStock{Code: "600000"})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Pufa Bank", resp.Data.(*quote.Stock).Name)
	resolver.AssertExpectations(t)

	unconfigured, _ := setupTest(t, nil)
	resp = unconfigured.Dispatch(context.Background(), "", ResolveStock{Code: "600000"})
	assert.Equal(t, string(apperr.KindNotFound), resp.Code)
}

func TestDateJSON(t *testing.T) {
	var req CreateSettlement
	require.NoError(t, json.Unmarshal([]byte(`{"aTradeId":"a","bTradeId":"b","date":"2024-05-02"}`), &req))
	assert.True(t, req.Date.Time().Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-05-02T10:00:00+08:00"}`), &req))
	assert.Equal(t, 2, req.Date.Time().Day())

	assert.Error(t, json.Unmarshal([]byte(`{"date":"02/05/2024"}`), &req))

	out, err := json.Marshal(date("2024-05-02"))
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-02"`, string(out))
}
