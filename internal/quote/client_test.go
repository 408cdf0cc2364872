package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/time/rate"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/config"
)

// MockCache is a mock implementation of Cache.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, code string) (*Stock, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Stock), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, stock *Stock) error {
	args := m.Called(ctx, stock)
	return args.Error(0)
}

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler, cache Cache) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:  resty.New().SetBaseURL(server.URL),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		cache:   cache,
		logger:  zap.NewNop(),
	}
	return c, server
}

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	out, err := simplifiedchinese.GBK.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func TestResolve(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		body := gbk(t, `var hq_str_sh600000="浦发银行,10.00,10.01,9.98";`)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/list=sh600000", r.URL.Path)
			w.Header().Set("Content-Type", "application/javascript; charset=GBK")
			_, _ = w.Write(body)
		})
		c, server := setupTestServer(handler, nil)
		defer server.Close()

		stock, err := c.Resolve(context.Background(), "600000")

		require.NoError(t, err)
		assert.Equal(t, &Stock{Code: "600000", Name: "浦发银行", Market: MarketShanghai}, stock)
	})

	t.Run("EmptyQuote", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`var hq_str_sz000000="";`))
		})
		c, server := setupTestServer(handler, nil)
		defer server.Close()

		_, err := c.Resolve(context.Background(), "000000")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("UnsupportedCode", func(t *testing.T) {
		var hits int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
		})
		c, server := setupTestServer(handler, nil)
		defer server.Close()

		_, err := c.Resolve(context.Background(), "12")
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Zero(t, atomic.LoadInt32(&hits))
	})

	t.Run("ClientErrorIsNotRetried", func(t *testing.T) {
		var hits int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusForbidden)
		})
		c, server := setupTestServer(handler, nil)
		defer server.Close()

		_, err := c.Resolve(context.Background(), "600000")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fetch quote")
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("ServerErrorIsRetried", func(t *testing.T) {
		var hits int32
		body := gbk(t, `var hq_str_hk00700="腾讯控股,300.0";`)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&hits, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write(body)
		})
		c, server := setupTestServer(handler, nil)
		defer server.Close()

		stock, err := c.Resolve(context.Background(), "00700")
		require.NoError(t, err)
		assert.Equal(t, "腾讯控股", stock.Name)
		assert.Equal(t, MarketHongKong, stock.Market)
		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	})
}

func TestResolve_Cache(t *testing.T) {
	t.Run("Hit", func(t *testing.T) {
		cached := &Stock{Code: "600000", Name: "浦发银行", Market: MarketShanghai}
		cache := new(MockCache)
		cache.On("Get", mock.Anything, "600000").Return(cached, nil)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("quote endpoint must not be called on a cache hit")
		})
		c, server := setupTestServer(handler, cache)
		defer server.Close()

		stock, err := c.Resolve(context.Background(), "600000")
		require.NoError(t, err)
		assert.Same(t, cached, stock)
		cache.AssertExpectations(t)
	})

	t.Run("MissStores", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, "AAPL").Return(nil, nil)
		cache.On("Set", mock.Anything, &Stock{Code: "AAPL", Name: "Apple Inc", Market: MarketUS}).Return(nil)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/list=AAPL", r.URL.Path)
			_, _ = w.Write([]byte(`var hq_str_AAPL="Apple Inc,190.1";`))
		})
		c, server := setupTestServer(handler, cache)
		defer server.Close()

		stock, err := c.Resolve(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, "Apple Inc", stock.Name)
		cache.AssertExpectations(t)
	})

	t.Run("CacheFailureIsNotFatal", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, "000001").Return(nil, errors.New("redis down"))
		cache.On("Set", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(gbk(t, `var hq_str_sz000001="平安银行,11.2";`))
		})
		c, server := setupTestServer(handler, cache)
		defer server.Close()

		stock, err := c.Resolve(context.Background(), "000001")
		require.NoError(t, err)
		assert.Equal(t, "平安银行", stock.Name)
	})
}

func TestNewClient(t *testing.T) {
	c := NewClient(config.Quote{BaseURL: "http://example.com/", RateLimit: 5, RateLimitBurst: 2, Timeout: 3}, nil, zap.NewNop())
	assert.Equal(t, "http://example.com", c.client.BaseURL)
	assert.Equal(t, "https://finance.sina.com.cn", c.client.Header.Get("Referer"))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "localhost:6379", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}
