package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tbill-ledger-go/internal/apperr"
)

func TestDetectMarket(t *testing.T) {
	testCases := []struct {
		code   string
		market string
		query  string
	}{
		{"600000", MarketShanghai, "sh600000"},
		{"000001", MarketShenzhen, "sz000001"},
		{"300750", MarketShenzhen, "sz300750"},
		{"00700", MarketHongKong, "hk00700"},
		{"00700.hk", MarketHongKong, "hk00700"},
		{"09988.HK", MarketHongKong, "hk09988"},
		{"aapl", MarketUS, "AAPL"},
		{"BRK-B", MarketUS, "BRK-B"},
		{"msft.nasdaq", MarketUS, "MSFT"},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			sym, err := DetectMarket(tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.market, sym.Market)
			assert.Equal(t, tc.query, sym.Query)
			assert.Equal(t, tc.code, sym.Code)
		})
	}
}

func TestDetectMarket_Unsupported(t *testing.T) {
	for _, code := range []string{"", "123", "900001", "TOOLONGSYM", "12345", ".hk", " .HK "} {
		_, err := DetectMarket(code)
		assert.ErrorIs(t, err, apperr.ErrValidation, code)
	}
}
