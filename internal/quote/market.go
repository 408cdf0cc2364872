package quote

import (
	"regexp"
	"strings"

	"tbill-ledger-go/internal/apperr"
)

// Markets recognised by DetectMarket.
const (
	MarketShanghai = "sh"
	MarketShenzhen = "sz"
	MarketHongKong = "hk"
	MarketUS       = "us"
)

var usSymbol = regexp.MustCompile(`^[A-Za-z]{1,5}(-[A-Za-z]{1,2})?(\.[A-Za-z]+)?$`)

// Symbol is a stock code classified into its market, together with the symbol the
// quote endpoint expects for it.
type Symbol struct {
	Code   string
	Market string
	Query  string
}

// DetectMarket classifies code by its shape. Six digits starting with 6 trade in
// Shanghai, six digits starting with 0 or 3 in Shenzhen, five digits starting with 0
// or anything with a ".hk" suffix in Hong Kong, and short letter symbols in the US.
func DetectMarket(code string) (Symbol, error) {
	code = strings.TrimSpace(code)
	lower := strings.ToLower(code)
	switch {
	case len(code) == 6 && isDigits(code) && code[0] == '6':
		return Symbol{Code: code, Market: MarketShanghai, Query: MarketShanghai + code}, nil
	case len(code) == 6 && isDigits(code) && (code[0] == '0' || code[0] == '3'):
		return Symbol{Code: code, Market: MarketShenzhen, Query: MarketShenzhen + code}, nil
	case len(code) == 5 && isDigits(code) && code[0] == '0':
		return Symbol{Code: code, Market: MarketHongKong, Query: MarketHongKong + code}, nil
	case strings.HasSuffix(lower, ".hk") && len(code) > len(".hk"):
		hk := code[:len(code)-len(".hk")]
		return Symbol{Code: code, Market: MarketHongKong, Query: MarketHongKong + hk}, nil
	case usSymbol.MatchString(code):
		us := strings.ToUpper(strings.SplitN(code, ".", 2)[0])
		return Symbol{Code: code, Market: MarketUS, Query: us}, nil
	}
	return Symbol{}, apperr.Validation("detect market", "unsupported stock code format %q", code)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
