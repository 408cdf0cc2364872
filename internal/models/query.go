package models

// MatchUpdate is the change applied to a trade when it is bound into or released
// from a settlement.
type MatchUpdate struct {
	Status       MatchStatus
	SettlementID *string
	// Expect, when non-empty, guards the write: the row must currently carry this
	// status or the update is rejected as a conflict.
	Expect MatchStatus
}

// Bind returns the update that marks a trade as matched to settlementID.
// It only applies to trades that are still unmatched.
func Bind(settlementID string) MatchUpdate {
	return MatchUpdate{Status: MatchStatusMatched, SettlementID: &settlementID, Expect: MatchStatusUnmatched}
}

// Unbind returns the update that releases a trade from its settlement.
func Unbind() MatchUpdate {
	return MatchUpdate{Status: MatchStatusUnmatched}
}

// TradeFilter narrows trade listings. Empty fields (or "all") match everything.
type TradeFilter struct {
	MatchStatus MatchStatus
	StockCode   string
	Type        TradeType
	Quantity    int64
	ExcludeID   string
	// Keyword matches stockCode or stockName, case-insensitively.
	Keyword  string
	Page     int
	PageSize int
}

// Offset returns the number of rows to skip for the filter's page.
func (f TradeFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	HasMore  bool  `json:"hasMore"`
}

// TradePage is one page of trades.
type TradePage struct {
	Trades     []Trade    `json:"data"`
	Pagination Pagination `json:"pagination"`
}
