package httpapi

import (
	"github.com/gin-gonic/gin"

	"tbill-ledger-go/internal/ledger"
)

func (s *Server) addTrade(c *gin.Context) {
	var req ledger.AddTrade
	if !bindJSON(c, &req) {
		return
	}
	s.run(c, req)
}

func (s *Server) listTrades(c *gin.Context) {
	p, size, ok := page(c)
	if !ok {
		return
	}
	s.run(c, ledger.ListTrades{
		MatchStatus: c.Query("matchStatus"),
		StockCode:   c.Query("stockCode"),
		Type:        c.Query("type"),
		Keyword:     c.Query("keyword"),
		Page:        p,
		PageSize:    size,
	})
}

func (s *Server) listUnmatched(c *gin.Context) {
	p, size, ok := page(c)
	if !ok {
		return
	}
	s.run(c, ledger.ListUnmatchedTrades{
		StockCode: c.Query("stockCode"),
		Type:      c.Query("type"),
		Keyword:   c.Query("keyword"),
		Page:      p,
		PageSize:  size,
	})
}

func (s *Server) getTrade(c *gin.Context) {
	s.run(c, ledger.GetTrade{ID: c.Param("id")})
}

func (s *Server) deleteTrade(c *gin.Context) {
	s.run(c, ledger.DeleteTrade{ID: c.Param("id")})
}

func (s *Server) checkEditable(c *gin.Context) {
	s.run(c, ledger.CheckTradeEditable{ID: c.Param("id")})
}

func (s *Server) candidates(c *gin.Context) {
	p, size, ok := page(c)
	if !ok {
		return
	}
	s.run(c, ledger.MatchingCandidates{ATradeID: c.Param("id"), Page: p, PageSize: size})
}

func (s *Server) reconcile(c *gin.Context) {
	s.run(c, ledger.Reconcile{})
}

func (s *Server) listSettlements(c *gin.Context) {
	s.run(c, ledger.ListSettlements{})
}

func (s *Server) createSettlement(c *gin.Context) {
	var req ledger.CreateSettlement
	if !bindJSON(c, &req) {
		return
	}
	s.run(c, req)
}

func (s *Server) getSettlement(c *gin.Context) {
	s.run(c, ledger.GetSettlementDetail{ID: c.Param("id")})
}

func (s *Server) updateSettlement(c *gin.Context) {
	var req ledger.UpdateSettlement
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	s.run(c, req)
}

func (s *Server) deleteSettlement(c *gin.Context) {
	s.run(c, ledger.DeleteSettlement{ID: c.Param("id")})
}

func (s *Server) matchIncremental(c *gin.Context) {
	var req ledger.MatchIncremental
	if !bindJSON(c, &req) {
		return
	}
	s.run(c, req)
}

func (s *Server) rebuild(c *gin.Context) {
	var req ledger.RecomputeTradeMatching
	if !bindJSON(c, &req) {
		return
	}
	s.run(c, req)
}

func (s *Server) resolveStock(c *gin.Context) {
	s.run(c, ledger.ResolveStock{Code: c.Param("code")})
}
