// Package httpapi exposes the ledger operations over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/ledger"
	"tbill-ledger-go/internal/metrics"
)

// OwnerHeader carries the id of the ledger owner on every owner-scoped request.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "ownerID"

// Dispatcher runs ledger operations.
type Dispatcher interface {
	Dispatch(ctx context.Context, ownerID string, req ledger.Request) ledger.Response
}

// Server holds the router and its dependencies.
type Server struct {
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	router     *gin.Engine
}

// NewServer builds the router. m may be nil, which disables /metrics.
func NewServer(dispatcher Dispatcher, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.Named("http"),
	}
	s.router = s.setupRouter()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	if s.metrics != nil {
		router.Use(s.metricsMiddleware())
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	tradesGroup := api.Group("/trades", requireOwner())
	tradesGroup.POST("", s.addTrade)
	tradesGroup.GET("", s.listTrades)
	tradesGroup.GET("/unmatched", s.listUnmatched)
	tradesGroup.POST("/reconcile", s.reconcile)
	tradesGroup.GET("/:id", s.getTrade)
	tradesGroup.DELETE("/:id", s.deleteTrade)
	tradesGroup.GET("/:id/editable", s.checkEditable)
	tradesGroup.GET("/:id/candidates", s.candidates)

	settlements := api.Group("/settlements", requireOwner())
	settlements.GET("", s.listSettlements)
	settlements.POST("", s.createSettlement)
	settlements.GET("/:id", s.getSettlement)
	settlements.PUT("/:id", s.updateSettlement)
	settlements.DELETE("/:id", s.deleteSettlement)

	matching := api.Group("/matching")
	matching.POST("/incremental", s.matchIncremental)
	matching.POST("/rebuild", s.rebuild)

	api.GET("/stocks/:code", s.resolveStock)

	return router
}

// requireOwner rejects requests without an owner header.
func requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(OwnerHeader)
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, ledger.Response{
				Message: fmt.Sprintf("missing %s header", OwnerHeader),
				Code:    string(apperr.KindValidation),
			})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// metricsMiddleware records HTTP request counts and durations.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method
		s.metrics.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(c.Writer.Status())).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}

// statusFor maps a response code to an HTTP status.
func statusFor(resp ledger.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	switch apperr.Kind(resp.Code) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// run dispatches req and writes the response.
func (s *Server) run(c *gin.Context, req ledger.Request) {
	resp := s.dispatcher.Dispatch(c.Request.Context(), c.GetString(ownerKey), req)
	c.JSON(statusFor(resp), resp)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ledger.Response{
		Message: "invalid request: " + err.Error(),
		Code:    string(apperr.KindValidation),
	})
}

// bindJSON decodes the request body into req, answering 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func page(c *gin.Context) (int, int, bool) {
	p, err := queryInt(c, "page")
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	size, err := queryInt(c, "pageSize")
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	return p, size, true
}
