// Package quote resolves stock codes to their display name and market using the
// Sina quote endpoint.
package quote

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/time/rate"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/config"
)

const referer = "https://finance.sina.com.cn"

// quoteName captures the first comma-separated field of a response such as
// var hq_str_sh600000="浦发银行,10.00,10.01,...";
var quoteName = regexp.MustCompile(`="([^,"]*)`)

// Stock is the resolved metadata of a stock code.
type Stock struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// Resolver looks up stock metadata.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Stock, error)
}

// Cache stores resolved stocks. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, code string) (*Stock, error)
	Set(ctx context.Context, stock *Stock) error
}

// Client is a rate-limited client for the quote endpoint.
// It implements the Resolver interface.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
	cache   Cache
	logger  *zap.Logger
}

// ensure Client implements the interface
var _ Resolver = (*Client)(nil)

// NewClient creates a quote client. cache may be nil.
func NewClient(cfg config.Quote, cache Cache, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetHeader("Referer", referer)

	return &Client{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		cache:   cache,
		logger:  logger.Named("quote"),
	}
}

// Resolve returns the name and market of code, consulting the cache first.
func (c *Client) Resolve(ctx context.Context, code string) (*Stock, error) {
	sym, err := DetectMarket(code)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, sym.Code)
		if err != nil {
			c.logger.Warn("Quote cache read failed", zap.String("code", sym.Code), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/list="+sym.Query, c.client.R())
	if err != nil {
		c.logger.Error("Failed to fetch quote", zap.String("code", sym.Code), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", sym.Code, err)
	}

	name, err := parseName(resp.Body())
	if err != nil {
		return nil, err
	}
	stock := &Stock{Code: sym.Code, Name: name, Market: sym.Market}

	if c.cache != nil {
		if err := c.cache.Set(ctx, stock); err != nil {
			c.logger.Warn("Quote cache write failed", zap.String("code", sym.Code), zap.Error(err))
		}
	}
	return stock, nil
}

// parseName decodes a GBK quote body and extracts the stock name.
func parseName(body []byte) (string, error) {
	text, err := simplifiedchinese.GBK.NewDecoder().String(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to decode quote body: %w", err)
	}
	m := quoteName.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", apperr.NotFound("resolve stock", "no quote data returned")
	}
	return strings.TrimSpace(m[1]), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	req.SetContext(ctx)
	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, fmt.Errorf("request failed with status %s", resp.Status())
			}
			err = fmt.Errorf("status %s", resp.Status())
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if i == maxRetries-1 {
			break
		}
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
