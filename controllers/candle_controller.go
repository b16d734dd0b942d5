package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketdash/models"
	"marketdash/services"
	"marketdash/services/analysis"
)

// CandleController handles candle-related requests
type CandleController struct{}

// NewCandleController creates a new candle controller
func NewCandleController() *CandleController {
	return &CandleController{}
}

// feedQuery extracts and validates the common feed query parameters
func feedQuery(c *gin.Context) (symbol, interval, provider string, ok bool) {
	symbol = c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return "", "", "", false
	}

	interval = c.DefaultQuery("interval", models.Interval1h)
	if !models.ValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval: " + interval})
		return "", "", "", false
	}

	provider = c.DefaultQuery("provider", services.GlobalCandleService.DefaultProvider())
	if !models.ValidProvider(provider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider: " + provider})
		return "", "", "", false
	}
	return symbol, interval, provider, true
}

// GetCandles returns historical candles for a feed
// GET /api/v1/candles?symbol=BTC/USDT&interval=1h&provider=binance&limit=100
func (cc *CandleController) GetCandles(c *gin.Context) {
	symbol, interval, provider, ok := feedQuery(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	from, _ := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)
	to, _ := strconv.ParseInt(c.DefaultQuery("to", "0"), 10, 64)

	candles, err := services.GlobalCandleService.HistoricalCandles(
		c.Request.Context(), provider, symbol, interval, from, to, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch candles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": candles,
		"meta": gin.H{
			"symbol":   symbol,
			"interval": interval,
			"provider": provider,
			"count":    len(candles),
		},
	})
}

// GetLatestCandle returns the latest candle for a feed, data=null when
// the feed has no data yet
// GET /api/v1/candles/latest?symbol=BTC/USDT&interval=1m
func (cc *CandleController) GetLatestCandle(c *gin.Context) {
	symbol, interval, provider, ok := feedQuery(c)
	if !ok {
		return
	}

	candle, err := services.GlobalCandleService.LatestCandleFrom(
		c.Request.Context(), provider, symbol, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch latest candle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": candle})
}

// GetIndicators returns the indicator summary for a feed
// GET /api/v1/candles/indicators?symbol=BTC/USDT&interval=1h
func (cc *CandleController) GetIndicators(c *gin.Context) {
	symbol, interval, provider, ok := feedQuery(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	candles, err := services.GlobalCandleService.HistoricalCandles(
		c.Request.Context(), provider, symbol, interval, 0, 0, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch candles"})
		return
	}

	summary, err := analysis.Summarize(candles)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Insufficient data for indicators"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetProviders lists the supported market data providers
// GET /api/v1/providers
func (cc *CandleController) GetProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data":    models.Providers,
		"default": services.GlobalCandleService.DefaultProvider(),
	})
}
