package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketdash/models"
	"marketdash/services"
	"marketdash/services/signals"
)

// Bounds for the signal lookback query
const (
	defaultSignalLookback = time.Hour
	maxSignalLookback     = 7 * 24 * time.Hour
)

// SignalController handles signal-related requests
type SignalController struct{}

// NewSignalController creates a new signal controller
func NewSignalController() *SignalController {
	return &SignalController{}
}

// GetSignals evaluates a strategy for a feed over a time window.
// The window is either [from, to) in epoch ms, or the last lookback
// minutes when from/to are absent.
// GET /api/v1/signals?symbol=BTC/USDT&interval=1h&strategy=ema_crossover_rsi
func (sc *SignalController) GetSignals(c *gin.Context) {
	symbol, interval, provider, ok := feedQuery(c)
	if !ok {
		return
	}

	strategyID := c.DefaultQuery("strategy", models.DefaultStrategyID)

	now := time.Now()
	from := now.Add(-defaultSignalLookback)
	to := now

	if v := c.Query("lookback_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 || time.Duration(minutes)*time.Minute > maxSignalLookback {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lookback_minutes"})
			return
		}
		from = now.Add(-time.Duration(minutes) * time.Minute)
	}
	if v := c.Query("from"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = time.UnixMilli(ms)
	}
	if v := c.Query("to"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = time.UnixMilli(ms)
	}

	results, err := signals.GlobalSignalService.Signals(
		c.Request.Context(), provider, symbol, interval, from, to, strategyID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": results,
		"meta": gin.H{
			"symbol":   symbol,
			"interval": interval,
			"provider": provider,
			"strategy": strategyID,
			"from":     from.UnixMilli(),
			"to":       to.UnixMilli(),
			"count":    len(results),
		},
	})
}

// GetStrategies lists the registered signal strategies
// GET /api/v1/strategies
func (sc *SignalController) GetStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": signals.GlobalSignalService.Strategies()})
}

// GetSignalHistory returns archived signals for a symbol, newest first.
// Only available when the MongoDB signal archive is configured.
// GET /api/v1/signals/history?symbol=BTC/USDT&limit=50
func (sc *SignalController) GetSignalHistory(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	if services.GlobalSignalArchive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Signal archive not configured"})
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	history, err := services.GlobalSignalArchive.RecentSignals(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signal history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history, "meta": gin.H{"count": len(history)}})
}
