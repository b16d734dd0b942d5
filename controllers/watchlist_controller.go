package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"marketdash/models"
)

// WatchlistController handles watchlist and price alert requests
type WatchlistController struct {
	db *gorm.DB
}

// NewWatchlistController creates a new watchlist controller
func NewWatchlistController(db *gorm.DB) *WatchlistController {
	return &WatchlistController{db: db}
}

// currentUserID reads the authenticated user's id from the context
func currentUserID(c *gin.Context) (uint, bool) {
	raw, _ := c.Get("user_id")
	s, _ := raw.(string)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return uint(id), true
}

// GetWatchlist returns the caller's watchlist
// GET /api/v1/watchlist
func (wc *WatchlistController) GetWatchlist(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var items []models.WatchlistItem
	if err := wc.db.Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch watchlist"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// AddWatchlistItem adds a symbol to the caller's watchlist
// POST /api/v1/watchlist
func (wc *WatchlistController) AddWatchlistItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Symbol   string `json:"symbol" binding:"required"`
		Provider string `json:"provider"`
		Interval string `json:"interval"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	if req.Provider == "" {
		req.Provider = models.ProviderBinance
	}
	if !models.ValidProvider(req.Provider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider: " + req.Provider})
		return
	}
	if req.Interval == "" {
		req.Interval = models.Interval1h
	}
	if !models.ValidInterval(req.Interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval: " + req.Interval})
		return
	}

	item := models.WatchlistItem{
		UserID:   userID,
		Symbol:   req.Symbol,
		Provider: req.Provider,
		Interval: req.Interval,
		Notes:    req.Notes,
	}
	if err := wc.db.Create(&item).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Symbol already on watchlist"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

// RemoveWatchlistItem removes a watchlist entry
// DELETE /api/v1/watchlist/:id
func (wc *WatchlistController) RemoveWatchlistItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	res := wc.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).Delete(&models.WatchlistItem{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove watchlist item"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Watchlist item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// GetAlerts returns the caller's price alerts
// GET /api/v1/alerts
func (wc *WatchlistController) GetAlerts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var alerts []models.PriceAlert
	if err := wc.db.Where("user_id = ?", userID).Order("created_at").Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// CreateAlert creates a price alert for the caller
// POST /api/v1/alerts
func (wc *WatchlistController) CreateAlert(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Symbol    string `json:"symbol" binding:"required"`
		Provider  string `json:"provider"`
		Threshold string `json:"threshold" binding:"required"`
		Direction string `json:"direction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol, threshold and direction are required"})
		return
	}
	if req.Direction != "above" && req.Direction != "below" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be above or below"})
		return
	}
	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil || threshold.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
		return
	}
	if req.Provider == "" {
		req.Provider = models.ProviderBinance
	}
	if !models.ValidProvider(req.Provider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider: " + req.Provider})
		return
	}

	alert := models.PriceAlert{
		UserID:    userID,
		Symbol:    req.Symbol,
		Provider:  req.Provider,
		Threshold: threshold,
		Direction: req.Direction,
		IsActive:  true,
	}
	if err := wc.db.Create(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": alert})
}

// DeleteAlert removes a price alert
// DELETE /api/v1/alerts/:id
func (wc *WatchlistController) DeleteAlert(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	res := wc.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).Delete(&models.PriceAlert{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
