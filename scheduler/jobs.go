package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"marketdash/models"
	"marketdash/services"
	"marketdash/services/realtime"
)

const candleRetention = 90 * 24 * time.Hour

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron           *gocron.Scheduler
	db             *gorm.DB
	stream         *realtime.StreamService
	defaultSymbols []string
}

// NewScheduler creates a new scheduler instance. The db may be nil when
// Postgres is unavailable, in which case watchlist and alert jobs are skipped.
func NewScheduler(db *gorm.DB, stream *realtime.StreamService, defaultSymbols []string) *Scheduler {
	return &Scheduler{
		cron:           gocron.NewScheduler(time.UTC),
		db:             db,
		stream:         stream,
		defaultSymbols: defaultSymbols,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Sync candle history for tracked symbols every 5 minutes
	s.cron.Every(5).Minutes().Do(func() {
		s.syncTrackedCandles()
	})

	// Check and trigger price alerts every minute
	s.cron.Every(1).Minute().Do(func() {
		s.checkPriceAlerts()
	})

	// Cleanup old candle data daily at 01:00
	s.cron.Every(1).Day().At("01:00").Do(func() {
		s.cleanupOldData()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// trackedFeed is a provider/symbol/interval triple the sync job maintains
type trackedFeed struct {
	Provider string
	Symbol   string
	Interval string
}

// trackedFeeds collects the distinct feeds from all user watchlists,
// falling back to the configured default symbols when none exist
func (s *Scheduler) trackedFeeds() []trackedFeed {
	seen := make(map[trackedFeed]bool)
	var feeds []trackedFeed

	if s.db != nil {
		var items []models.WatchlistItem
		if err := s.db.Find(&items).Error; err != nil {
			log.Printf("Error loading watchlist: %v", err)
		}
		for _, item := range items {
			feed := trackedFeed{Provider: item.Provider, Symbol: item.Symbol, Interval: item.Interval}
			if !seen[feed] {
				seen[feed] = true
				feeds = append(feeds, feed)
			}
		}
	}

	if len(feeds) == 0 {
		provider := services.GlobalCandleService.DefaultProvider()
		for _, symbol := range s.defaultSymbols {
			feeds = append(feeds, trackedFeed{Provider: provider, Symbol: symbol, Interval: models.Interval1h})
		}
	}
	return feeds
}

// syncTrackedCandles backfills candle history for every tracked feed
func (s *Scheduler) syncTrackedCandles() {
	feeds := s.trackedFeeds()
	if len(feeds) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	synced := 0
	for _, feed := range feeds {
		if err := services.GlobalCandleService.SyncCandles(ctx, feed.Provider, feed.Symbol, feed.Interval, 100); err != nil {
			log.Printf("Error syncing candles for %s %s %s: %v", feed.Provider, feed.Symbol, feed.Interval, err)
			continue
		}
		synced++
	}
	log.Printf("Synced candle history for %d/%d feeds", synced, len(feeds))
}

// checkPriceAlerts evaluates active price alerts against the latest close
// and notifies connected websocket clients when one fires
func (s *Scheduler) checkPriceAlerts() {
	if s.db == nil {
		return
	}

	var alerts []models.PriceAlert
	if err := s.db.Where("is_active = ? AND triggered_at IS NULL", true).Find(&alerts).Error; err != nil {
		log.Printf("Error loading alerts: %v", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, alert := range alerts {
		candle, err := services.GlobalCandleService.LatestCandleFrom(ctx, alert.Provider, alert.Symbol, models.Interval1m)
		if err != nil || candle == nil {
			continue
		}

		price := decimal.NewFromFloat(candle.Close)
		if !alert.ShouldTrigger(price) {
			continue
		}

		now := time.Now()
		if err := s.db.Model(&alert).Updates(map[string]interface{}{
			"is_active":    false,
			"triggered_at": now,
		}).Error; err != nil {
			log.Printf("Error marking alert %d triggered: %v", alert.ID, err)
			continue
		}

		s.stream.Broadcast(realtime.TypeAlertTriggered, map[string]interface{}{
			"alertId":   alert.ID,
			"userId":    alert.UserID,
			"symbol":    alert.Symbol,
			"provider":  alert.Provider,
			"direction": alert.Direction,
			"threshold": alert.Threshold,
			"price":     candle.Close,
			"timestamp": now.UnixMilli(),
		})
		log.Printf("Alert triggered for user %d, symbol %s (%s %s)", alert.UserID, alert.Symbol, alert.Direction, alert.Threshold)
	}
}

// cleanupOldData removes old data to save storage
func (s *Scheduler) cleanupOldData() {
	log.Println("Cleaning up old data...")

	cutoff := time.Now().Add(-candleRetention)
	deleted, err := services.GlobalCandleStore.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("Error cleaning up old candles: %v", err)
		return
	}
	log.Printf("Cleanup completed, removed %d candles", deleted)
}
