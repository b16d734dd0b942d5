package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketdash/models"
)

// MongoDB database and collection names
const (
	ArchiveDBName           = "marketdash"
	ArchiveSignalCollection = "signal_history"
)

// SignalArchive persists generated signals in MongoDB for later
// inspection. Optional: a nil *SignalArchive is a no-op on every
// method, so the dashboard runs fine without MongoDB.
type SignalArchive struct {
	client   *mongo.Client
	database *mongo.Database
}

// ArchivedSignal is the stored form of a signal
type ArchivedSignal struct {
	Symbol     string                 `bson:"symbol"`
	Provider   string                 `bson:"provider"`
	Interval   string                 `bson:"interval"`
	Timestamp  int64                  `bson:"timestamp"`
	Action     string                 `bson:"action"`
	Confidence float64                `bson:"confidence"`
	StrategyID string                 `bson:"strategy_id"`
	Metadata   map[string]interface{} `bson:"metadata,omitempty"`
	ArchivedAt time.Time              `bson:"archived_at"`
}

// Global signal archive; nil when MongoDB is not configured
var GlobalSignalArchive *SignalArchive

// InitSignalArchive connects to MongoDB when a URI is configured. A
// missing or unreachable MongoDB disables archiving, not the service.
func InitSignalArchive(uri string) error {
	if uri == "" {
		log.Println("MONGODB_URI not set, signal archive disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Printf("Warning: MongoDB unreachable, signal archive disabled: %v", err)
		return nil
	}

	GlobalSignalArchive = &SignalArchive{
		client:   client,
		database: client.Database(ArchiveDBName),
	}
	log.Println("Signal archive connected to MongoDB")
	return nil
}

// SaveSignals archives a batch of generated signals. Failures are
// logged, never propagated: archiving is best effort.
func (a *SignalArchive) SaveSignals(ctx context.Context, provider, interval string, signals []models.Signal) {
	if a == nil || len(signals) == 0 {
		return
	}

	docs := make([]interface{}, 0, len(signals))
	now := time.Now()
	for _, s := range signals {
		docs = append(docs, ArchivedSignal{
			Symbol:     s.Symbol,
			Provider:   provider,
			Interval:   interval,
			Timestamp:  s.Timestamp,
			Action:     s.Action,
			Confidence: s.Confidence,
			StrategyID: s.StrategyID,
			Metadata:   s.Metadata,
			ArchivedAt: now,
		})
	}

	coll := a.database.Collection(ArchiveSignalCollection)
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		log.Printf("Warning: failed to archive %d signals: %v", len(docs), err)
	}
}

// RecentSignals returns archived signals for a symbol, newest first
func (a *SignalArchive) RecentSignals(ctx context.Context, symbol string, limit int64) ([]ArchivedSignal, error) {
	if a == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	coll := a.database.Collection(ArchiveSignalCollection)
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := coll.Find(ctx, bson.M{"symbol": symbol}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []ArchivedSignal
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close disconnects from MongoDB
func (a *SignalArchive) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}
