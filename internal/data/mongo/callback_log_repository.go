package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fsp-disbursement/internal/domain/callback"
	"github.com/fsp-disbursement/internal/domain/shared"
)

const (
	// CallbackCollectionName is the name of the callback audit collection in MongoDB
	CallbackCollectionName = "fsp_callbacks"

	defaultCallbackListLimit = 50
)

// CallbackIndexes backs ListByReference and expires audit entries after retention.
// A zero retention keeps entries forever.
func CallbackIndexes(retention time.Duration) []mongo.IndexModel {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "reference", Value: 1}, {Key: "received_at", Value: -1}},
			Options: options.Index().SetName("provider_reference_received"),
		},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().
				SetName("received_at_ttl").
				SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}
	return indexes
}

// CallbackLogRepository implements callback.Repository for MongoDB
type CallbackLogRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewCallbackLogRepository creates a new MongoDB callback audit repository
func NewCallbackLogRepository(logger *slog.Logger, db *mongo.Database) *CallbackLogRepository {
	return &CallbackLogRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one callback to the audit log. Missing ids and timestamps are filled in.
func (r *CallbackLogRepository) Record(ctx context.Context, entry *callback.Entry) error {
	if entry == nil {
		return errors.New("callback entry cannot be nil")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}

	collection := r.db.Collection(CallbackCollectionName)
	if _, err := collection.InsertOne(ctx, entry); err != nil {
		r.logger.Error("Failed to record callback",
			"provider", entry.Provider,
			"reference", entry.Reference,
			"error", err)
		return fmt.Errorf("failed to record callback: %w", err)
	}

	return nil
}

// ListByReference returns the callbacks received for one provider reference, newest first
func (r *CallbackLogRepository) ListByReference(ctx context.Context, provider shared.ProviderName, reference string, limit int) ([]*callback.Entry, error) {
	if limit <= 0 {
		limit = defaultCallbackListLimit
	}

	collection := r.db.Collection(CallbackCollectionName)

	filter := bson.M{"provider": provider, "reference": reference}
	opts := options.Find().
		SetSort(bson.M{"received_at": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list callbacks",
			"provider", provider,
			"reference", reference,
			"error", err)
		return nil, fmt.Errorf("failed to list callbacks: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*callback.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode callbacks: %w", err)
	}

	return entries, nil
}
