package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
)

// =============================================================================
// MongoDB Archive Adapter
// =============================================================================

const (
	collectionEvents = "complaint_events"

	defaultHistoryLimit = 50
)

// ArchiveAdapter keeps every build event for case history queries.
type ArchiveAdapter struct {
	collection *mongo.Collection
}

var _ out.ComplaintArchive = (*ArchiveAdapter)(nil)

func NewArchiveAdapter(db *mongo.Database) *ArchiveAdapter {
	return &ArchiveAdapter{collection: db.Collection(collectionEvents)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "case_key", Value: 1},
				{Key: "occurred_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "run_id", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// AppendEvent inserts the event. Replays of the same event ID are ignored.
func (a *ArchiveAdapter) AppendEvent(ctx context.Context, event *domain.BuildEvent) error {
	doc := *event
	doc.OccurredAt = doc.OccurredAt.UTC()

	opts := options.Update().SetUpsert(true)
	_, err := a.collection.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$setOnInsert": doc},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to append build event: %w", err)
	}
	return nil
}

// CaseHistory returns events for a case key, newest first.
func (a *ArchiveAdapter) CaseHistory(ctx context.Context, key domain.CaseKey, limit int) ([]*domain.BuildEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"case_key": string(key)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query case history: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.BuildEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode case history: %w", err)
	}

	for _, e := range events {
		e.OccurredAt = e.OccurredAt.UTC()
		if e.Record != nil {
			e.Record.ReceivedAt = e.Record.ReceivedAt.UTC()
			e.Record.FirstSeenAt = e.Record.FirstSeenAt.UTC()
		}
	}
	return events, nil
}
