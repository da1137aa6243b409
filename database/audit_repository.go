package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// AuditRepository is the MongoDB implementation of the append-only audit
// ledger. Only insert and query exist; the collection is never updated
// or pruned from application code.
type AuditRepository struct {
	coll *mongo.Collection
}

var _ services.AuditRepository = (*AuditRepository)(nil)

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(CollAudit)}
}

func (r *AuditRepository) Insert(ctx context.Context, e *models.AuditEntry) error {
	result, err := r.coll.InsertOne(ctx, e)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		e.ID = oid
	}
	return nil
}

// Query returns entries newest first, filtered by optional time range
// and action tag.
func (r *AuditRepository) Query(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time, action string, limit int64) ([]models.AuditEntry, error) {
	filter := bson.M{"doctor_id": doctorID}
	timeRange := bson.M{}
	if !from.IsZero() {
		timeRange["$gte"] = from
	}
	if !to.IsZero() {
		timeRange["$lte"] = to
	}
	if len(timeRange) > 0 {
		filter["timestamp"] = timeRange
	}
	if action != "" {
		filter["action"] = action
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
