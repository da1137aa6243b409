package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// MessageRepository is the MongoDB implementation of the message store.
type MessageRepository struct {
	coll *mongo.Collection
}

var _ services.MessageRepository = (*MessageRepository)(nil)

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{coll: db.Collection(CollMessages)}
}

func (r *MessageRepository) Insert(ctx context.Context, m *models.Message) error {
	result, err := r.coll.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("message %s: %w", m.ExternalID, services.ErrDuplicate)
		}
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid
	}
	return nil
}

func (r *MessageRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	var m models.Message
	err := r.coll.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Resolve sets the approval decision if and only if none has been set
// yet. The filter on "approved unset" makes a concurrent second
// resolution a clean no-op instead of a silent overwrite.
func (r *MessageRepository) Resolve(ctx context.Context, id primitive.ObjectID, res services.Resolution) (bool, error) {
	set := bson.M{
		"approved":    res.Approved,
		"approved_at": res.ResolvedAt,
	}
	if res.Draft != nil {
		set["draft_response"] = *res.Draft
	}
	if !res.Approved {
		set["requires_approval"] = false
		if res.Reason != "" {
			set["rejection_reason"] = res.Reason
		}
	}

	filter := bson.M{"_id": id, "approved": bson.M{"$exists": false}}
	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	if result.MatchedCount > 0 {
		return true, nil
	}

	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, services.ErrNotFound
	}
	return false, nil
}

func (r *MessageRepository) ListPending(ctx context.Context, doctorID primitive.ObjectID) ([]models.Message, error) {
	filter := bson.M{
		"doctor_id":         doctorID,
		"requires_approval": true,
		"approved":          bson.M{"$exists": false},
	}
	return r.list(ctx, filter)
}

func (r *MessageRepository) ListResolved(ctx context.Context, doctorID primitive.ObjectID) ([]models.Message, error) {
	filter := bson.M{
		"doctor_id": doctorID,
		"approved":  bson.M{"$exists": true},
	}
	return r.list(ctx, filter)
}

func (r *MessageRepository) list(ctx context.Context, filter bson.M) ([]models.Message, error) {
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
