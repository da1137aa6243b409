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

// ConversationRepository is the MongoDB implementation of the
// conversation store.
type ConversationRepository struct {
	coll *mongo.Collection
}

var _ services.ConversationRepository = (*ConversationRepository)(nil)

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{coll: db.Collection(CollConversations)}
}

// FindOrCreate upserts against the unique (doctor_id, patient_id) index
// and refreshes last_message_at in the same operation, so concurrent
// messages for a new pair still end up in a single conversation.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, doctorID, patientID primitive.ObjectID, channel models.MessageChannel, at time.Time) (*models.Conversation, error) {
	filter := bson.M{
		"doctor_id":  doctorID,
		"patient_id": patientID,
	}
	update := bson.M{
		"$set": bson.M{
			"channel":         channel,
			"last_message_at": at,
		},
		"$setOnInsert": bson.M{
			"created_at": at,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var conversation models.Conversation
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}
