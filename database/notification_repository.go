package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// NotificationRepository is the MongoDB implementation of the
// quick-reply approval notification store.
type NotificationRepository struct {
	coll *mongo.Collection
}

var _ services.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{coll: db.Collection(CollNotifications)}
}

// Create inserts a notification unless one already exists for the
// message, in which case the existing row is returned unchanged. The
// unique message_id index closes the race between two creators.
func (r *NotificationRepository) Create(ctx context.Context, n *models.ApprovalNotification) (*models.ApprovalNotification, bool, error) {
	if existing, err := r.FindByMessageID(ctx, n.MessageID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, services.ErrNotFound) {
		return nil, false, err
	}

	result, err := r.coll.InsertOne(ctx, n)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := r.FindByMessageID(ctx, n.MessageID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid
	}
	return n, true, nil
}

func (r *NotificationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.ApprovalNotification, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *NotificationRepository) FindByMessageID(ctx context.Context, messageID primitive.ObjectID) (*models.ApprovalNotification, error) {
	return r.findOne(ctx, bson.M{"message_id": messageID}, nil)
}

// FindLatestOutstanding returns the most recently created notification
// still awaiting the doctor's decision.
func (r *NotificationRepository) FindLatestOutstanding(ctx context.Context, doctorID primitive.ObjectID) (*models.ApprovalNotification, error) {
	filter := bson.M{
		"doctor_id": doctorID,
		"status": bson.M{"$in": []models.NotificationStatus{
			models.NotificationNotified,
			models.NotificationAwaitingEdit,
		}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findOne(ctx, filter, opts)
}

// UpdateStatus is a compare-and-set on the current status.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.NotificationStatus, at time.Time) (bool, error) {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": at}}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

// ResolveByMessageID closes any unresolved notification for a message.
// Used by the dashboard path to keep both surfaces in agreement; a
// missing or already-resolved notification is not an error.
func (r *NotificationRepository) ResolveByMessageID(ctx context.Context, messageID primitive.ObjectID, to models.NotificationStatus, at time.Time) (bool, error) {
	filter := bson.M{
		"message_id": messageID,
		"status": bson.M{"$nin": []models.NotificationStatus{
			models.NotificationApproved,
			models.NotificationRejected,
		}},
	}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": at}}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *NotificationRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.ApprovalNotification, error) {
	var n models.ApprovalNotification
	var err error
	if opts != nil {
		err = r.coll.FindOne(ctx, filter, opts).Decode(&n)
	} else {
		err = r.coll.FindOne(ctx, filter).Decode(&n)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}
