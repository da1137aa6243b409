package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// AppointmentRepository is the MongoDB implementation of the appointment
// store.
type AppointmentRepository struct {
	coll *mongo.Collection
}

var _ services.AppointmentRepository = (*AppointmentRepository)(nil)

func NewAppointmentRepository(db *mongo.Database) *AppointmentRepository {
	return &AppointmentRepository{coll: db.Collection(CollAppointments)}
}

func (r *AppointmentRepository) Insert(ctx context.Context, a *models.Appointment) error {
	result, err := r.coll.InsertOne(ctx, a)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		a.ID = oid
	}
	return nil
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	var a models.Appointment
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
