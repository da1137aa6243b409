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

// DoctorRepository is the MongoDB implementation of the doctor store.
type DoctorRepository struct {
	coll *mongo.Collection
}

var _ services.DoctorRepository = (*DoctorRepository)(nil)

func NewDoctorRepository(db *mongo.Database) *DoctorRepository {
	return &DoctorRepository{coll: db.Collection(CollDoctors)}
}

func (r *DoctorRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Doctor, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *DoctorRepository) FindByWaID(ctx context.Context, waID string) (*models.Doctor, error) {
	return r.findOne(ctx, bson.M{"wa_id": waID})
}

func (r *DoctorRepository) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Doctor, error) {
	return r.findOne(ctx, bson.M{"phone_number_id": phoneNumberID})
}

func (r *DoctorRepository) findOne(ctx context.Context, filter bson.M) (*models.Doctor, error) {
	var d models.Doctor
	err := r.coll.FindOne(ctx, filter).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
