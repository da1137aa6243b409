package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// PatientRepository is the MongoDB implementation of the patient store.
type PatientRepository struct {
	coll *mongo.Collection
}

var _ services.PatientRepository = (*PatientRepository)(nil)

func NewPatientRepository(db *mongo.Database) *PatientRepository {
	return &PatientRepository{coll: db.Collection(CollPatients)}
}

func (r *PatientRepository) FindByWaID(ctx context.Context, waID string) (*models.Patient, error) {
	return r.findOne(ctx, bson.M{"wa_id": waID})
}

func (r *PatientRepository) FindByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *PatientRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Patient, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// CreatePlaceholder upserts on the channel identity so two concurrent
// ingestions of the same unknown sender converge on one record.
func (r *PatientRepository) CreatePlaceholder(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	filter := bson.M{"wa_id": p.WaID}
	update := bson.M{"$setOnInsert": bson.M{
		"name":           p.Name,
		"phone":          p.Phone,
		"wa_id":          p.WaID,
		"language":       p.Language,
		"is_placeholder": true,
		"created_at":     p.CreatedAt,
	}}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored models.Patient
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *PatientRepository) findOne(ctx context.Context, filter bson.M) (*models.Patient, error) {
	var p models.Patient
	err := r.coll.FindOne(ctx, filter).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
