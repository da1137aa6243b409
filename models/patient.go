package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Patient is a person messaging the clinic. Placeholder patients are
// created on first contact from an unknown channel identity and carry a
// generated name until the front desk fills in the record.
type Patient struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	WaID          string             `bson:"wa_id,omitempty" json:"wa_id,omitempty"`
	Language      string             `bson:"language,omitempty" json:"language,omitempty"`
	IsPlaceholder bool               `bson:"is_placeholder,omitempty" json:"is_placeholder,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// Doctor is a clinician receiving triaged messages. WaID is the doctor's
// own WhatsApp identity (the quick-reply line); PhoneNumberID is the
// business line patients message, used to route inbound traffic.
type Doctor struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	WaID          string             `bson:"wa_id" json:"wa_id"`
	PhoneNumberID string             `bson:"phone_number_id" json:"phone_number_id"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
