package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationStatus is the quick-reply workflow state for one message.
type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "pending"
	NotificationNotified     NotificationStatus = "notified"
	NotificationAwaitingEdit NotificationStatus = "awaiting_edit"
	NotificationApproved     NotificationStatus = "approved"
	NotificationRejected     NotificationStatus = "rejected"
)

// Resolved reports whether the status is terminal.
func (s NotificationStatus) Resolved() bool {
	return s == NotificationApproved || s == NotificationRejected
}

// ApprovalNotification tracks the doctor-side quick-reply approval of a
// single message. At most one exists per message (unique index on
// message_id); creation is idempotent.
type ApprovalNotification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MessageID primitive.ObjectID `bson:"message_id" json:"message_id"`
	DoctorID  primitive.ObjectID `bson:"doctor_id" json:"doctor_id"`
	Status    NotificationStatus `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// AppointmentStatus of a synthesized appointment request.
type AppointmentStatus string

const (
	AppointmentRequested AppointmentStatus = "requested"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is synthesized when a booking intent is detected; it starts
// in "requested" and waits for the front desk to confirm.
type Appointment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID      primitive.ObjectID `bson:"patient_id" json:"patient_id"`
	DoctorID       primitive.ObjectID `bson:"doctor_id" json:"doctor_id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	ScheduledAt    time.Time          `bson:"scheduled_at" json:"scheduled_at"`
	Status         AppointmentStatus  `bson:"status" json:"status"`
	Source         string             `bson:"source,omitempty" json:"source,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
