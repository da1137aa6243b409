package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Performer identifies who caused an audited action.
type Performer string

const (
	PerformerDoctor    Performer = "doctor"
	PerformerSecretary Performer = "secretary"
	PerformerSystem    Performer = "system"
)

// Audit action tags. The quick-reply channel gets its own tags so dashboard
// and WhatsApp-driven decisions stay separable in compliance review.
const (
	AuditMessageReceived           = "message_received"
	AuditEmergencyDetected         = "emergency_detected"
	AuditAppointmentRequestCreated = "appointment_request_created"
	AuditMessageApproved           = "message_approved"
	AuditMessageRejected           = "message_rejected"
	AuditWhatsAppApprovalQuick     = "whatsapp_approval_quick"
	AuditWhatsAppApprovalCustom    = "whatsapp_approval_custom"
	AuditWhatsAppApprovalRejected  = "whatsapp_approval_rejected"
)

// AuditEntry is one immutable record in the per-doctor audit ledger.
// Entries are only ever inserted, never updated or deleted.
type AuditEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DoctorID  primitive.ObjectID `bson:"doctor_id" json:"doctor_id"`
	Action    string             `bson:"action" json:"action"`
	Details   bson.M             `bson:"details,omitempty" json:"details,omitempty"`
	Performer Performer          `bson:"performer" json:"performer"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}
