package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Priority is the clinical urgency of an inbound message. Only P0 and P1
// are produced by the rules-based classifiers; P2/P3 are reserved.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// Rank returns the queue sort rank for a priority. Unset priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	default:
		return 4
	}
}

// TriageCategory classifies an inbound message for routing and stats.
// "clinical" is reserved for a future classifier; unclassified messages
// keep the empty value.
type TriageCategory string

const (
	TriageEmergency TriageCategory = "emergency"
	TriageClinical  TriageCategory = "clinical"
	TriageAdmin     TriageCategory = "admin"
)

// MessageDirection of a stored message relative to the clinic.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageChannel represents the communication channel
type MessageChannel string

const (
	ChannelWeb      MessageChannel = "web"
	ChannelWhatsApp MessageChannel = "whatsapp"
)

// Message is one stored patient/clinic message. ExternalID is the transport
// message id and doubles as the idempotency key: at most one Message exists
// per external id (unique index).
//
// A message is pending in the approval queue exactly while RequiresApproval
// is true and Approved is nil. Once Approved is set it is terminal for
// approval purposes.
type Message struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExternalID       string             `bson:"external_id" json:"external_id"`
	ConversationID   primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	PatientID        primitive.ObjectID `bson:"patient_id" json:"patient_id"`
	DoctorID         primitive.ObjectID `bson:"doctor_id" json:"doctor_id"`
	Direction        MessageDirection   `bson:"direction" json:"direction"`
	Content          string             `bson:"content" json:"content"`
	Timestamp        time.Time          `bson:"timestamp" json:"timestamp"`
	Priority         Priority           `bson:"priority,omitempty" json:"priority,omitempty"`
	Intent           string             `bson:"intent,omitempty" json:"intent,omitempty"`
	TriageCategory   TriageCategory     `bson:"triage_category,omitempty" json:"triage_category,omitempty"`
	RequiresApproval bool               `bson:"requires_approval" json:"requires_approval"`
	Approved         *bool              `bson:"approved,omitempty" json:"approved,omitempty"`
	ApprovedAt       *time.Time         `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	DraftResponse    string             `bson:"draft_response,omitempty" json:"draft_response,omitempty"`
	RejectionReason  string             `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	HasMedia         bool               `bson:"has_media,omitempty" json:"has_media,omitempty"`
}

// PendingApproval reports whether the message is awaiting a human decision.
func (m *Message) PendingApproval() bool {
	return m.RequiresApproval && m.Approved == nil
}

// Conversation groups the message history between one doctor and one
// patient on a channel. At most one exists per (doctor, patient).
type Conversation struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DoctorID      primitive.ObjectID `bson:"doctor_id" json:"doctor_id"`
	PatientID     primitive.ObjectID `bson:"patient_id" json:"patient_id"`
	Channel       MessageChannel     `bson:"channel" json:"channel"`
	LastMessageAt time.Time          `bson:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
