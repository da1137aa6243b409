package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

// Sentinel errors shared by services and repositories. Controllers pick
// HTTP statuses with errors.Is.
var (
	// ErrNotFound is returned when a referenced message, notification or
	// doctor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation hits a record outside
	// the state it requires, e.g. resolving an already-resolved message.
	ErrInvalidState = errors.New("invalid state")

	// ErrDuplicate is returned by inserts that violate a uniqueness
	// constraint, e.g. a second message with the same external id.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNoDoctorRoute is returned when an inbound message cannot be
	// routed to a doctor. Ingestion requires explicit routing; there is no
	// default-doctor fallback.
	ErrNoDoctorRoute = errors.New("no routable doctor")
)

// Resolution is the terminal approval decision applied to a message.
// Draft, when non-nil, overwrites the stored draft response.
type Resolution struct {
	Approved   bool
	ResolvedAt time.Time
	Draft      *string
	Reason     string
}

// MessageRepository persists triaged messages.
//
// Resolve applies a resolution as a compare-and-set on "approved is
// unset": it reports false when the message exists but was already
// resolved, and ErrNotFound when it does not exist. This single CAS is
// what keeps the dashboard queue and the quick-reply workflow in
// agreement when both race on the same message.
type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) error
	FindByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	Resolve(ctx context.Context, id primitive.ObjectID, res Resolution) (bool, error)
	ListPending(ctx context.Context, doctorID primitive.ObjectID) ([]models.Message, error)
	ListResolved(ctx context.Context, doctorID primitive.ObjectID) ([]models.Message, error)
}

// PatientRepository resolves and creates patients. CreatePlaceholder must
// be safe under concurrent ingestion of the same new sender: the storage
// layer upserts on the channel identity so two racing calls converge on
// one record.
type PatientRepository interface {
	FindByWaID(ctx context.Context, waID string) (*models.Patient, error)
	FindByPhone(ctx context.Context, phone string) (*models.Patient, error)
	CreatePlaceholder(ctx context.Context, p *models.Patient) (*models.Patient, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Patient, error)
}

// ConversationRepository maintains the one conversation per
// (doctor, patient) pair. FindOrCreate also refreshes last_message_at.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, doctorID, patientID primitive.ObjectID, channel models.MessageChannel, at time.Time) (*models.Conversation, error)
}

// DoctorRepository looks up clinicians for routing.
type DoctorRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Doctor, error)
	FindByWaID(ctx context.Context, waID string) (*models.Doctor, error)
	FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Doctor, error)
}

// NotificationRepository persists quick-reply approval notifications.
//
// Create is idempotent on message id: re-requesting a notification for a
// message returns the existing row with created=false.
// UpdateStatus is a compare-and-set on the current status and reports
// false when the transition lost a race.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.ApprovalNotification) (*models.ApprovalNotification, bool, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ApprovalNotification, error)
	FindByMessageID(ctx context.Context, messageID primitive.ObjectID) (*models.ApprovalNotification, error)
	FindLatestOutstanding(ctx context.Context, doctorID primitive.ObjectID) (*models.ApprovalNotification, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.NotificationStatus, at time.Time) (bool, error)
	ResolveByMessageID(ctx context.Context, messageID primitive.ObjectID, to models.NotificationStatus, at time.Time) (bool, error)
}

// AppointmentRepository stores synthesized appointment requests.
type AppointmentRepository interface {
	Insert(ctx context.Context, a *models.Appointment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error)
}

// AuditRepository is append-only; there is deliberately no update or
// delete operation on the contract.
type AuditRepository interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
	Query(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time, action string, limit int64) ([]models.AuditEntry, error)
}

// Delivery hands outbound text to the messaging transport. The triage
// pipeline itself never delivers; implementations live at the edge.
type Delivery interface {
	SendText(ctx context.Context, toWaID, body string) error
}

// QueueNotifier receives queue-changed events for live dashboard feeds.
type QueueNotifier interface {
	QueueChanged(doctorID primitive.ObjectID, m *models.Message)
}
