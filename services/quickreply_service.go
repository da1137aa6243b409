package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

const (
	// Character limits for the bounded notification text.
	notifyContentLimit = 200
	notifyDraftLimit   = 300

	quickReplyLegend = "Reply 1 to approve the draft, 2 to write your own reply, or \"skip\" to reject."

	noPendingText = "No pending approvals right now."

	helpText = "Sorry, I didn't understand that.\n" + quickReplyLegend
)

// QuickReplyService is the doctor-side approval surface: a small state
// machine (pending -> notified -> awaiting_edit -> approved/rejected)
// driven by short replies on the doctor's own WhatsApp line.
//
// Every transition that resolves a notification also resolves the
// underlying message through the same compare-and-set the dashboard uses,
// so the two surfaces cannot disagree.
type QuickReplyService struct {
	messages      MessageRepository
	notifications NotificationRepository
	patients      PatientRepository
	audit         *AuditService
	delivery      Delivery
	now           func() time.Time
}

func NewQuickReplyService(
	messages MessageRepository,
	notifications NotificationRepository,
	patients PatientRepository,
	audit *AuditService,
	delivery Delivery,
) *QuickReplyService {
	return &QuickReplyService{
		messages:      messages,
		notifications: notifications,
		patients:      patients,
		audit:         audit,
		delivery:      delivery,
		now:           time.Now,
	}
}

// CreateApprovalNotification registers a message for quick-reply
// approval. Idempotent: a second request for the same message returns the
// existing notification unchanged.
func (s *QuickReplyService) CreateApprovalNotification(ctx context.Context, messageID primitive.ObjectID) (*models.ApprovalNotification, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("message %s: %w", messageID.Hex(), ErrNotFound)
		}
		return nil, err
	}

	n := &models.ApprovalNotification{
		MessageID: msg.ID,
		DoctorID:  msg.DoctorID,
		Status:    models.NotificationPending,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	stored, _, err := s.notifications.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval notification: %w", err)
	}
	return stored, nil
}

// MarkNotificationSent advances pending -> notified once the prompt has
// actually been handed to the transport.
func (s *QuickReplyService) MarkNotificationSent(ctx context.Context, id primitive.ObjectID) error {
	applied, err := s.notifications.UpdateStatus(ctx, id, models.NotificationPending, models.NotificationNotified, s.now())
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("notification %s is not pending: %w", id.Hex(), ErrInvalidState)
	}
	return nil
}

// ProcessDoctorReply interprets one reply on the doctor's line against the
// most recently created outstanding notification. The returned string is
// what to send back to the doctor; it is never empty.
func (s *QuickReplyService) ProcessDoctorReply(ctx context.Context, doctorID primitive.ObjectID, text string) (string, error) {
	n, err := s.notifications.FindLatestOutstanding(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return noPendingText, nil
		}
		return "", err
	}

	msg, err := s.messages.FindByID(ctx, n.MessageID)
	if err != nil {
		return "", fmt.Errorf("notification %s references missing message: %w", n.ID.Hex(), err)
	}

	reply := strings.TrimSpace(text)

	if n.Status == models.NotificationAwaitingEdit {
		return s.approveWithCustom(ctx, n, msg, reply)
	}

	switch strings.ToLower(reply) {
	case "1":
		return s.approveWithDraft(ctx, n, msg)
	case "2":
		applied, err := s.notifications.UpdateStatus(ctx, n.ID, models.NotificationNotified, models.NotificationAwaitingEdit, s.now())
		if err != nil {
			return "", err
		}
		if !applied {
			return s.staleNotificationReply(ctx, n, msg)
		}
		return "Please type the reply you want to send.", nil
	case "skip", "reject":
		return s.reject(ctx, n, msg)
	default:
		return helpText, nil
	}
}

func (s *QuickReplyService) approveWithDraft(ctx context.Context, n *models.ApprovalNotification, msg *models.Message) (string, error) {
	applied, err := s.messages.Resolve(ctx, msg.ID, Resolution{Approved: true, ResolvedAt: s.now()})
	if err != nil {
		return "", err
	}
	if !applied {
		return s.staleNotificationReply(ctx, n, msg)
	}
	s.finishNotification(ctx, n, models.NotificationApproved)
	s.logQuickReply(ctx, msg, models.AuditWhatsAppApprovalQuick, bson.M{"message_id": msg.ID})
	s.deliver(ctx, msg, msg.DraftResponse)
	return "Approved. The draft reply has been sent to the patient.", nil
}

func (s *QuickReplyService) approveWithCustom(ctx context.Context, n *models.ApprovalNotification, msg *models.Message, custom string) (string, error) {
	if custom == "" {
		return "The reply cannot be empty. Please type the message to send.", nil
	}
	applied, err := s.messages.Resolve(ctx, msg.ID, Resolution{Approved: true, ResolvedAt: s.now(), Draft: &custom})
	if err != nil {
		return "", err
	}
	if !applied {
		return s.staleNotificationReply(ctx, n, msg)
	}
	s.finishNotification(ctx, n, models.NotificationApproved)
	s.logQuickReply(ctx, msg, models.AuditWhatsAppApprovalCustom, bson.M{"message_id": msg.ID, "custom": true})
	s.deliver(ctx, msg, custom)
	return "Your reply has been sent to the patient.", nil
}

func (s *QuickReplyService) reject(ctx context.Context, n *models.ApprovalNotification, msg *models.Message) (string, error) {
	applied, err := s.messages.Resolve(ctx, msg.ID, Resolution{Approved: false, ResolvedAt: s.now(), Reason: "rejected via quick reply"})
	if err != nil {
		return "", err
	}
	if !applied {
		return s.staleNotificationReply(ctx, n, msg)
	}
	s.finishNotification(ctx, n, models.NotificationRejected)
	s.logQuickReply(ctx, msg, models.AuditWhatsAppApprovalRejected, bson.M{"message_id": msg.ID})
	return "Skipped. No reply was sent to the patient.", nil
}

// staleNotificationReply handles a lost race: the message was resolved
// elsewhere (usually the dashboard). The notification is closed to match
// the message and nothing is sent a second time.
func (s *QuickReplyService) staleNotificationReply(ctx context.Context, n *models.ApprovalNotification, msg *models.Message) (string, error) {
	current, err := s.messages.FindByID(ctx, msg.ID)
	if err != nil {
		return "", err
	}
	status := models.NotificationRejected
	if current.Approved != nil && *current.Approved {
		status = models.NotificationApproved
	}
	s.finishNotification(ctx, n, status)
	return "This message was already handled from the dashboard.", nil
}

func (s *QuickReplyService) finishNotification(ctx context.Context, n *models.ApprovalNotification, to models.NotificationStatus) {
	if _, err := s.notifications.UpdateStatus(ctx, n.ID, n.Status, to, s.now()); err != nil {
		log.Printf("Failed to update notification %s: %v", n.ID.Hex(), err)
	}
}

func (s *QuickReplyService) logQuickReply(ctx context.Context, msg *models.Message, action string, details bson.M) {
	if err := s.audit.Log(ctx, msg.DoctorID, action, details, models.PerformerDoctor); err != nil {
		log.Printf("Audit write failed: %v", err)
	}
}

func (s *QuickReplyService) deliver(ctx context.Context, msg *models.Message, body string) {
	if s.delivery == nil || body == "" {
		return
	}
	patient, err := s.patients.FindByID(ctx, msg.PatientID)
	if err != nil {
		log.Printf("Cannot deliver reply for message %s: %v", msg.ExternalID, err)
		return
	}
	if patient.WaID == "" {
		return
	}
	if err := s.delivery.SendText(ctx, patient.WaID, body); err != nil {
		log.Printf("Failed to deliver reply for message %s: %v", msg.ExternalID, err)
	}
}

// FormatApprovalRequest renders the bounded prompt sent to the doctor.
// Pure function; content and draft are truncated to fixed limits.
func FormatApprovalRequest(patientName, content, draft string, priority models.Priority, category models.TriageCategory) string {
	var b strings.Builder

	header := "New message"
	if category == models.TriageEmergency {
		header = "EMERGENCY"
	}
	if priority != "" {
		header = fmt.Sprintf("%s [%s]", header, priority)
	}
	b.WriteString(header)
	b.WriteString(" from ")
	if patientName == "" {
		patientName = "unknown patient"
	}
	b.WriteString(patientName)
	b.WriteString(":\n")
	b.WriteString(Truncate(content, notifyContentLimit))
	if draft != "" {
		b.WriteString("\n\nDraft reply:\n")
		b.WriteString(Truncate(draft, notifyDraftLimit))
	}
	b.WriteString("\n\n")
	b.WriteString(quickReplyLegend)
	return b.String()
}

// Truncate cuts s to at most limit runes, appending an ellipsis when it
// had to cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
