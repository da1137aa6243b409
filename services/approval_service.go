package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

// BulkResult reports the outcome of one id inside a bulk approval.
type BulkResult struct {
	MessageID primitive.ObjectID `json:"message_id"`
	Approved  bool               `json:"approved"`
	Error     string             `json:"error,omitempty"`
}

// QueueStats summarizes a doctor's approval activity.
type QueueStats struct {
	Pending            int            `json:"pending"`
	Approved           int            `json:"approved"`
	Rejected           int            `json:"rejected"`
	ApprovalRate       float64        `json:"approval_rate"`
	AvgResponseSeconds float64        `json:"avg_response_seconds"`
	ByCategory         map[string]int `json:"by_category"`
}

// ApprovalService is the dashboard surface over pending messages:
// priority-ordered queue, approve/reject/bulk operations, history and
// stats. Every resolution goes through the message CAS so it can never
// race the quick-reply workflow into a double send.
type ApprovalService struct {
	messages      MessageRepository
	notifications NotificationRepository
	patients      PatientRepository
	audit         *AuditService
	delivery      Delivery
	now           func() time.Time
}

func NewApprovalService(
	messages MessageRepository,
	notifications NotificationRepository,
	patients PatientRepository,
	audit *AuditService,
	delivery Delivery,
) *ApprovalService {
	return &ApprovalService{
		messages:      messages,
		notifications: notifications,
		patients:      patients,
		audit:         audit,
		delivery:      delivery,
		now:           time.Now,
	}
}

// PendingQueue returns the doctor's unresolved messages ordered by
// priority rank (P0 first), oldest first within a rank.
func (s *ApprovalService) PendingQueue(ctx context.Context, doctorID primitive.ObjectID) ([]models.Message, error) {
	pending, err := s.messages.ListPending(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending queue: %w", err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		ri, rj := pending[i].Priority.Rank(), pending[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})
	return pending, nil
}

// Approve resolves a message as approved. A non-nil draft overrides the
// stored draft response. The approved draft is handed to the delivery
// collaborator; delivery failures are logged, not returned, since the
// approval itself is already durable.
func (s *ApprovalService) Approve(ctx context.Context, id primitive.ObjectID, draft *string, performer models.Performer) (*models.Message, error) {
	msg, err := s.resolve(ctx, id, Resolution{
		Approved:   true,
		ResolvedAt: s.now(),
		Draft:      draft,
	})
	if err != nil {
		return nil, err
	}

	details := bson.M{"message_id": msg.ID, "external_id": msg.ExternalID}
	if draft != nil {
		details["draft_overridden"] = true
	}
	if err := s.audit.Log(ctx, msg.DoctorID, models.AuditMessageApproved, details, performer); err != nil {
		log.Printf("Audit write failed: %v", err)
	}

	s.deliverDraft(ctx, msg)
	return msg, nil
}

// Reject resolves a message as rejected and removes it from the queue for
// good: requires_approval is cleared so the terminal state is visible.
func (s *ApprovalService) Reject(ctx context.Context, id primitive.ObjectID, reason string, performer models.Performer) (*models.Message, error) {
	msg, err := s.resolve(ctx, id, Resolution{
		Approved:   false,
		ResolvedAt: s.now(),
		Reason:     reason,
	})
	if err != nil {
		return nil, err
	}

	details := bson.M{"message_id": msg.ID, "external_id": msg.ExternalID}
	if reason != "" {
		details["reason"] = reason
	}
	if err := s.audit.Log(ctx, msg.DoctorID, models.AuditMessageRejected, details, performer); err != nil {
		log.Printf("Audit write failed: %v", err)
	}
	return msg, nil
}

// BulkApprove approves each id independently; one failure never blocks
// the rest. Partial success is reported per id.
func (s *ApprovalService) BulkApprove(ctx context.Context, ids []primitive.ObjectID, performer models.Performer) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		if _, err := s.Approve(ctx, id, nil, performer); err != nil {
			results = append(results, BulkResult{MessageID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{MessageID: id, Approved: true})
	}
	return results
}

// History returns resolved messages, most recently resolved first.
func (s *ApprovalService) History(ctx context.Context, doctorID primitive.ObjectID) ([]models.Message, error) {
	resolved, err := s.messages.ListResolved(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval history: %w", err)
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		ti, tj := resolved[i].ApprovedAt, resolved[j].ApprovedAt
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.After(*tj)
	})
	return resolved, nil
}

// Stats aggregates approval rate, mean decision latency and per-category
// counts. Messages without a triage category land in the admin bucket.
func (s *ApprovalService) Stats(ctx context.Context, doctorID primitive.ObjectID) (*QueueStats, error) {
	pending, err := s.messages.ListPending(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.messages.ListResolved(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		Pending:    len(pending),
		ByCategory: make(map[string]int),
	}

	var latencySum time.Duration
	var latencyCount int
	for _, m := range resolved {
		if m.Approved != nil && *m.Approved {
			stats.Approved++
		} else {
			stats.Rejected++
		}
		if m.ApprovedAt != nil {
			latencySum += m.ApprovedAt.Sub(m.Timestamp)
			latencyCount++
		}
		stats.ByCategory[categoryBucket(m.TriageCategory)]++
	}
	for _, m := range pending {
		stats.ByCategory[categoryBucket(m.TriageCategory)]++
	}

	if total := stats.Approved + stats.Rejected; total > 0 {
		stats.ApprovalRate = float64(stats.Approved) / float64(total)
	}
	if latencyCount > 0 {
		stats.AvgResponseSeconds = latencySum.Seconds() / float64(latencyCount)
	}
	return stats, nil
}

// resolve applies the CAS and keeps the quick-reply notification row (if
// any) in agreement with the message.
func (s *ApprovalService) resolve(ctx context.Context, id primitive.ObjectID, res Resolution) (*models.Message, error) {
	applied, err := s.messages.Resolve(ctx, id, res)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("message %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("message %s is already resolved: %w", id.Hex(), ErrInvalidState)
	}

	status := models.NotificationApproved
	if !res.Approved {
		status = models.NotificationRejected
	}
	if _, err := s.notifications.ResolveByMessageID(ctx, id, status, res.ResolvedAt); err != nil {
		log.Printf("Failed to sync notification for message %s: %v", id.Hex(), err)
	}

	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// deliverDraft hands the approved draft to the transport. No draft means
// nothing to send (emergencies are composed by hand elsewhere).
func (s *ApprovalService) deliverDraft(ctx context.Context, msg *models.Message) {
	if s.delivery == nil || msg.DraftResponse == "" {
		return
	}
	patient, err := s.patients.FindByID(ctx, msg.PatientID)
	if err != nil {
		log.Printf("Cannot deliver approved draft, patient lookup failed: %v", err)
		return
	}
	if patient.WaID == "" {
		return
	}
	if err := s.delivery.SendText(ctx, patient.WaID, msg.DraftResponse); err != nil {
		log.Printf("Failed to deliver approved draft for message %s: %v", msg.ExternalID, err)
	}
}

func categoryBucket(c models.TriageCategory) string {
	if c == "" {
		return string(models.TriageAdmin)
	}
	return string(c)
}
