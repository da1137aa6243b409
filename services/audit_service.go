package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

// AuditService writes and queries the append-only per-doctor audit
// ledger. Entries are never updated or deleted; compliance review and the
// queue stats both read from here.
type AuditService struct {
	audit AuditRepository
	now   func() time.Time
}

func NewAuditService(audit AuditRepository) *AuditService {
	return &AuditService{
		audit: audit,
		now:   time.Now,
	}
}

// Log appends one entry.
func (s *AuditService) Log(ctx context.Context, doctorID primitive.ObjectID, action string, details bson.M, performer models.Performer) error {
	entry := &models.AuditEntry{
		DoctorID:  doctorID,
		Action:    action,
		Details:   details,
		Performer: performer,
		Timestamp: s.now(),
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry %q: %w", action, err)
	}
	return nil
}

// Query returns entries for a doctor, newest first, optionally filtered
// by time range and action tag.
func (s *AuditService) Query(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time, action string, limit int64) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.audit.Query(ctx, doctorID, from, to, action, limit)
}
