package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

type quickReplyFixture struct {
	svc           *QuickReplyService
	messages      *memMessageRepo
	notifications *memNotificationRepo
	patients      *memPatientRepo
	audit         *memAuditRepo
	delivery      *memDelivery
	doctorID      primitive.ObjectID
	patient       *models.Patient
	now           time.Time
}

func newQuickReplyFixture(t *testing.T) *quickReplyFixture {
	t.Helper()

	f := &quickReplyFixture{
		messages:      newMemMessageRepo(),
		notifications: newMemNotificationRepo(),
		patients:      newMemPatientRepo(),
		audit:         &memAuditRepo{},
		delivery:      &memDelivery{},
		doctorID:      primitive.NewObjectID(),
		now:           time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	f.patient = f.patients.add(&models.Patient{Name: "Asha Verma", WaID: "919833334444"})

	f.svc = NewQuickReplyService(f.messages, f.notifications, f.patients, NewAuditService(f.audit), f.delivery)
	f.svc.now = func() time.Time { return f.now }
	return f
}

// notified seeds one pending message with a notification already in the
// "notified" state, i.e. the doctor has received the prompt.
func (f *quickReplyFixture) notified(t *testing.T, draft string) *models.Message {
	t.Helper()
	m := &models.Message{
		ExternalID:       "wamid." + primitive.NewObjectID().Hex(),
		PatientID:        f.patient.ID,
		DoctorID:         f.doctorID,
		Content:          "I want to book an appointment",
		Timestamp:        f.now,
		RequiresApproval: true,
		DraftResponse:    draft,
	}
	require.NoError(t, f.messages.Insert(context.Background(), m))

	n, err := f.svc.CreateApprovalNotification(context.Background(), m.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkNotificationSent(context.Background(), n.ID))
	return m
}

func TestCreateApprovalNotificationIsIdempotent(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := &models.Message{
		ExternalID:       "wamid.x",
		PatientID:        f.patient.ID,
		DoctorID:         f.doctorID,
		RequiresApproval: true,
	}
	require.NoError(t, f.messages.Insert(context.Background(), m))

	first, err := f.svc.CreateApprovalNotification(context.Background(), m.ID)
	require.NoError(t, err)
	second, err := f.svc.CreateApprovalNotification(context.Background(), m.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.notifications.byID, 1)
}

func TestCreateApprovalNotificationUnknownMessage(t *testing.T) {
	f := newQuickReplyFixture(t)

	_, err := f.svc.CreateApprovalNotification(context.Background(), primitive.NewObjectID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkNotificationSentOnlyOnce(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := f.notified(t, "draft")

	n, err := f.notifications.FindByMessageID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationNotified, n.Status)

	err = f.svc.MarkNotificationSent(context.Background(), n.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReplyOneApprovesAndSendsDraft(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := f.notified(t, "We can offer you a slot tomorrow at 10 AM.")

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "1")
	require.NoError(t, err)
	assert.Contains(t, reply, "Approved")

	stored, err := f.messages.FindByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Approved)
	assert.True(t, *stored.Approved)

	require.Len(t, f.delivery.sent, 1)
	assert.Equal(t, f.patient.WaID, f.delivery.sent[0].To)
	assert.Equal(t, m.DraftResponse, f.delivery.sent[0].Body)

	n, err := f.notifications.FindByMessageID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationApproved, n.Status)

	require.Len(t, f.audit.byAction(models.AuditWhatsAppApprovalQuick), 1)
}

func TestReplyTwoThenCustomText(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := f.notified(t, "original draft")

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "2")
	require.NoError(t, err)
	assert.Contains(t, reply, "type the reply")

	n, err := f.notifications.FindByMessageID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationAwaitingEdit, n.Status)

	reply, err = f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "Please come at 4 PM.")
	require.NoError(t, err)
	assert.Contains(t, reply, "sent to the patient")

	stored, err := f.messages.FindByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Approved)
	assert.True(t, *stored.Approved)
	assert.Equal(t, "Please come at 4 PM.", stored.DraftResponse)

	require.Len(t, f.delivery.sent, 1)
	assert.Equal(t, "Please come at 4 PM.", f.delivery.sent[0].Body)

	require.Len(t, f.audit.byAction(models.AuditWhatsAppApprovalCustom), 1)
}

func TestAwaitingEditRejectsEmptyText(t *testing.T) {
	f := newQuickReplyFixture(t)
	f.notified(t, "draft")

	_, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "2")
	require.NoError(t, err)

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "   ")
	require.NoError(t, err)
	assert.Contains(t, reply, "cannot be empty")
	assert.Empty(t, f.delivery.sent)
}

func TestReplySkipRejects(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := f.notified(t, "draft that must not go out")

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "skip")
	require.NoError(t, err)
	assert.Contains(t, reply, "Skipped")

	stored, err := f.messages.FindByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Approved)
	assert.False(t, *stored.Approved)
	assert.False(t, stored.RequiresApproval)
	assert.Empty(t, f.delivery.sent)

	require.Len(t, f.audit.byAction(models.AuditWhatsAppApprovalRejected), 1)
}

func TestReplyWithNothingOutstanding(t *testing.T) {
	f := newQuickReplyFixture(t)

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "1")
	require.NoError(t, err)
	assert.Equal(t, noPendingText, reply)
}

func TestUnrecognizedReplyGetsHelp(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := f.notified(t, "draft")

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "maybe later")
	require.NoError(t, err)
	assert.Equal(t, helpText, reply)

	// Nothing moved.
	stored, err := f.messages.FindByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, stored.PendingApproval())
}

func TestQuickReplyLosesRaceToDashboard(t *testing.T) {
	f := newQuickReplyFixture(t)
	m := f.notified(t, "draft")

	// The dashboard resolves the message first.
	applied, err := f.messages.Resolve(context.Background(), m.ID, Resolution{Approved: true, ResolvedAt: f.now})
	require.NoError(t, err)
	require.True(t, applied)

	reply, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "1")
	require.NoError(t, err)
	assert.Contains(t, reply, "already handled")
	assert.Empty(t, f.delivery.sent, "a lost race must not send a second reply")

	n, err := f.notifications.FindByMessageID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationApproved, n.Status, "notification is synced to the message outcome")
}

func TestLatestOutstandingWins(t *testing.T) {
	f := newQuickReplyFixture(t)
	f.notified(t, "old draft")
	f.now = f.now.Add(5 * time.Minute)
	newer := f.notified(t, "new draft")

	_, err := f.svc.ProcessDoctorReply(context.Background(), f.doctorID, "1")
	require.NoError(t, err)

	stored, err := f.messages.FindByID(context.Background(), newer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Approved, "the most recently created notification is acted on")
}

func TestFormatApprovalRequestBounded(t *testing.T) {
	longContent := strings.Repeat("a", 500)
	longDraft := strings.Repeat("b", 500)

	text := FormatApprovalRequest("Asha Verma", longContent, longDraft, models.PriorityP1, models.TriageEmergency)

	assert.Contains(t, text, "EMERGENCY")
	assert.Contains(t, text, "[P1]")
	assert.Contains(t, text, "Asha Verma")
	assert.Contains(t, text, quickReplyLegend)
	assert.NotContains(t, text, strings.Repeat("a", notifyContentLimit+1))
	assert.NotContains(t, text, strings.Repeat("b", notifyDraftLimit+1))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc…", Truncate("abcdef", 3))
	// Rune-aware: no broken multibyte sequences.
	assert.Equal(t, "सीने…", Truncate("सीने में दर्द", 4))
}
