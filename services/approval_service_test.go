package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

type approvalFixture struct {
	svc           *ApprovalService
	messages      *memMessageRepo
	notifications *memNotificationRepo
	patients      *memPatientRepo
	audit         *memAuditRepo
	delivery      *memDelivery
	doctorID      primitive.ObjectID
	patient       *models.Patient
	now           time.Time
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()

	f := &approvalFixture{
		messages:      newMemMessageRepo(),
		notifications: newMemNotificationRepo(),
		patients:      newMemPatientRepo(),
		audit:         &memAuditRepo{},
		delivery:      &memDelivery{},
		doctorID:      primitive.NewObjectID(),
		now:           time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.patient = f.patients.add(&models.Patient{Name: "Asha Verma", WaID: "919833334444"})

	f.svc = NewApprovalService(f.messages, f.notifications, f.patients, NewAuditService(f.audit), f.delivery)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *approvalFixture) addPending(t *testing.T, priority models.Priority, at time.Time, draft string) *models.Message {
	t.Helper()
	m := &models.Message{
		ExternalID:       "wamid." + primitive.NewObjectID().Hex(),
		PatientID:        f.patient.ID,
		DoctorID:         f.doctorID,
		Direction:        models.DirectionInbound,
		Content:          "test message",
		Timestamp:        at,
		Priority:         priority,
		RequiresApproval: true,
		DraftResponse:    draft,
	}
	require.NoError(t, f.messages.Insert(context.Background(), m))
	return m
}

func TestPendingQueueOrdersByPriorityThenAge(t *testing.T) {
	f := newApprovalFixture(t)
	base := f.now

	f.addPending(t, models.PriorityP1, base.Add(5*time.Minute), "")
	p0 := f.addPending(t, models.PriorityP0, base.Add(10*time.Minute), "")
	oldest := f.addPending(t, models.PriorityP1, base.Add(1*time.Minute), "")
	unset := f.addPending(t, "", base, "")

	queue, err := f.svc.PendingQueue(context.Background(), f.doctorID)
	require.NoError(t, err)
	require.Len(t, queue, 4)

	assert.Equal(t, p0.ID, queue[0].ID, "P0 jumps the queue regardless of age")
	assert.Equal(t, oldest.ID, queue[1].ID)
	assert.Equal(t, models.PriorityP1, queue[2].Priority)
	assert.Equal(t, unset.ID, queue[3].ID, "unprioritized messages sort last")
}

func TestApproveSendsStoredDraft(t *testing.T) {
	f := newApprovalFixture(t)
	m := f.addPending(t, "", f.now, "We can offer you a slot tomorrow at 10 AM.")

	approved, err := f.svc.Approve(context.Background(), m.ID, nil, models.PerformerSecretary)
	require.NoError(t, err)

	require.NotNil(t, approved.Approved)
	assert.True(t, *approved.Approved)
	require.NotNil(t, approved.ApprovedAt)
	assert.False(t, approved.PendingApproval())

	require.Len(t, f.delivery.sent, 1)
	assert.Equal(t, f.patient.WaID, f.delivery.sent[0].To)
	assert.Equal(t, m.DraftResponse, f.delivery.sent[0].Body)

	audits := f.audit.byAction(models.AuditMessageApproved)
	require.Len(t, audits, 1)
	assert.Equal(t, models.PerformerSecretary, audits[0].Performer)
}

func TestApproveWithEditedDraft(t *testing.T) {
	f := newApprovalFixture(t)
	m := f.addPending(t, "", f.now, "original draft")

	edited := "Please come at 4 PM instead."
	approved, err := f.svc.Approve(context.Background(), m.ID, &edited, models.PerformerSecretary)
	require.NoError(t, err)

	assert.Equal(t, edited, approved.DraftResponse)
	require.Len(t, f.delivery.sent, 1)
	assert.Equal(t, edited, f.delivery.sent[0].Body)
}

func TestApproveWithoutDraftSendsNothing(t *testing.T) {
	f := newApprovalFixture(t)
	m := f.addPending(t, models.PriorityP0, f.now, "")

	_, err := f.svc.Approve(context.Background(), m.ID, nil, models.PerformerDoctor)
	require.NoError(t, err)
	assert.Empty(t, f.delivery.sent)
}

func TestApproveTwiceFails(t *testing.T) {
	f := newApprovalFixture(t)
	m := f.addPending(t, "", f.now, "draft")

	_, err := f.svc.Approve(context.Background(), m.ID, nil, models.PerformerSecretary)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), m.ID, nil, models.PerformerSecretary)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, f.delivery.sent, 1, "second approval must not resend")
}

func TestApproveUnknownMessage(t *testing.T) {
	f := newApprovalFixture(t)

	_, err := f.svc.Approve(context.Background(), primitive.NewObjectID(), nil, models.PerformerSecretary)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRejectClearsQueueWithoutSending(t *testing.T) {
	f := newApprovalFixture(t)
	m := f.addPending(t, "", f.now, "a draft that should never go out")

	rejected, err := f.svc.Reject(context.Background(), m.ID, "not medically relevant", models.PerformerDoctor)
	require.NoError(t, err)

	require.NotNil(t, rejected.Approved)
	assert.False(t, *rejected.Approved)
	assert.False(t, rejected.RequiresApproval)
	assert.Equal(t, "not medically relevant", rejected.RejectionReason)
	assert.Empty(t, f.delivery.sent)

	queue, err := f.svc.PendingQueue(context.Background(), f.doctorID)
	require.NoError(t, err)
	assert.Empty(t, queue)

	require.Len(t, f.audit.byAction(models.AuditMessageRejected), 1)
}

func TestBulkApprovePartialSuccess(t *testing.T) {
	f := newApprovalFixture(t)
	good := f.addPending(t, "", f.now, "draft")
	missing := primitive.NewObjectID()

	results := f.svc.BulkApprove(context.Background(), []primitive.ObjectID{good.ID, missing}, models.PerformerSecretary)
	require.Len(t, results, 2)

	assert.True(t, results[0].Approved)
	assert.Empty(t, results[0].Error)
	assert.False(t, results[1].Approved)
	assert.NotEmpty(t, results[1].Error, "one bad id must not block the rest")
}

func TestApproveSyncsQuickReplyNotification(t *testing.T) {
	f := newApprovalFixture(t)
	m := f.addPending(t, "", f.now, "draft")

	n := &models.ApprovalNotification{
		MessageID: m.ID,
		DoctorID:  f.doctorID,
		Status:    models.NotificationNotified,
		CreatedAt: f.now,
	}
	_, _, err := f.notifications.Create(context.Background(), n)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), m.ID, nil, models.PerformerSecretary)
	require.NoError(t, err)

	synced, err := f.notifications.FindByMessageID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationApproved, synced.Status)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	f := newApprovalFixture(t)
	first := f.addPending(t, "", f.now, "")
	second := f.addPending(t, "", f.now, "")

	_, err := f.svc.Approve(context.Background(), first.ID, nil, models.PerformerSecretary)
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)
	_, err = f.svc.Reject(context.Background(), second.ID, "", models.PerformerSecretary)
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), f.doctorID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestStats(t *testing.T) {
	f := newApprovalFixture(t)

	a := f.addPending(t, "", f.now.Add(-10*time.Minute), "")
	f.messages.byID[a.ID].TriageCategory = models.TriageEmergency
	b := f.addPending(t, "", f.now.Add(-20*time.Minute), "")
	c := f.addPending(t, "", f.now, "")

	_, err := f.svc.Approve(context.Background(), a.ID, nil, models.PerformerSecretary)
	require.NoError(t, err)
	_, err = f.svc.Reject(context.Background(), b.ID, "", models.PerformerSecretary)
	require.NoError(t, err)
	_ = c // stays pending

	stats, err := f.svc.Stats(context.Background(), f.doctorID)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.InDelta(t, 0.5, stats.ApprovalRate, 1e-9)
	// Latencies: 10 and 20 minutes, mean 15.
	assert.InDelta(t, (15 * time.Minute).Seconds(), stats.AvgResponseSeconds, 1e-9)
	assert.Equal(t, 1, stats.ByCategory[string(models.TriageEmergency)])
	assert.Equal(t, 2, stats.ByCategory[string(models.TriageAdmin)], "uncategorized messages land in the admin bucket")
}
