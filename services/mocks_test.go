package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
)

// In-memory fakes mirroring the Mongo repositories' contract semantics,
// including the CAS behavior of Resolve and UpdateStatus.

var (
	_ MessageRepository      = (*memMessageRepo)(nil)
	_ PatientRepository      = (*memPatientRepo)(nil)
	_ ConversationRepository = (*memConversationRepo)(nil)
	_ DoctorRepository       = (*memDoctorRepo)(nil)
	_ NotificationRepository = (*memNotificationRepo)(nil)
	_ AppointmentRepository  = (*memAppointmentRepo)(nil)
	_ AuditRepository        = (*memAuditRepo)(nil)
	_ Delivery               = (*memDelivery)(nil)
	_ QueueNotifier          = (*memNotifier)(nil)
)

type memMessageRepo struct {
	byID map[primitive.ObjectID]*models.Message

	// insertFailures makes the next N inserts fail with a transient
	// error, for exercising the intake retry path.
	insertFailures int
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{byID: make(map[primitive.ObjectID]*models.Message)}
}

func (r *memMessageRepo) Insert(_ context.Context, m *models.Message) error {
	if r.insertFailures > 0 {
		r.insertFailures--
		return errors.New("transient storage error")
	}
	for _, existing := range r.byID {
		if existing.ExternalID == m.ExternalID {
			return ErrDuplicate
		}
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	stored := *m
	r.byID[m.ID] = &stored
	return nil
}

func (r *memMessageRepo) FindByExternalID(_ context.Context, externalID string) (*models.Message, error) {
	for _, m := range r.byID {
		if m.ExternalID == externalID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memMessageRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memMessageRepo) Resolve(_ context.Context, id primitive.ObjectID, res Resolution) (bool, error) {
	m, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if m.Approved != nil {
		return false, nil
	}
	approved := res.Approved
	resolvedAt := res.ResolvedAt
	m.Approved = &approved
	m.ApprovedAt = &resolvedAt
	if res.Draft != nil {
		m.DraftResponse = *res.Draft
	}
	if !res.Approved {
		m.RequiresApproval = false
		if res.Reason != "" {
			m.RejectionReason = res.Reason
		}
	}
	return true, nil
}

func (r *memMessageRepo) ListPending(_ context.Context, doctorID primitive.ObjectID) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.byID {
		if m.DoctorID == doctorID && m.RequiresApproval && m.Approved == nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) ListResolved(_ context.Context, doctorID primitive.ObjectID) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.byID {
		if m.DoctorID == doctorID && m.Approved != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

type memPatientRepo struct {
	byID map[primitive.ObjectID]*models.Patient
}

func newMemPatientRepo() *memPatientRepo {
	return &memPatientRepo{byID: make(map[primitive.ObjectID]*models.Patient)}
}

func (r *memPatientRepo) add(p *models.Patient) *models.Patient {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	stored := *p
	r.byID[p.ID] = &stored
	return p
}

func (r *memPatientRepo) FindByWaID(_ context.Context, waID string) (*models.Patient, error) {
	if waID == "" {
		return nil, ErrNotFound
	}
	for _, p := range r.byID {
		if p.WaID == waID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memPatientRepo) FindByPhone(_ context.Context, phone string) (*models.Patient, error) {
	for _, p := range r.byID {
		if p.Phone == phone {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memPatientRepo) CreatePlaceholder(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	// Upsert on wa_id, like the unique sparse index does.
	if existing, err := r.FindByWaID(ctx, p.WaID); err == nil {
		return existing, nil
	}
	return r.add(p), nil
}

func (r *memPatientRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Patient, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

type memConversationRepo struct {
	byPair map[string]*models.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{byPair: make(map[string]*models.Conversation)}
}

func (r *memConversationRepo) FindOrCreate(_ context.Context, doctorID, patientID primitive.ObjectID, channel models.MessageChannel, at time.Time) (*models.Conversation, error) {
	key := doctorID.Hex() + "|" + patientID.Hex()
	if c, ok := r.byPair[key]; ok {
		c.LastMessageAt = at
		copied := *c
		return &copied, nil
	}
	c := &models.Conversation{
		ID:            primitive.NewObjectID(),
		DoctorID:      doctorID,
		PatientID:     patientID,
		Channel:       channel,
		LastMessageAt: at,
		CreatedAt:     at,
	}
	r.byPair[key] = c
	copied := *c
	return &copied, nil
}

type memDoctorRepo struct {
	doctors []*models.Doctor
}

func (r *memDoctorRepo) add(d *models.Doctor) *models.Doctor {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	r.doctors = append(r.doctors, d)
	return d
}

func (r *memDoctorRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Doctor, error) {
	for _, d := range r.doctors {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memDoctorRepo) FindByWaID(_ context.Context, waID string) (*models.Doctor, error) {
	for _, d := range r.doctors {
		if d.WaID == waID {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memDoctorRepo) FindByPhoneNumberID(_ context.Context, phoneNumberID string) (*models.Doctor, error) {
	for _, d := range r.doctors {
		if d.PhoneNumberID == phoneNumberID {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

type memNotificationRepo struct {
	byID map[primitive.ObjectID]*models.ApprovalNotification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{byID: make(map[primitive.ObjectID]*models.ApprovalNotification)}
}

func (r *memNotificationRepo) Create(ctx context.Context, n *models.ApprovalNotification) (*models.ApprovalNotification, bool, error) {
	if existing, err := r.FindByMessageID(ctx, n.MessageID); err == nil {
		return existing, false, nil
	}
	n.ID = primitive.NewObjectID()
	stored := *n
	r.byID[n.ID] = &stored
	copied := stored
	return &copied, true, nil
}

func (r *memNotificationRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.ApprovalNotification, error) {
	n, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (r *memNotificationRepo) FindByMessageID(_ context.Context, messageID primitive.ObjectID) (*models.ApprovalNotification, error) {
	for _, n := range r.byID {
		if n.MessageID == messageID {
			copied := *n
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memNotificationRepo) FindLatestOutstanding(_ context.Context, doctorID primitive.ObjectID) (*models.ApprovalNotification, error) {
	var outstanding []*models.ApprovalNotification
	for _, n := range r.byID {
		if n.DoctorID != doctorID {
			continue
		}
		if n.Status == models.NotificationNotified || n.Status == models.NotificationAwaitingEdit {
			outstanding = append(outstanding, n)
		}
	}
	if len(outstanding) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(outstanding, func(i, j int) bool {
		return outstanding[i].CreatedAt.After(outstanding[j].CreatedAt)
	})
	copied := *outstanding[0]
	return &copied, nil
}

func (r *memNotificationRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, from, to models.NotificationStatus, at time.Time) (bool, error) {
	n, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if n.Status != from {
		return false, nil
	}
	n.Status = to
	n.UpdatedAt = at
	return true, nil
}

func (r *memNotificationRepo) ResolveByMessageID(_ context.Context, messageID primitive.ObjectID, to models.NotificationStatus, at time.Time) (bool, error) {
	for _, n := range r.byID {
		if n.MessageID == messageID && !n.Status.Resolved() {
			n.Status = to
			n.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

type memAppointmentRepo struct {
	appointments []*models.Appointment
}

func (r *memAppointmentRepo) Insert(_ context.Context, a *models.Appointment) error {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	stored := *a
	r.appointments = append(r.appointments, &stored)
	return nil
}

func (r *memAppointmentRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	for _, a := range r.appointments {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

type memAuditRepo struct {
	entries []models.AuditEntry
}

func (r *memAuditRepo) Insert(_ context.Context, e *models.AuditEntry) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memAuditRepo) Query(_ context.Context, doctorID primitive.ObjectID, from, to time.Time, action string, limit int64) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for _, e := range r.entries {
		if e.DoctorID != doctorID {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (r *memAuditRepo) byAction(action string) []models.AuditEntry {
	var out []models.AuditEntry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type sentMessage struct {
	To   string
	Body string
}

type memDelivery struct {
	sent []sentMessage
	err  error
}

func (d *memDelivery) SendText(_ context.Context, toWaID, body string) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentMessage{To: toWaID, Body: body})
	return nil
}

type queueEvent struct {
	DoctorID primitive.ObjectID
	Message  *models.Message
}

type memNotifier struct {
	events []queueEvent
}

func (n *memNotifier) QueueChanged(doctorID primitive.ObjectID, m *models.Message) {
	n.events = append(n.events, queueEvent{DoctorID: doctorID, Message: m})
}
