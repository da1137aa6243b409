package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
	"clinic-triage-backend/utils"
)

// InboundMessage is the transport-independent ingestion input. ExternalID
// is the idempotency key; either DoctorID or DoctorPhoneNumberID must
// route the message to a clinician.
type InboundMessage struct {
	ExternalID          string
	FromWaID            string
	SenderName          string
	Phone               string
	Content             string
	TimestampMs         int64
	HasMedia            bool
	DoctorID            primitive.ObjectID
	DoctorPhoneNumberID string
}

// IntakeResult summarizes what ingestion did with one inbound message.
type IntakeResult struct {
	MessageID      primitive.ObjectID    `json:"message_id"`
	PatientID      primitive.ObjectID    `json:"patient_id"`
	ConversationID primitive.ObjectID    `json:"conversation_id"`
	DoctorID       primitive.ObjectID    `json:"doctor_id"`
	IsNew          bool                  `json:"is_new"`
	IsNewPatient   bool                  `json:"is_new_patient"`
	IsEmergency    bool                  `json:"is_emergency"`
	Priority       models.Priority       `json:"priority,omitempty"`
	TriageCategory models.TriageCategory `json:"triage_category,omitempty"`
	Intent         string                `json:"intent,omitempty"`
	DraftResponse  string                `json:"draft_response,omitempty"`
	AppointmentID  *primitive.ObjectID   `json:"appointment_id,omitempty"`
}

// Appointment synthesis table: fixed day offsets and hours per extracted
// preference, default 10:00.
var (
	dayOffsets = map[utils.DayPreference]int{
		utils.DayToday:         0,
		utils.DayTomorrow:      1,
		utils.DayAfterTomorrow: 2,
	}
	preferredHours = map[utils.TimeOfDay]int{
		utils.TimeMorning:   10,
		utils.TimeAfternoon: 14,
		utils.TimeEvening:   18,
	}
)

const defaultAppointmentHour = 10

// IntakeService is the message triage pipeline: dedup, patient and
// conversation resolution, classification, persistence, appointment
// synthesis and audit logging — one logical unit per inbound message.
type IntakeService struct {
	messages      MessageRepository
	patients      PatientRepository
	conversations ConversationRepository
	doctors       DoctorRepository
	appointments  AppointmentRepository
	audit         *AuditService

	emergency   *utils.EmergencyClassifier
	appointment *utils.AppointmentClassifier

	notifier QueueNotifier
	now      func() time.Time

	maxRetries uint64
}

func NewIntakeService(
	messages MessageRepository,
	patients PatientRepository,
	conversations ConversationRepository,
	doctors DoctorRepository,
	appointments AppointmentRepository,
	audit *AuditService,
) *IntakeService {
	return &IntakeService{
		messages:      messages,
		patients:      patients,
		conversations: conversations,
		doctors:       doctors,
		appointments:  appointments,
		audit:         audit,
		emergency:     utils.NewEmergencyClassifier(),
		appointment:   utils.NewAppointmentClassifier(),
		now:           time.Now,
		maxRetries:    2,
	}
}

// SetQueueNotifier attaches a live dashboard feed. Optional.
func (s *IntakeService) SetQueueNotifier(n QueueNotifier) {
	s.notifier = n
}

// ProcessInbound runs the full intake pipeline for one message.
// Re-ingesting a known external id returns the stored result with
// IsNew=false and no side effects. Transient storage failures are retried
// a bounded number of times; the dedup check runs inside the retried unit
// so a retry after a partial failure cannot double-insert.
func (s *IntakeService) ProcessInbound(ctx context.Context, in InboundMessage) (*IntakeResult, error) {
	if strings.TrimSpace(in.ExternalID) == "" {
		return nil, fmt.Errorf("inbound message is missing an external id")
	}

	doctor, err := s.routeDoctor(ctx, in)
	if err != nil {
		return nil, err
	}

	var result *IntakeResult
	operation := func() error {
		var ingestErr error
		result, ingestErr = s.ingestOnce(ctx, in, doctor)
		if ingestErr != nil && (errors.Is(ingestErr, ErrNoDoctorRoute) || errors.Is(ingestErr, context.Canceled)) {
			return backoff.Permanent(ingestErr)
		}
		return ingestErr
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("intake failed for message %s: %w", in.ExternalID, err)
	}
	return result, nil
}

// routeDoctor resolves explicit routing. There is deliberately no
// fallback to a default doctor: an unroutable message is a hard error.
func (s *IntakeService) routeDoctor(ctx context.Context, in InboundMessage) (*models.Doctor, error) {
	if !in.DoctorID.IsZero() {
		doctor, err := s.doctors.FindByID(ctx, in.DoctorID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: doctor %s", ErrNoDoctorRoute, in.DoctorID.Hex())
			}
			return nil, err
		}
		return doctor, nil
	}
	if in.DoctorPhoneNumberID != "" {
		doctor, err := s.doctors.FindByPhoneNumberID(ctx, in.DoctorPhoneNumberID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: phone number id %s", ErrNoDoctorRoute, in.DoctorPhoneNumberID)
			}
			return nil, err
		}
		return doctor, nil
	}
	return nil, ErrNoDoctorRoute
}

func (s *IntakeService) ingestOnce(ctx context.Context, in InboundMessage, doctor *models.Doctor) (*IntakeResult, error) {
	// Idempotency: a known external id short-circuits the pipeline.
	if existing, err := s.messages.FindByExternalID(ctx, in.ExternalID); err == nil {
		return resultFromMessage(existing, false, false), nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	patient, isNewPatient, err := s.resolvePatient(ctx, in)
	if err != nil {
		return nil, err
	}

	arrival := time.UnixMilli(in.TimestampMs)
	if in.TimestampMs == 0 {
		arrival = s.now()
	}

	conversation, err := s.conversations.FindOrCreate(ctx, doctor.ID, patient.ID, models.ChannelWhatsApp, arrival)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	msg := &models.Message{
		ExternalID:       in.ExternalID,
		ConversationID:   conversation.ID,
		PatientID:        patient.ID,
		DoctorID:         doctor.ID,
		Direction:        models.DirectionInbound,
		Content:          in.Content,
		Timestamp:        arrival,
		RequiresApproval: true,
		HasMedia:         in.HasMedia,
	}

	emergency := s.emergency.Classify(in.Content)
	if emergency.IsEmergency {
		msg.TriageCategory = models.TriageEmergency
		msg.Priority = emergency.Priority
		msg.Intent = "emergency:" + strings.Join(emergency.Categories, ",")
		// Emergency replies must be human-composed; no auto-draft.
	} else {
		appt := s.appointment.Classify(in.Content)
		if appt.IsAppointmentRelated {
			msg.TriageCategory = models.TriageAdmin
			msg.Intent = "appointment:" + string(appt.Intent)
			prefs := utils.ExtractTimePreference(in.Content)
			msg.DraftResponse = utils.GenerateDraft(appt.Intent, patient.Name, prefs, patientLanguage(patient, in.Content))
		}
		// Otherwise the triage category stays unset for a future
		// clinical/admin classifier.
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost an ingestion race on the unique external_id index; the
			// winner's record is the answer.
			existing, findErr := s.messages.FindByExternalID(ctx, in.ExternalID)
			if findErr != nil {
				return nil, findErr
			}
			return resultFromMessage(existing, false, false), nil
		}
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	s.writeIntakeAudits(ctx, msg, emergency)

	result := resultFromMessage(msg, true, isNewPatient)

	if msg.Intent == "appointment:"+string(utils.IntentBook) {
		if apptID, err := s.synthesizeAppointment(ctx, msg, in.Content); err != nil {
			log.Printf("Failed to synthesize appointment for message %s: %v", msg.ExternalID, err)
		} else {
			result.AppointmentID = &apptID
		}
	}

	if s.notifier != nil {
		s.notifier.QueueChanged(doctor.ID, msg)
	}

	return result, nil
}

// resolvePatient matches the sender by channel identity, then phone, and
// otherwise creates a placeholder record.
func (s *IntakeService) resolvePatient(ctx context.Context, in InboundMessage) (*models.Patient, bool, error) {
	if patient, err := s.patients.FindByWaID(ctx, in.FromWaID); err == nil {
		return patient, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if in.Phone != "" {
		if patient, err := s.patients.FindByPhone(ctx, in.Phone); err == nil {
			return patient, false, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	name := strings.TrimSpace(in.SenderName)
	if name == "" {
		name = "Patient " + uuid.NewString()[:8]
	}
	placeholder := &models.Patient{
		Name:          name,
		Phone:         in.Phone,
		WaID:          in.FromWaID,
		Language:      utils.DetectLanguage(in.Content),
		IsPlaceholder: true,
		CreatedAt:     s.now(),
	}
	patient, err := s.patients.CreatePlaceholder(ctx, placeholder)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create placeholder patient: %w", err)
	}
	return patient, true, nil
}

func (s *IntakeService) writeIntakeAudits(ctx context.Context, msg *models.Message, emergency utils.EmergencyResult) {
	details := bson.M{
		"message_id":  msg.ID,
		"external_id": msg.ExternalID,
		"patient_id":  msg.PatientID,
		"intent":      msg.Intent,
		"priority":    msg.Priority,
		"category":    msg.TriageCategory,
	}
	if err := s.audit.Log(ctx, msg.DoctorID, models.AuditMessageReceived, details, models.PerformerSystem); err != nil {
		log.Printf("Audit write failed: %v", err)
	}

	if emergency.IsEmergency {
		// Separate entry so emergencies stay queryable on their own.
		emergencyDetails := bson.M{
			"message_id": msg.ID,
			"categories": emergency.Categories,
			"keywords":   emergency.MatchedKeywords,
			"confidence": emergency.Confidence,
			"priority":   msg.Priority,
			"lexicon":    utils.LexiconVersion,
		}
		if err := s.audit.Log(ctx, msg.DoctorID, models.AuditEmergencyDetected, emergencyDetails, models.PerformerSystem); err != nil {
			log.Printf("Audit write failed: %v", err)
		}
	}
}

// synthesizeAppointment creates a "requested" appointment from the
// extracted time preference at the fixed slot hours.
func (s *IntakeService) synthesizeAppointment(ctx context.Context, msg *models.Message, content string) (primitive.ObjectID, error) {
	prefs := utils.ExtractTimePreference(content)

	hour := defaultAppointmentHour
	if h, ok := preferredHours[prefs.PreferredTime]; ok {
		hour = h
	}
	base := msg.Timestamp.AddDate(0, 0, dayOffsets[prefs.PreferredDay])
	scheduledAt := time.Date(base.Year(), base.Month(), base.Day(), hour, 0, 0, 0, base.Location())

	appt := &models.Appointment{
		PatientID:      msg.PatientID,
		DoctorID:       msg.DoctorID,
		ConversationID: msg.ConversationID,
		ScheduledAt:    scheduledAt,
		Status:         models.AppointmentRequested,
		Source:         string(models.ChannelWhatsApp),
		CreatedAt:      s.now(),
	}
	if err := s.appointments.Insert(ctx, appt); err != nil {
		return primitive.NilObjectID, err
	}

	details := bson.M{
		"appointment_id": appt.ID,
		"message_id":     msg.ID,
		"patient_id":     msg.PatientID,
		"scheduled_at":   scheduledAt,
		"preferred_day":  prefs.PreferredDay,
		"preferred_time": prefs.PreferredTime,
	}
	if err := s.audit.Log(ctx, msg.DoctorID, models.AuditAppointmentRequestCreated, details, models.PerformerSystem); err != nil {
		log.Printf("Audit write failed: %v", err)
	}
	return appt.ID, nil
}

func resultFromMessage(msg *models.Message, isNew, isNewPatient bool) *IntakeResult {
	return &IntakeResult{
		MessageID:      msg.ID,
		PatientID:      msg.PatientID,
		ConversationID: msg.ConversationID,
		DoctorID:       msg.DoctorID,
		IsNew:          isNew,
		IsNewPatient:   isNewPatient,
		IsEmergency:    msg.TriageCategory == models.TriageEmergency,
		Priority:       msg.Priority,
		TriageCategory: msg.TriageCategory,
		Intent:         msg.Intent,
		DraftResponse:  msg.DraftResponse,
	}
}

func patientLanguage(p *models.Patient, content string) string {
	if p.Language != "" {
		return p.Language
	}
	return utils.DetectLanguage(content)
}
