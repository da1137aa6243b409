package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// WebhookController is the transport boundary: it converts WhatsApp Cloud
// API webhook payloads into intake pipeline inputs and routes replies on
// a doctor's own line into the quick-reply workflow.
type WebhookController struct {
	whatsappService *services.WhatsAppService
	intakeService   *services.IntakeService
	quickReply      *services.QuickReplyService
	doctors         services.DoctorRepository
	patients        services.PatientRepository
}

func NewWebhookController(
	whatsappService *services.WhatsAppService,
	intakeService *services.IntakeService,
	quickReply *services.QuickReplyService,
	doctors services.DoctorRepository,
	patients services.PatientRepository,
) *WebhookController {
	return &WebhookController{
		whatsappService: whatsappService,
		intakeService:   intakeService,
		quickReply:      quickReply,
		doctors:         doctors,
		patients:        patients,
	}
}

// VerifyWebhook handles the webhook verification request from WhatsApp
func (wc *WebhookController) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == wc.whatsappService.GetVerifyToken() {
		c.String(http.StatusOK, challenge)
		return
	}

	c.JSON(http.StatusForbidden, gin.H{"error": "Verification failed"})
}

// HandleWebhook processes incoming WhatsApp events
func (wc *WebhookController) HandleWebhook(c *gin.Context) {
	var webhookData models.WhatsAppWebhookData

	if err := c.ShouldBindJSON(&webhookData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook data"})
		return
	}

	// Process asynchronously so WhatsApp gets its 200 quickly; ingestion
	// is idempotent, so redelivery after a crash is safe.
	go wc.processWebhookData(context.Background(), webhookData)

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (wc *WebhookController) processWebhookData(ctx context.Context, webhookData models.WhatsAppWebhookData) {
	for _, entry := range webhookData.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, message := range change.Value.Messages {
				wc.handleIncomingMessage(ctx, message, change.Value)
			}
			for _, status := range change.Value.Statuses {
				wc.handleStatusUpdate(status)
			}
		}
	}
}

func (wc *WebhookController) handleIncomingMessage(ctx context.Context, message models.WhatsAppMessage, value models.WhatsAppValue) {
	text := extractText(message)

	// A reply on a doctor's own line drives the quick-reply state machine
	// instead of the intake pipeline.
	if doctor, err := wc.doctors.FindByWaID(ctx, message.From); err == nil {
		wc.handleDoctorReply(ctx, doctor, text)
		return
	} else if !errors.Is(err, services.ErrNotFound) {
		log.Printf("Doctor lookup failed for %s: %v", message.From, err)
		return
	}

	in := services.InboundMessage{
		ExternalID:          message.ID,
		FromWaID:            message.From,
		SenderName:          senderName(value.Contacts, message.From),
		Phone:               message.From,
		Content:             text,
		TimestampMs:         timestampMs(message.Timestamp),
		HasMedia:            message.HasMedia(),
		DoctorPhoneNumberID: value.Metadata.PhoneNumberID,
	}

	result, err := wc.intakeService.ProcessInbound(ctx, in)
	if err != nil {
		log.Printf("Intake failed for message %s: %v", message.ID, err)
		return
	}
	if result.IsNew && result.IsEmergency {
		wc.notifyDoctorOfEmergency(ctx, result, text)
	}
}

func (wc *WebhookController) handleDoctorReply(ctx context.Context, doctor *models.Doctor, text string) {
	reply, err := wc.quickReply.ProcessDoctorReply(ctx, doctor.ID, text)
	if err != nil {
		log.Printf("Quick-reply processing failed for doctor %s: %v", doctor.ID.Hex(), err)
		// Degrade to static help text rather than silence.
		reply = "Something went wrong handling that reply. Please use the dashboard for this message."
	}
	if err := wc.whatsappService.SendText(ctx, doctor.WaID, reply); err != nil {
		log.Printf("Failed to reply to doctor %s: %v", doctor.ID.Hex(), err)
	}
}

// notifyDoctorOfEmergency pushes an approval prompt to the doctor's line
// and advances the notification to "notified" once the send went out.
func (wc *WebhookController) notifyDoctorOfEmergency(ctx context.Context, result *services.IntakeResult, content string) {
	notification, err := wc.quickReply.CreateApprovalNotification(ctx, result.MessageID)
	if err != nil {
		log.Printf("Failed to create approval notification: %v", err)
		return
	}
	if notification.Status != models.NotificationPending {
		return
	}

	patientName := ""
	if patient, err := wc.patients.FindByID(ctx, result.PatientID); err == nil {
		patientName = patient.Name
	}

	doctor, err := wc.doctors.FindByID(ctx, result.DoctorID)
	if err != nil {
		log.Printf("Doctor lookup failed for notification %s: %v", notification.ID.Hex(), err)
		return
	}

	prompt := services.FormatApprovalRequest(patientName, content, result.DraftResponse, result.Priority, result.TriageCategory)
	if err := wc.whatsappService.SendText(ctx, doctor.WaID, prompt); err != nil {
		log.Printf("Failed to notify doctor %s: %v", doctor.ID.Hex(), err)
		return
	}
	if err := wc.quickReply.MarkNotificationSent(ctx, notification.ID); err != nil {
		log.Printf("Failed to mark notification sent: %v", err)
	}
}

// GetStatus reports delivery transport health for the dashboard.
func (wc *WebhookController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, wc.whatsappService.GetStatus())
}

// handleStatusUpdate processes message status updates
func (wc *WebhookController) handleStatusUpdate(status models.WhatsAppStatus) {
	log.Printf("Message %s to %s: %s", status.ID, status.RecipientID, status.Status)
	for _, e := range status.Errors {
		log.Printf("WhatsApp error %d - %s: %s", e.Code, e.Title, e.Message)
	}
}

func extractText(message models.WhatsAppMessage) string {
	if message.Text != nil {
		return message.Text.Body
	}
	if message.Image != nil {
		return message.Image.Caption
	}
	if message.Document != nil {
		return message.Document.Caption
	}
	return ""
}

func senderName(contacts []models.WhatsAppContact, waID string) string {
	for _, contact := range contacts {
		if contact.WaID == waID {
			return contact.Profile.Name
		}
	}
	return ""
}

// timestampMs converts the webhook's epoch-seconds string to epoch ms.
func timestampMs(ts string) int64 {
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0
	}
	return seconds * 1000
}
