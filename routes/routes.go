package routes

import (
	"github.com/gin-gonic/gin"

	"clinic-triage-backend/config"
	"clinic-triage-backend/controllers"
	"clinic-triage-backend/database"
	"clinic-triage-backend/middleware"
	"clinic-triage-backend/services"
)

func SetupRoutes(router *gin.Engine) {
	db := database.GetMongoDB()

	// Repositories
	messages := database.NewMessageRepository(db)
	patients := database.NewPatientRepository(db)
	conversations := database.NewConversationRepository(db)
	doctors := database.NewDoctorRepository(db)
	appointments := database.NewAppointmentRepository(db)
	notifications := database.NewNotificationRepository(db)
	auditRepo := database.NewAuditRepository(db)

	// Services
	auditService := services.NewAuditService(auditRepo)
	whatsappService := services.NewWhatsAppService(config.Get())
	intakeService := services.NewIntakeService(messages, patients, conversations, doctors, appointments, auditService)
	approvalService := services.NewApprovalService(messages, notifications, patients, auditService, whatsappService)
	quickReplyService := services.NewQuickReplyService(messages, notifications, patients, auditService, whatsappService)

	// Controllers
	webhookController := controllers.NewWebhookController(whatsappService, intakeService, quickReplyService, doctors, patients)
	approvalController := controllers.NewApprovalController(approvalService, auditService)
	wsController := controllers.NewWebSocketController()

	// Intake pushes queue changes to connected dashboards.
	intakeService.SetQueueNotifier(wsController)

	// Dashboard API
	api := router.Group("/api/v1")
	{
		api.GET("/messages/pending", approvalController.GetQueue)
		api.GET("/messages/history", approvalController.GetHistory)
		api.POST("/messages/:id/approve", approvalController.Approve)
		api.POST("/messages/:id/reject", approvalController.Reject)
		api.POST("/messages/bulk-approve", approvalController.BulkApprove)
		api.GET("/stats", approvalController.GetStats)
		api.GET("/audit", approvalController.GetAuditLog)

		// WebSocket feed for live queue updates
		api.GET("/ws", wsController.HandleWebSocket)
	}

	// WhatsApp routes
	whatsapp := router.Group("/api/whatsapp")
	{
		// Webhook endpoints (verification GET is unsigned by design)
		whatsapp.GET("/webhook", webhookController.VerifyWebhook)
		whatsapp.POST("/webhook", middleware.VerifyWhatsAppSignature(), webhookController.HandleWebhook)

		whatsapp.GET("/admin/status", webhookController.GetStatus)
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"error": "Route not found",
			"path":  c.Request.URL.Path,
		})
	})
}
