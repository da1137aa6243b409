package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"clinic-triage-backend/models"
	"clinic-triage-backend/services"
)

// ApprovalController is the dashboard REST surface over the approval
// queue. NotFound and InvalidState are surfaced as non-fatal statuses so
// the dashboard can show a fallback instead of crashing the view.
type ApprovalController struct {
	approvalService *services.ApprovalService
	auditService    *services.AuditService
}

func NewApprovalController(approvalService *services.ApprovalService, auditService *services.AuditService) *ApprovalController {
	return &ApprovalController{
		approvalService: approvalService,
		auditService:    auditService,
	}
}

// GetQueue returns the pending queue, highest priority first.
func (ac *ApprovalController) GetQueue(c *gin.Context) {
	doctorID, ok := doctorIDParam(c)
	if !ok {
		return
	}

	queue, err := ac.approvalService.PendingQueue(c.Request.Context(), doctorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": queue, "count": len(queue)})
}

type approveRequest struct {
	Draft     *string `json:"draft"`
	Performer string  `json:"performer"`
}

// Approve resolves one message as approved, optionally overriding the
// draft response.
func (ac *ApprovalController) Approve(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	msg, err := ac.approvalService.Approve(c.Request.Context(), id, req.Draft, performerOrDefault(req.Performer))
	if err != nil {
		respondResolutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved", "message": msg})
}

type rejectRequest struct {
	Reason    string `json:"reason"`
	Performer string `json:"performer"`
}

// Reject resolves one message as rejected; it leaves the queue for good.
func (ac *ApprovalController) Reject(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	msg, err := ac.approvalService.Reject(c.Request.Context(), id, req.Reason, performerOrDefault(req.Performer))
	if err != nil {
		respondResolutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected", "message": msg})
}

type bulkApproveRequest struct {
	IDs       []string `json:"ids" binding:"required"`
	Performer string   `json:"performer"`
}

// BulkApprove approves a set of messages independently and reports the
// outcome per id; partial success is a normal result, not an error.
func (ac *ApprovalController) BulkApprove(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ids := make([]primitive.ObjectID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id: " + raw})
			return
		}
		ids = append(ids, id)
	}

	results := ac.approvalService.BulkApprove(c.Request.Context(), ids, performerOrDefault(req.Performer))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetHistory returns resolved messages, newest decisions first.
func (ac *ApprovalController) GetHistory(c *gin.Context) {
	doctorID, ok := doctorIDParam(c)
	if !ok {
		return
	}

	history, err := ac.approvalService.History(c.Request.Context(), doctorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// GetStats returns approval rate, latency and category counts.
func (ac *ApprovalController) GetStats(c *gin.Context) {
	doctorID, ok := doctorIDParam(c)
	if !ok {
		return
	}

	stats, err := ac.approvalService.Stats(c.Request.Context(), doctorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetAuditLog queries the audit ledger by optional time range and action.
func (ac *ApprovalController) GetAuditLog(c *gin.Context) {
	doctorID, ok := doctorIDParam(c)
	if !ok {
		return
	}

	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' timestamp"})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' timestamp"})
			return
		}
		to = parsed
	}

	entries, err := ac.auditService.Query(c.Request.Context(), doctorID, from, to, c.Query("action"), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func doctorIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	raw := c.Query("doctor_id")
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid doctor_id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func messageIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func performerOrDefault(raw string) models.Performer {
	switch models.Performer(raw) {
	case models.PerformerDoctor:
		return models.PerformerDoctor
	case models.PerformerSecretary:
		return models.PerformerSecretary
	default:
		return models.PerformerSecretary
	}
}

func respondResolutionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed", "details": err.Error()})
	}
}
