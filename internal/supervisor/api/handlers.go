package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/supervisor/service"
	"Minerva_2.0/pkg/logger"
)

// API provides the HTTP handlers of the supervisor.
type API struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(svc *service.ChatService, logger *logger.Logger) *API {
	return &API{service: svc, logger: logger}
}

// ChatHandler accepts one free-text message and answers with either a
// clarification payload or a final result.
func (a *API) ChatHandler(c *gin.Context) {
	var payload struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
		AgentID        string `json:"agent_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(err).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": "Invalid request payload"}})
		return
	}
	if payload.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "BAD_REQUEST", "message": "message must not be empty"}})
		return
	}

	resp, err := a.service.Chat(c.Request.Context(), payload.ConversationID, payload.Message, payload.AgentID)
	if err != nil {
		a.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AgentsHandler returns the agent catalog with live health status.
func (a *API) AgentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": a.service.Agents()})
}

// ConversationHistoryHandler returns the retained turns of a conversation,
// oldest first. An unknown id yields an empty list.
func (a *API) ConversationHistoryHandler(c *gin.Context) {
	id := c.Param("id")
	turns := a.service.History(id)
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "turns": turns, "count": len(turns)})
}

// ResetConversationHandler discards a conversation's state.
func (a *API) ResetConversationHandler(c *gin.Context) {
	id := c.Param("id")
	a.service.Reset(id)
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "reset": true})
}

// MemoryStatsHandler reports in-process memory and registry statistics.
func (a *API) MemoryStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.MemoryStats())
}

// HealthHandler is the supervisor's own liveness probe.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps structured errors to HTTP statuses. The caller never
// sees a raw internal error, only a stable code and message.
func (a *API) writeError(c *gin.Context, err error) {
	se, ok := models.AsSupervisorError(err)
	if !ok {
		a.logger.WithError(err).Error("unclassified error on request path")
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "internal error"}})
		return
	}

	status := http.StatusInternalServerError
	switch se.Code {
	case models.CodeAgentNotFound:
		status = http.StatusNotFound
	case models.CodeAgentUnavailable:
		status = http.StatusServiceUnavailable
	case models.CodeWorkerFailure:
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"error": gin.H{"code": se.Code, "message": se.Message}})
}
