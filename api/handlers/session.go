// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clevio/dashboard/internal/broadcast"
	"github.com/clevio/dashboard/internal/model"
	"github.com/clevio/dashboard/internal/registry"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(reg *registry.Registry, b *broadcast.Broadcaster) *SessionHandler {
	return &SessionHandler{
		registry:    reg,
		broadcaster: b,
	}
}

// UpdateWebhookRequest is the body of PUT /api/sessions/:name/webhook.
type UpdateWebhookRequest struct {
	Webhook string `json:"webhook"`
}

// SendMessageRequest is the body of POST /api/sessions/:name/send.
type SendMessageRequest struct {
	Target  string `json:"target"`
	Content string `json:"content"`
}

// sendError sends a flat {error} response, the shape the dashboard UI reads.
func sendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Snapshot())
}

// Create handles POST /api/sessions. Pairing happens asynchronously; the
// response reflects the session immediately after creation.
func (h *SessionHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.registry.Create(c.Request.Context(), req.Name, req.Webhook)
	if err != nil {
		log.Printf("handlers: error creating session %s: %v", req.Name, err)
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, summary)
}

// UpdateWebhook handles PUT /api/sessions/:name/webhook.
func (h *SessionHandler) UpdateWebhook(c *gin.Context) {
	name := c.Param("name")

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Webhook == "" {
		sendError(c, http.StatusBadRequest, model.ErrWebhookRequired.Error())
		return
	}

	if err := h.registry.UpdateWebhook(c.Request.Context(), name, req.Webhook); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Rescan handles POST /api/sessions/:name/rescan.
func (h *SessionHandler) Rescan(c *gin.Context) {
	name := c.Param("name")

	if err := h.registry.Rescan(c.Request.Context(), name); err != nil {
		log.Printf("handlers: error rescanning session %s: %v", name, err)
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete handles DELETE /api/sessions/:name.
func (h *SessionHandler) Delete(c *gin.Context) {
	name := c.Param("name")

	if err := h.registry.Delete(c.Request.Context(), name); err != nil {
		log.Printf("handlers: error deleting session %s: %v", name, err)
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Send handles POST /api/sessions/:name/send - outbound message pass-through.
func (h *SessionHandler) Send(c *gin.Context) {
	name := c.Param("name")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Target == "" || req.Content == "" {
		sendError(c, http.StatusBadRequest, "target and content are required")
		return
	}

	messageID, err := h.registry.SendMessage(c.Request.Context(), name, req.Target, req.Content)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("handlers: error sending message via session %s: %v", name, err)
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"messageId": messageID})
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.POST("", h.Create)
		sessions.PUT("/:name/webhook", h.UpdateWebhook)
		sessions.POST("/:name/rescan", h.Rescan)
		sessions.POST("/:name/send", h.Send)
		sessions.DELETE("/:name", h.Delete)
	}
	rg.GET("/events", h.Events)
}
