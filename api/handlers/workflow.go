package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clevio/dashboard/internal/n8n"
)

// maxWorkflowBody bounds the accepted workflow definition size.
const maxWorkflowBody = 1 << 20

// WorkflowHandler exposes the workflow-automation pass-through.
type WorkflowHandler struct {
	client *n8n.Client
}

// NewWorkflowHandler creates a WorkflowHandler. client may be unconfigured;
// requests then fail with 503.
func NewWorkflowHandler(client *n8n.Client) *WorkflowHandler {
	return &WorkflowHandler{client: client}
}

// Create handles POST /api/workflows - the body is the raw workflow
// definition, which is created and activated on the configured n8n instance.
func (h *WorkflowHandler) Create(c *gin.Context) {
	if !h.client.Configured() {
		sendError(c, http.StatusServiceUnavailable, "workflow API is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWorkflowBody))
	if err != nil {
		sendError(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		sendError(c, http.StatusBadRequest, "workflow definition must be valid JSON")
		return
	}

	result, err := h.client.CreateAndActivate(c.Request.Context(), body)
	if err != nil {
		log.Printf("handlers: error creating workflow: %v", err)
		sendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers the workflow routes on a Gin router group.
func (h *WorkflowHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/workflows", h.Create)
}
