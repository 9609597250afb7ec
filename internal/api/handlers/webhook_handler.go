package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimodels "github.com/stakelabs/harvest-server/internal/api/models"
	"github.com/stakelabs/harvest-server/internal/core/services"
)

type WebhookHandler struct {
	webhookService *services.WebhookService
}

func NewWebhookHandler(webhookService *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

func (h *WebhookHandler) RegisterWebhook(c *gin.Context) {
	var req apimodels.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := h.webhookService.RegisterWebhook(services.RegisterWebhookRequest{URL: req.URL})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *WebhookHandler) UnregisterWebhook(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook id is required"})
		return
	}

	if err := h.webhookService.UnregisterWebhook(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
