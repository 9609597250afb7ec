package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stakelabs/harvest-server/internal/core/models"
	"github.com/stakelabs/harvest-server/pkg/logger"
)

type WebhookRegistration struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterWebhookRequest struct {
	URL string `json:"url"`
}

// WebhookService fans ledger events out to registered HTTP observers. It
// implements the EventSink port; delivery is asynchronous and best-effort.
type WebhookService struct {
	webhooks     map[string]WebhookRegistration
	webhookMutex sync.RWMutex
	httpClient   *http.Client
}

func NewWebhookService() *WebhookService {
	return &WebhookService{
		webhooks:   make(map[string]WebhookRegistration),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookService) RegisterWebhook(req RegisterWebhookRequest) (string, error) {
	if req.URL == "" {
		return "", fmt.Errorf("webhook URL is required")
	}

	webhookID := uuid.New().String()
	webhook := WebhookRegistration{
		ID:        webhookID,
		URL:       req.URL,
		CreatedAt: time.Now(),
	}

	s.webhookMutex.Lock()
	s.webhooks[webhookID] = webhook
	s.webhookMutex.Unlock()

	log := logger.WithComponent("webhook")
	log.Info().
		Str("webhook_id", webhookID).
		Str("url", req.URL).
		Msg("Webhook registered")

	return webhookID, nil
}

func (s *WebhookService) UnregisterWebhook(webhookID string) error {
	s.webhookMutex.Lock()
	defer s.webhookMutex.Unlock()

	if _, exists := s.webhooks[webhookID]; !exists {
		return fmt.Errorf("webhook not found: %s", webhookID)
	}
	delete(s.webhooks, webhookID)

	log := logger.WithComponent("webhook")
	log.Info().
		Str("webhook_id", webhookID).
		Msg("Webhook unregistered")

	return nil
}

// Notify delivers the event to every registered webhook without blocking
// the ledger operation that emitted it.
func (s *WebhookService) Notify(_ context.Context, event models.LedgerEvent) {
	s.webhookMutex.RLock()
	targets := make([]WebhookRegistration, 0, len(s.webhooks))
	for _, webhook := range s.webhooks {
		targets = append(targets, webhook)
	}
	s.webhookMutex.RUnlock()

	for _, target := range targets {
		go s.deliver(target, event)
	}
}

func (s *WebhookService) deliver(target WebhookRegistration, event models.LedgerEvent) {
	log := logger.WithComponent("webhook")

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to marshal event")
		return
	}

	resp, err := s.httpClient.Post(target.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Warn().Err(err).
			Str("webhook_id", target.ID).
			Str("event_id", event.ID).
			Msg("Webhook delivery failed")
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close webhook response body")
		}
	}()

	if resp.StatusCode >= 400 {
		log.Warn().
			Str("webhook_id", target.ID).
			Str("event_id", event.ID).
			Int("status", resp.StatusCode).
			Msg("Webhook returned error status")
	}
}
