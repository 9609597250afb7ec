package services

import (
	"context"

	"github.com/stakelabs/harvest-server/internal/core/models"
	"github.com/stakelabs/harvest-server/pkg/logger"
)

// LogSink writes every ledger notification to the structured log. It is
// always registered so operations are observable even with no webhooks.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Notify(_ context.Context, event models.LedgerEvent) {
	log := logger.WithComponent("ledger_events")
	log.Info().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Uint64("pool_id", event.PoolID).
		Str("user", event.User.Hex()).
		Str("amount", event.Amount.String()).
		Msg("Ledger event")
}
