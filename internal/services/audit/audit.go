// Package audit сохраняет события жизненного цикла сессий, полученные из брокера.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

const saveTimeout = 5 * time.Second

// EventStore описывает хранилище событий сессий.
type EventStore interface {
	SaveSessionEvent(ctx context.Context, event models.SessionEvent) error
}

// Service разбирает сообщения очереди аудита и сохраняет их.
type Service struct {
	store EventStore
	log   *slog.Logger
}

// NewService создаёт сервис аудита.
func NewService(store EventStore, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

var knownKinds = map[string]bool{
	models.EventSessionAdmitted:   true,
	models.EventSessionSuperseded: true,
	models.EventSessionOverridden: true,
	models.EventSessionCleared:    true,
}

// HandleSessionEvent обрабатывает одно сообщение очереди.
//
// Некорректные сообщения логируются и отбрасываются (nil, сообщение подтверждается).
// Ошибка хранилища возвращается, чтобы сообщение вернулось в очередь.
func (s *Service) HandleSessionEvent(body []byte) error {
	const op = "services.audit.HandleSessionEvent"
	log := s.log.With(slog.String("op", op))

	var event models.SessionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Warn("dropping malformed session event", sl.Err(err))
		return nil
	}
	if _, err := uuid.Parse(event.ID); err != nil {
		log.Warn("dropping session event with invalid id", slog.String("id", event.ID))
		return nil
	}
	if _, err := uuid.Parse(event.AccountID); err != nil {
		log.Warn("dropping session event with invalid account id", slog.String("account_id", event.AccountID))
		return nil
	}
	if !knownKinds[event.Kind] {
		log.Warn("dropping session event of unknown kind", slog.String("kind", event.Kind))
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SaveSessionEvent(ctx, event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Debug("session event stored",
		slog.String("id", event.ID), slog.String("account_id", event.AccountID), slog.String("kind", event.Kind))
	return nil
}
