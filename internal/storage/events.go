package storage

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

// SaveSessionEvent сохраняет событие сессии. Повторная доставка того же события игнорируется.
func (s *Storage) SaveSessionEvent(ctx context.Context, event models.SessionEvent) error {
	const op = "storage.SaveSessionEvent"
	query := `INSERT INTO session_events (id, account_uid, kind, device_id, previous_device_id, occurred_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (id) DO NOTHING`
	_, err := s.DB.ExecContext(ctx, query,
		event.ID, event.AccountID, event.Kind, event.DeviceID, event.PreviousDeviceID, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListSessionEvents возвращает последние события учётной записи, новые первыми.
func (s *Storage) ListSessionEvents(ctx context.Context, accountID string, limit int) ([]models.SessionEvent, error) {
	const op = "storage.ListSessionEvents"
	query := `SELECT id, account_uid, kind, device_id, previous_device_id, occurred_at
			  FROM session_events
			  WHERE account_uid::text = $1
			  ORDER BY occurred_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.SessionEvent
	for rows.Next() {
		var ev models.SessionEvent
		if err := rows.Scan(&ev.ID, &ev.AccountID, &ev.Kind, &ev.DeviceID, &ev.PreviousDeviceID, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
