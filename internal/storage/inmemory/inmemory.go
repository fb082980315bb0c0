// Package inmemory реализует хранилище учётных записей в памяти процесса.
// Используется в тестах и при локальном запуске с storage_driver: memory.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

// Storage хранит учётные записи в map. Все операции сериализуются одним мьютексом.
type Storage struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	events   []models.SessionEvent
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{accounts: make(map[string]*models.Account)}
}

// CreateAccount сохраняет новую учётную запись и возвращает её копию с назначенным ID.
func (s *Storage) CreateAccount(ctx context.Context, acc *models.Account) (*models.Account, error) {
	const op = "inmemory.CreateAccount"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, acc.Email) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrEmailTaken)
		}
	}
	stored := acc.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1
	s.accounts[stored.ID] = stored
	return stored.Clone(), nil
}

// GetAccount возвращает учётную запись по ID.
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	const op = "inmemory.GetAccount"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return acc.Clone(), nil
}

// GetAccountByEmail возвращает учётную запись по почте без учёта регистра.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "inmemory.GetAccountByEmail"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		if strings.EqualFold(acc.Email, email) {
			return acc.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
}

// GetAccountByExternalIdentity возвращает учётную запись, привязанную к субъекту провайдера.
func (s *Storage) GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*models.Account, error) {
	const op = "inmemory.GetAccountByExternalIdentity"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		ext := acc.ExternalIdentity
		if ext != nil && ext.Provider == provider && ext.Subject == subject {
			return acc.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
}

// UpdateAccount применяет fn к копии записи под мьютексом и сохраняет результат,
// если fn не вернула ошибку.
func (s *Storage) UpdateAccount(ctx context.Context, accountID string, fn func(acc *models.Account) error) (*models.Account, error) {
	const op = "inmemory.UpdateAccount"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.Version = current.Version + 1
	working.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = working
	return working.Clone(), nil
}

// SaveSessionEvent запоминает событие сессии. Повторное событие с тем же ID игнорируется.
func (s *Storage) SaveSessionEvent(ctx context.Context, event models.SessionEvent) error {
	const op = "inmemory.SaveSessionEvent"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.events {
		if ev.ID == event.ID {
			return nil
		}
	}
	s.events = append(s.events, event)
	return nil
}

// ListSessionEvents возвращает последние события учётной записи, новые первыми.
func (s *Storage) ListSessionEvents(ctx context.Context, accountID string, limit int) ([]models.SessionEvent, error) {
	const op = "inmemory.ListSessionEvents"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SessionEvent
	for _, ev := range s.events {
		if ev.AccountID == accountID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
