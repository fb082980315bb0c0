// Package models содержит доменную модель учётной записи владельца бизнеса:
// профиль, данные подписки и состояние сессии (закреплённое устройство
// и активная сессия). Структуры используются в бизнес‑логике и хранилище.
package models

import "time"

// Роли учётных записей.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// Статусы подписки.
const (
	SubscriptionTrial   = "trial"
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

// TierTrial — тариф пробного периода, назначаемый при регистрации.
const TierTrial = "trial"

// ProviderGoogle — идентификатор OAuth‑провайдера Google.
const ProviderGoogle = "google"

// Subscription описывает тариф и состояние подписки учётной записи.
type Subscription struct {
	Tier      string    `json:"tier"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ExternalIdentity связывает учётную запись с субъектом OAuth‑провайдера.
type ExternalIdentity struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
}

// Account представляет зарегистрированного владельца бизнеса.
type Account struct {
	ID               string            // Уникальный идентификатор, неизменяемый
	Email            string            // Электронная почта (уникальная)
	Name             string            // Имя владельца
	BusinessName     string            // Название компании
	Phone            string            // Контактный телефон
	Role             string            // Роль, owner или admin
	PasswordHash     *string           // bcrypt‑хэш, nil для учёток только с OAuth
	ExternalIdentity *ExternalIdentity // Привязка к OAuth‑провайдеру
	EmailVerified    bool              // Почта подтверждена
	Subscription     Subscription      // Тариф и статус подписки
	PinnedDeviceID   *string           // Последнее устройство, которому разрешена сессия
	ActiveSession    *ActiveSession    // Текущая допущенная сессия
	Version          int64             // Версия записи для оптимистичной блокировки
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPassword сообщает, задан ли у учётной записи пароль.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Clone возвращает глубокую копию учётной записи.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.PasswordHash != nil {
		h := *a.PasswordHash
		c.PasswordHash = &h
	}
	if a.ExternalIdentity != nil {
		ext := *a.ExternalIdentity
		c.ExternalIdentity = &ext
	}
	if a.PinnedDeviceID != nil {
		d := *a.PinnedDeviceID
		c.PinnedDeviceID = &d
	}
	if a.ActiveSession != nil {
		s := *a.ActiveSession
		c.ActiveSession = &s
	}
	return &c
}

// Profile возвращает снимок учётной записи для клиента. Хэш пароля в него не попадает.
func (a *Account) Profile() *Profile {
	p := &Profile{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		BusinessName:  a.BusinessName,
		Phone:         a.Phone,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		HasPassword:   a.HasPassword(),
		Subscription:  a.Subscription,
		CreatedAt:     a.CreatedAt,
	}
	if a.ExternalIdentity != nil {
		p.LinkedProvider = a.ExternalIdentity.Provider
	}
	if a.ActiveSession != nil {
		s := *a.ActiveSession
		p.ActiveSession = &s
	}
	return p
}

// Profile — публичное представление учётной записи.
type Profile struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	BusinessName   string         `json:"business_name,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Role           string         `json:"role"`
	EmailVerified  bool           `json:"email_verified"`
	HasPassword    bool           `json:"has_password"`
	LinkedProvider string         `json:"linked_provider,omitempty"`
	Subscription   Subscription   `json:"subscription"`
	ActiveSession  *ActiveSession `json:"active_session,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
