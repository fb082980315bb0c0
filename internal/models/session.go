package models

import "time"

// DeviceInfo — метаданные устройства, переданные клиентом при входе.
type DeviceInfo struct {
	Name      string `json:"name,omitempty"`
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// ActiveSession — последняя допущенная сессия учётной записи.
// DeviceID у сохранённой сессии всегда непустой.
type ActiveSession struct {
	DeviceID    string     `json:"device_id"`
	DeviceInfo  DeviceInfo `json:"device_info"`
	LastLoginAt time.Time  `json:"last_login_at"`
}

// Типы событий жизненного цикла сессии.
const (
	EventSessionAdmitted   = "session.admitted"
	EventSessionSuperseded = "session.superseded"
	EventSessionOverridden = "session.overridden"
	EventSessionCleared    = "session.cleared"
)

// SessionEvent публикуется после каждого зафиксированного изменения сессии.
type SessionEvent struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	Kind             string    `json:"kind"`
	DeviceID         string    `json:"device_id,omitempty"`
	PreviousDeviceID string    `json:"previous_device_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
